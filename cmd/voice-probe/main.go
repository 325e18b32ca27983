package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voicedesk/agent/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "Client websocket URL")
	text := flag.String("text", "What's the weather in Pune today?", "Text to send as debug input")
	ctxLine := flag.String("context", "", "Optional context_update content sent before the turn")
	barge := flag.Bool("barge", false, "Send loud audio after the first reply chunk to interrupt it")
	save := flag.String("save", "", "Write the first audio chunk to this WAV file")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for receiving responses")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	events := make(chan protocol.Message, 64)
	go func() {
		defer close(events)
		for {
			var m protocol.Message
			if err := conn.ReadJSON(&m); err != nil {
				if ctx.Err() == nil {
					fmt.Printf("\n[ws] read: %v\n", err)
				}
				return
			}
			events <- m
		}
	}()

	fmt.Printf("=== Voice probe ===\n")
	fmt.Printf("URL:  %s\n", *url)
	fmt.Printf("Text: %q\n\n", *text)

	if *ctxLine != "" {
		fmt.Println("[1] Sending context_update...")
		send(conn, map[string]any{"type": protocol.TypeContextUpdate, "payload": map[string]string{"content": *ctxLine}})
	}
	fmt.Println("[2] Sending debug_input...")
	send(conn, map[string]any{"type": protocol.TypeDebugInput, "text": *text})

	start := time.Now()
	saved := false
	for {
		select {
		case <-ctx.Done():
			fmt.Println("[*] Timeout reached")
			return
		case m, ok := <-events:
			if !ok {
				fmt.Println("[*] Connection closed")
				return
			}
			printEvent(m, time.Since(start))
			switch m.Type {
			case protocol.TypeTTSAudio:
				if *save != "" && !saved && m.Payload != nil {
					if err := writeChunk(*save, m.Payload.Audio); err != nil {
						log.Printf("save: %v", err)
					}
					saved = true
				}
				if *barge {
					fmt.Println("[3] Barging in with loud audio...")
					for i := 0; i < 5; i++ {
						if err := conn.WriteMessage(websocket.BinaryMessage, tone()); err != nil {
							log.Fatalf("send audio: %v", err)
						}
					}
					*barge = false
				}
			case protocol.TypeTTSComplete:
				// the probe does not play audio; acknowledge right away
				send(conn, map[string]any{"type": protocol.TypePlaybackComplete})
			case protocol.TypeState:
				if m.Value == "idle" {
					fmt.Println("[*] Turn finished")
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func send(conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		log.Fatalf("send: %v", err)
	}
}

func printEvent(m protocol.Message, since time.Duration) {
	ts := fmt.Sprintf("+%5dms", since.Milliseconds())
	switch m.Type {
	case protocol.TypeSessionStarted:
		fmt.Printf("[%s] <- session_started: %s\n", ts, m.SessionID)
	case protocol.TypeState:
		fmt.Printf("[%s] <- state: %s\n", ts, m.Value)
	case protocol.TypeTranscriptUser, protocol.TypeTranscriptAssistant:
		fmt.Printf("[%s] <- %s: %q interim=%v\n", ts, m.Type, m.Text, m.IsInterim)
	case protocol.TypeTTSAudio:
		if m.Payload != nil {
			fmt.Printf("[%s] <- tts_audio_full: chunk %d/%d request=%d (%d b64 bytes)\n", ts, m.Payload.Index+1, m.Payload.Total, m.Payload.RequestID, len(m.Payload.Audio))
		}
	case protocol.TypeTTSComplete:
		fmt.Printf("[%s] <- tts_complete: request=%d\n", ts, m.RequestID)
	case protocol.TypeMetrics:
		b, _ := json.Marshal(m.Data)
		fmt.Printf("[%s] <- metrics: turn=%d %s\n", ts, m.TurnID, b)
	default:
		b, _ := json.Marshal(m)
		fmt.Printf("[%s] <- %s\n", ts, b)
	}
}

func writeChunk(path, b64 string) error {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// tone is 20ms of a loud square wave at 16 kHz.
func tone() []byte {
	b := make([]byte, 640)
	for i := 0; i < 320; i++ {
		v := int16(12000)
		if (i/8)%2 == 1 {
			v = -12000
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}
