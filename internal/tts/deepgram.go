// Package tts synthesizes reply text into WAV audio and prepares text for speech.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client calls the Deepgram speak endpoint and returns a complete 16 kHz
// linear16 WAV per request.
type Client struct {
	apiKey   string
	speakURL string
	voice    string
	http     *http.Client
}

func NewClient(apiKey, speakURL, voice string) *Client {
	return &Client{
		apiKey:   apiKey,
		speakURL: speakURL,
		voice:    voice,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) endpoint() string {
	q := url.Values{}
	if c.voice != "" {
		q.Set("model", c.voice)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("container", "wav")
	return c.speakURL + "?" + q.Encode()
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		ttsSynthesisTotal.WithLabelValues("config_error").Inc()
		return nil, fmt.Errorf("deepgram: missing api key")
	}
	start := time.Now()
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("deepgram speak: %w", err)
	}
	defer resp.Body.Close()
	ttsProviderLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		ttsSynthesisTotal.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("deepgram speak: status=%d body=%s", resp.StatusCode, string(b))
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("deepgram speak read: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("decode_error").Inc()
		return nil, err
	}
	ttsSynthesisTotal.WithLabelValues("ok").Inc()
	ttsTotalDurationMS.Observe(float64(time.Since(start).Milliseconds()))
	ttsAudioSeconds.Observe(info.Duration().Seconds())
	return wav, nil
}

type wavInfo struct {
	Channels   uint16
	SampleRate uint32
	Bits       uint16
	DataLen    int
}

func (w wavInfo) Duration() time.Duration {
	bytesPerSec := int(w.SampleRate) * int(w.Channels) * int(w.Bits/8)
	if bytesPerSec == 0 {
		return 0
	}
	return time.Duration(w.DataLen) * time.Second / time.Duration(bytesPerSec)
}

// parseWAV validates a PCM16 RIFF header and locates the data chunk.
func parseWAV(b []byte) (wavInfo, error) {
	var info wavInfo
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return info, fmt.Errorf("not a WAV")
	}
	off := 12
	sawFmt := false
	for off+8 <= len(b) {
		cid := string(b[off : off+4])
		csz := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		switch cid {
		case "fmt ":
			if csz < 16 || off+csz > len(b) {
				return info, fmt.Errorf("bad fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(b[off:]); tag != 1 {
				return info, fmt.Errorf("unsupported WAV format tag %d", tag)
			}
			info.Channels = binary.LittleEndian.Uint16(b[off+2:])
			info.SampleRate = binary.LittleEndian.Uint32(b[off+4:])
			info.Bits = binary.LittleEndian.Uint16(b[off+14:])
			sawFmt = true
		case "data":
			if !sawFmt {
				return info, fmt.Errorf("data chunk before fmt")
			}
			// Streaming encoders may write a placeholder size.
			info.DataLen = len(b) - off
			if csz < info.DataLen {
				info.DataLen = csz
			}
			return info, nil
		}
		off += csz + csz%2
	}
	return info, fmt.Errorf("no data chunk")
}
