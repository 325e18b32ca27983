package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWAV builds a mono PCM16 WAV with n samples at rate.
func makeWAV(rate uint32, n int) []byte {
	data := make([]byte, n*2)
	b := make([]byte, 44, 44+len(data))
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+len(data)))
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], rate)
	binary.LittleEndian.PutUint32(b[28:], rate*2)
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(len(data)))
	return append(b, data...)
}

func TestParseWAV(t *testing.T) {
	info, err := parseWAV(makeWAV(16000, 16000))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, time.Second, info.Duration())

	_, err = parseWAV([]byte("nope"))
	assert.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	wav := makeWAV(16000, 800)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token key", r.Header.Get("Authorization"))
		assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))
		assert.Equal(t, "16000", r.URL.Query().Get("sample_rate"))
		assert.Equal(t, "wav", r.URL.Query().Get("container"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "It is sunny.", body["text"])
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	got, err := NewClient("key", srv.URL, "aura-asteria-en").Synthesize(context.Background(), "It is sunny.")
	require.NoError(t, err)
	assert.Equal(t, wav, got)
}

func TestSynthesizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient("key", srv.URL, "").Synthesize(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
}

func TestSynthesizeMissingKey(t *testing.T) {
	_, err := NewClient("", "http://unused", "").Synthesize(context.Background(), "x")
	assert.Error(t, err)
}
