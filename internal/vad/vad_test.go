package vad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loud() []float64  { return constant(0.5, 320) }
func quiet() []float64 { return constant(0.0, 320) }

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSpeechStartThenEndAfterSilenceLimit(t *testing.T) {
	d := New(DefaultThreshold, DefaultSilenceFrames)

	require.Equal(t, SpeechStart, d.Process(loud()))
	for i := 0; i < 5; i++ {
		require.Equal(t, None, d.Process(loud()))
	}
	for i := 0; i < 6; i++ {
		require.Equal(t, None, d.Process(quiet()), "silence frame %d", i+1)
	}
	assert.Equal(t, SpeechEnd, d.Process(quiet()))
	assert.False(t, d.Speaking())
}

func TestSilenceCounterResetsOnSpeech(t *testing.T) {
	d := New(DefaultThreshold, DefaultSilenceFrames)

	require.Equal(t, SpeechStart, d.Process(loud()))
	for i := 0; i < 5; i++ {
		d.Process(quiet())
	}
	require.Equal(t, None, d.Process(loud()))
	for i := 0; i < 6; i++ {
		require.Equal(t, None, d.Process(quiet()))
	}
	assert.Equal(t, SpeechEnd, d.Process(quiet()))
}

func TestEnergyAtThresholdIsSilence(t *testing.T) {
	d := New(0.25, 6)
	// 0.5^2 == 0.25 is not strictly greater than threshold.
	assert.Equal(t, None, d.Process(constant(0.5, 10)))
	assert.False(t, d.Speaking())
}

func TestSilenceWithoutSpeechNeverEnds(t *testing.T) {
	d := New(DefaultThreshold, DefaultSilenceFrames)
	for i := 0; i < 50; i++ {
		require.Equal(t, None, d.Process(quiet()))
	}
}

func TestResetDropsPendingEnd(t *testing.T) {
	d := New(DefaultThreshold, DefaultSilenceFrames)
	d.Process(loud())
	d.Reset()
	for i := 0; i < 10; i++ {
		require.Equal(t, None, d.Process(quiet()))
	}
	assert.Equal(t, SpeechStart, d.Process(loud()))
}

func TestEmptyFrameCountsAsSilence(t *testing.T) {
	assert.Equal(t, 0.0, Energy(nil))
}

func TestProcessPCM16(t *testing.T) {
	d := New(DefaultThreshold, DefaultSilenceFrames)
	pcm := make([]byte, 640)
	for i := 0; i < 320; i++ {
		v := int16(16000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	assert.Equal(t, SpeechStart, d.ProcessPCM16(pcm))
	assert.Equal(t, None, d.ProcessPCM16(make([]byte, 640)))
}

func TestDecodePCM16Range(t *testing.T) {
	pcm := []byte{0x00, 0x80, 0xff, 0x7f, 0x01}
	s := DecodePCM16(pcm)
	require.Len(t, s, 2)
	assert.Equal(t, -1.0, s[0])
	assert.InDelta(t, 1.0, s[1], 1e-4)
}
