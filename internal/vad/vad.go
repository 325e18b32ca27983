// Package vad implements the energy-based voice activity detector that drives
// turn boundaries.
package vad

import "encoding/binary"

const (
	DefaultThreshold     = 0.01
	DefaultSilenceFrames = 6
)

type Event int

const (
	None Event = iota
	SpeechStart
	SpeechEnd
)

func (e Event) String() string {
	switch e {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// Detector tracks speaking/silence across frames. It is not safe for
// concurrent use; each session owns one.
type Detector struct {
	threshold     float64
	silenceLimit  int
	speaking      bool
	silenceFrames int
}

func New(threshold float64, silenceLimit int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if silenceLimit <= 0 {
		silenceLimit = DefaultSilenceFrames
	}
	return &Detector{threshold: threshold, silenceLimit: silenceLimit}
}

// Energy is the mean of squared samples.
func Energy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum / float64(len(samples))
}

// Process consumes one frame of normalized samples in [-1, 1].
func (d *Detector) Process(samples []float64) Event {
	metricFrames.Inc()
	if Energy(samples) > d.threshold {
		d.silenceFrames = 0
		if !d.speaking {
			d.speaking = true
			metricEvents.WithLabelValues("speech_start").Inc()
			return SpeechStart
		}
		return None
	}
	d.silenceFrames++
	if d.speaking && d.silenceFrames > d.silenceLimit {
		d.speaking = false
		metricEvents.WithLabelValues("speech_end").Inc()
		return SpeechEnd
	}
	return None
}

// ProcessPCM16 decodes 16-bit signed little-endian mono PCM and processes it.
func (d *Detector) ProcessPCM16(pcm []byte) Event {
	return d.Process(DecodePCM16(pcm))
}

// Speaking reports whether the detector is inside a speech run.
func (d *Detector) Speaking() bool { return d.speaking }

// Reset clears speaking and the silence counter.
func (d *Detector) Reset() {
	d.speaking = false
	d.silenceFrames = 0
}

// DecodePCM16 converts little-endian int16 samples to floats in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}
