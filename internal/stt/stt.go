// Package stt streams caller audio to a speech-to-text provider and surfaces
// interim and final transcripts.
package stt

import (
	"context"
	"sync"
)

type EventType int

const (
	Interim EventType = iota
	Final
	Error
)

func (t EventType) String() string {
	switch t {
	case Interim:
		return "interim"
	case Final:
		return "final"
	default:
		return "error"
	}
}

type Event struct {
	Type EventType
	Text string
}

// Stream is one upstream transcription connection. Events is closed when the
// connection ends for any reason.
type Stream interface {
	// Send enqueues PCM16 mono 16 kHz audio. It never blocks and reports
	// false when the frame was dropped.
	Send(pcm []byte) bool
	Events() <-chan Event
	Close()
}

// Disabled is used when no provider is configured. Its streams accept and
// discard audio; text arrives only through debug input.
type Disabled struct{}

func (Disabled) Open(context.Context) (Stream, error) { return newNopStream(), nil }

type nopStream struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func newNopStream() *nopStream {
	s := &nopStream{events: make(chan Event), done: make(chan struct{})}
	go func() {
		<-s.done
		close(s.events)
	}()
	return s
}

func (s *nopStream) Send([]byte) bool { return true }

func (s *nopStream) Events() <-chan Event { return s.events }

func (s *nopStream) Close() { s.once.Do(func() { close(s.done) }) }
