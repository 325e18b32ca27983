// Package cancel provides generation counters used to void stale async work.
//
// A unit of work captures Issue() when it starts and checks IsCurrent before
// any externally visible effect. Advance invalidates every captured value.
package cancel

import "sync/atomic"

type Token struct {
	gen atomic.Uint64
}

// Issue returns the current generation.
func (t *Token) Issue() uint64 { return t.gen.Load() }

func (t *Token) IsCurrent(g uint64) bool { return t.gen.Load() == g }

// Advance bumps the generation and returns the new value.
func (t *Token) Advance() uint64 { return t.gen.Add(1) }
