// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import "sync"

// incrementor is a bounded counter that wraps at modulus, remembering both
// its current and previous value. It backs both bdSeq (wraps at 2^32) and
// seq (wraps at 256): the Sparkplug B spec defines these with different
// widths but identical wraparound semantics, so one mechanism serves both
// rather than duplicating the arithmetic.
type incrementor struct {
	mu       sync.Mutex
	current  uint64
	previous uint64
	modulus  uint64
}

func newIncrementor(modulus uint64) *incrementor {
	return &incrementor{modulus: modulus}
}

// Next advances the counter by one, wrapping at modulus, and returns the
// new current value.
func (i *incrementor) Next() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.previous = i.current
	i.current = (i.current + 1) % i.modulus
	return i.current
}

// Reset sets the counter back to zero, recording the prior value as
// previous (used when NDEATH resets seq).
func (i *incrementor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.previous = i.current
	i.current = 0
}

func (i *incrementor) Current() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

func (i *incrementor) Previous() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.previous
}

// Set forces the counter to a specific value, used to restore bdSeq from a
// persisted node configuration across restarts.
func (i *incrementor) Set(v uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.current = v % i.modulus
}
