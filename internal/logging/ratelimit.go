// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package logging

import "sync"

// RateLimiter emits the first few occurrences of a call site, then backs
// off to every Nth occurrence, with N fixed at construction. Used to
// keep per-frame decode-failure logging (spec §4.2: "first 5, then every
// 500") from flooding the log during a sustained bad stream.
type RateLimiter struct {
	mu       sync.Mutex
	burst    int
	count    uint64
	nextEmit uint64
	step     uint64
}

// NewRateLimiter returns a limiter that emits unconditionally for the
// first burst occurrences, then every step occurrences thereafter.
func NewRateLimiter(burst, step int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if step < 1 {
		step = 1
	}
	return &RateLimiter{burst: burst, step: uint64(step), nextEmit: uint64(burst) + uint64(step)}
}

// Allow reports whether this occurrence should be logged, and advances
// the internal counter regardless of the outcome.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	if r.count <= uint64(r.burst) {
		return true
	}
	if r.count == r.nextEmit {
		r.nextEmit += r.step
		return true
	}
	return false
}

// Count returns the number of times Allow has been called.
func (r *RateLimiter) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
