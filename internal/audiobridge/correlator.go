// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audiobridge

import (
	"context"
	"sync"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

const dedupeCapacityPerSession = 500

// Correlator routes STT provider callbacks to the owning session by
// call id, de-duplicating at-most-once per request id (spec §4.3).
type Correlator struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seen     map[string]*dedupeRing
	logger   logging.Logger
}

// dedupeRing is a small bounded FIFO set of the last N request ids seen
// for one call (spec §4.3: "bounded set of last 500 request ids").
type dedupeRing struct {
	order []string
	set   map[string]struct{}
}

func newDedupeRing() *dedupeRing {
	return &dedupeRing{set: make(map[string]struct{})}
}

func (d *dedupeRing) seenBefore(id string) bool {
	if _, ok := d.set[id]; ok {
		return true
	}
	d.order = append(d.order, id)
	d.set[id] = struct{}{}
	if len(d.order) > dedupeCapacityPerSession {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.set, oldest)
	}
	return false
}

// NewCorrelator constructs an empty Correlator.
func NewCorrelator(logger logging.Logger) *Correlator {
	return &Correlator{
		sessions: make(map[string]*Session),
		seen:     make(map[string]*dedupeRing),
		logger:   logger,
	}
}

// Register associates a session with its callID so future provider
// callbacks can be routed to it.
func (c *Correlator) Register(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[session.CallID()] = session
	c.seen[session.CallID()] = newDedupeRing()
}

// Unregister drops a session — called from the session's close path.
func (c *Correlator) Unregister(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, callID)
	delete(c.seen, callID)
}

// Deliver routes a provider STT result to the session named by CallID
// (spec §4.3). A result for an unknown call is dropped silently — the
// session ended before transcription returned.
func (c *Correlator) Deliver(ctx context.Context, result provider.SpeechToTextResult) {
	c.mu.Lock()
	session, ok := c.sessions[result.CallID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debugw("audiobridge: stt result for unknown call dropped", "callId", result.CallID, "requestId", result.RequestID)
		return
	}
	ring := c.seen[result.CallID]
	if ring.seenBefore(result.RequestID) {
		c.mu.Unlock()
		c.logger.Debugw("audiobridge: duplicate stt result dropped", "callId", result.CallID, "requestId", result.RequestID)
		return
	}
	c.mu.Unlock()

	session.HandleSTTResult(ctx, result.Text)
}
