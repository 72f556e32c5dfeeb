// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package health holds the process-wide counters referenced informally in
// spec §5 ("Process-wide health counters are updated under a single lock
// held briefly"). It is deliberately not a module-level singleton —
// callers construct one Metrics value at startup and thread it through.
package health

import "sync"

// Metrics is a small mutex-guarded counter registry. No metrics library
// from the example pack targets this layer specifically (the pack's
// OpenTelemetry/Prometheus exporters live one level up, in the excluded
// HTTP/CRUD surface), so this stays a plain struct — see DESIGN.md.
type Metrics struct {
	mu sync.Mutex

	callsPlaced     uint64
	callsCompleted  uint64
	callsFailed     uint64
	retriesPlanned  uint64
	sttSubmissions  uint64
	sttFailures     uint64
	webhookFailures uint64
}

// NewMetrics constructs an empty registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incr(field *uint64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

func (m *Metrics) IncrCallsPlaced()     { m.incr(&m.callsPlaced) }
func (m *Metrics) IncrCallsCompleted()  { m.incr(&m.callsCompleted) }
func (m *Metrics) IncrCallsFailed()     { m.incr(&m.callsFailed) }
func (m *Metrics) IncrRetriesPlanned()  { m.incr(&m.retriesPlanned) }
func (m *Metrics) IncrSTTSubmissions()  { m.incr(&m.sttSubmissions) }
func (m *Metrics) IncrSTTFailures()     { m.incr(&m.sttFailures) }
func (m *Metrics) IncrWebhookFailures() { m.incr(&m.webhookFailures) }

// Snapshot is a point-in-time copy of the counters, safe to read without
// holding the registry's lock.
type Snapshot struct {
	CallsPlaced     uint64
	CallsCompleted  uint64
	CallsFailed     uint64
	RetriesPlanned  uint64
	STTSubmissions  uint64
	STTFailures     uint64
	WebhookFailures uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		CallsPlaced:     m.callsPlaced,
		CallsCompleted:  m.callsCompleted,
		CallsFailed:     m.callsFailed,
		RetriesPlanned:  m.retriesPlanned,
		STTSubmissions:  m.sttSubmissions,
		STTFailures:     m.sttFailures,
		WebhookFailures: m.webhookFailures,
	}
}
