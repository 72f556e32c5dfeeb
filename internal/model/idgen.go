// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package model

import (
	"sync/atomic"
	"time"
)

// voicecampaignEpoch anchors the generated ids; only the relative offset
// matters since ids are never compared across processes.
var voicecampaignEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var sequence uint64

// NextID returns a monotonically increasing, process-unique 63-bit id:
// the high bits are milliseconds since voicecampaignEpoch, the low 16
// bits are a rolling sequence counter. Used by BeforeCreate hooks across
// the model package in place of a database sequence.
func NextID() uint64 {
	millis := uint64(time.Since(voicecampaignEpoch).Milliseconds())
	seq := atomic.AddUint64(&sequence, 1) & 0xFFFF
	return (millis << 16) | seq
}
