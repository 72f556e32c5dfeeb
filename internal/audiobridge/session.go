// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audiobridge is the per-call media pump (spec §4.2): it ingests
// inbound telephony audio, transcodes it to a target PCM format, batches
// it for STT submission, and drives the conversational reply back out as
// TTS. It also correlates asynchronous STT webhook results back to the
// originating session (spec §4.3).
package audiobridge

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/rapidaai/voicecampaign/internal/codec"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

// Default submit-policy thresholds (spec §4.2).
const (
	defaultMinIntervalMs    = 2000
	defaultMaxIntervalMs    = 5000
	defaultMinChunks        = 10
	defaultOptimalChunks    = 25
	defaultAudioChunkMaxCap = 1 << 20 // 1 MiB
	ringChunkCap            = 500
	maxConversationTurns    = 20
	maxPendingSttRequests   = 100
)

// MediaWriter is the outbound half of the telephony media transport
// (spec §4.2's "media-transport"). Implemented by internal/mediaws.
type MediaWriter interface {
	WriteMediaFrame(track string, chunk uint64, payload []byte) error
	Closed() bool
}

// InboundFrame is one inbound media-transport message (spec §6).
type InboundFrame struct {
	Track           string // "inbound" or "outbound"
	PayloadBase64   string
	Format          codec.AudioFormat
	FormatIsPresent bool
}

// chunk is one processed PCM segment held in the session's ring buffer.
type chunk struct {
	pcm []byte
}

// Session is the per-callSid media pump (spec §4.2). All operations on a
// session must be serialised — every exported method that touches mutable
// state takes the session mutex (CallID and CampaignID read fields fixed at
// construction), so callers never need their own locking.
type Session struct {
	mu sync.Mutex

	callID       string
	campaignID   *uint64
	voiceAgentID string

	active bool

	sourceFormat     codec.AudioFormat
	formatResolved   bool
	conversionPath   []codec.ConversionStep
	conversionSrcRate int
	conversionSrcBits int

	chunks       []chunk
	bytesBuffered int

	lastSubmitCheck time.Time
	lastSubmitAt    time.Time
	submissionInProgress bool

	minIntervalMs   int
	maxIntervalMs   int
	minChunks       int
	optimalChunks   int
	audioChunkCap   int

	successCount    int
	failureCount    int
	totalSubmits    int
	avgResponseMs   float64

	pendingSttRequests []string

	conversation []provider.ConversationTurn
	responseInFlight bool
	queuedInputs     []string

	ttsStream provider.TextToSpeechStream
	chunkSeq  uint64

	media MediaWriter

	stt    provider.SpeechToText
	tts    provider.TextToSpeech
	llm    provider.ConversationLLM

	webhookURL string

	logger     logging.Logger
	metrics    *health.Metrics
	decodeRate *logging.RateLimiter
}

// Config is the fixed configuration a Session is constructed with.
type Config struct {
	CallID       string
	CampaignID   *uint64
	VoiceAgentID string
	WebhookURL   string
	Media        MediaWriter
	STT          provider.SpeechToText
	TTS          provider.TextToSpeech
	LLM          provider.ConversationLLM
}

// NewSession constructs an active session. A missing STT/TTS credential
// is not fatal — the session still serves TTS-only playback when
// provider.SpeechToText is nil (spec §4.2: "missing provider credentials
// at init → session init fails [for STT] and the call is allowed to
// continue without STT, never a hard call abort").
func NewSession(cfg Config, logger logging.Logger, metrics *health.Metrics) *Session {
	return &Session{
		callID:       cfg.CallID,
		campaignID:   cfg.CampaignID,
		voiceAgentID: cfg.VoiceAgentID,
		webhookURL:   cfg.WebhookURL,
		media:        cfg.Media,
		stt:          cfg.STT,
		tts:          cfg.TTS,
		llm:          cfg.LLM,
		active:       true,

		// lastSubmitAt starts at session creation, not the zero time, so
		// Δt is measured against "how long this call has been live"
		// rather than firing a spurious staleness submit on frame one.
		lastSubmitAt: time.Now(),

		minIntervalMs: defaultMinIntervalMs,
		maxIntervalMs: defaultMaxIntervalMs,
		minChunks:     defaultMinChunks,
		optimalChunks: defaultOptimalChunks,
		audioChunkCap: defaultAudioChunkMaxCap,

		logger:     logger,
		metrics:    metrics,
		decodeRate: logging.NewRateLimiter(5, 500),
	}
}

// CallID identifies the session's owning call.
func (s *Session) CallID() string { return s.callID }

// CampaignID is the session's owning campaign, if dispatched by one.
func (s *Session) CampaignID() *uint64 { return s.campaignID }

// Active reports whether the session still accepts frames.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SourceFormat is the inbound codec/format negotiated on the first frame
// (spec §4.2 step 2), or the zero value before any frame has arrived.
func (s *Session) SourceFormat() codec.AudioFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceFormat
}

// HandleInboundFrame processes one inbound media-transport frame (spec
// §4.2 steps 1-4).
func (s *Session) HandleInboundFrame(ctx context.Context, frame InboundFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || frame.Track != "inbound" || frame.PayloadBase64 == "" {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(frame.PayloadBase64)
	if err != nil {
		s.logDecodeError("base64 decode failed", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	if !s.formatResolved {
		if frame.FormatIsPresent {
			s.sourceFormat = frame.Format
		} else {
			s.sourceFormat = codec.TargetFormat
		}
		s.conversionPath = codec.BuildConversionPath(s.sourceFormat)
		s.conversionSrcRate = s.sourceFormat.SampleRate
		s.conversionSrcBits = s.sourceFormat.BitDepth
		s.formatResolved = true
	}

	pcm := codec.ApplyPath(s.conversionPath, raw, s.conversionSrcRate, s.conversionSrcBits)
	s.appendChunk(pcm)

	now := time.Now()
	if s.lastSubmitCheck.IsZero() || now.Sub(s.lastSubmitCheck) >= time.Second {
		s.lastSubmitCheck = now
		s.maybeSubmitLocked(ctx)
	}
}

func (s *Session) logDecodeError(msg string, err error) {
	if s.decodeRate.Allow() {
		s.logger.Warnw("audiobridge: "+msg, "callId", s.callID, "error", err, "count", s.decodeRate.Count())
	}
}

// appendChunk enforces the ring cap: oldest chunk dropped when the chunk
// count exceeds ringChunkCap (spec §4.2 step 3). The byte cap is not
// enforced here; maybeSubmitLocked uses it only as a submit trigger.
func (s *Session) appendChunk(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.chunks = append(s.chunks, chunk{pcm: pcm})
	s.bytesBuffered += len(pcm)

	for len(s.chunks) > ringChunkCap {
		dropped := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.bytesBuffered -= len(dropped.pcm)
	}
}

// maybeSubmitLocked evaluates the submit policy (spec §4.2). Caller must
// hold s.mu.
func (s *Session) maybeSubmitLocked(ctx context.Context) {
	if s.submissionInProgress {
		return
	}
	chunks := len(s.chunks)
	if chunks == 0 {
		return
	}

	deltaMs := time.Since(s.lastSubmitAt).Milliseconds()

	shouldSubmit := (chunks >= s.optimalChunks && deltaMs >= int64(s.minIntervalMs)) ||
		deltaMs >= int64(s.maxIntervalMs) ||
		s.bytesBuffered >= s.audioChunkCap

	if !shouldSubmit {
		return
	}
	if s.stt == nil {
		return
	}

	s.submitLocked(ctx)
}

// submitLocked copies the buffer out, clears it, and fires the async STT
// submission in a goroutine so inbound ingest is never blocked on the
// network round trip (spec §4.2: "clear the session buffer (allows
// parallel ingest to resume)").
func (s *Session) submitLocked(ctx context.Context) {
	blob := make([]byte, 0, s.bytesBuffered)
	for _, c := range s.chunks {
		blob = append(blob, c.pcm...)
	}
	s.chunks = nil
	s.bytesBuffered = 0
	s.submissionInProgress = true
	s.lastSubmitAt = time.Now()

	wav := wrapWav(blob, codec.TargetFormat.SampleRate, codec.TargetFormat.BitDepth, codec.TargetFormat.Channels)

	go s.submitAsync(ctx, wav)
}

func (s *Session) submitAsync(parent context.Context, wav []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	res, err := s.stt.SubmitAsync(ctx, provider.SubmitSpeechToTextRequest{
		Audio:           wav,
		AudioFormat:     "wav",
		SampleRate:      codec.TargetFormat.SampleRate,
		CallID:          s.callID,
		OutputLanguages: []string{"en"},
		WebhookURL:      s.webhookURL,
	})
	elapsedMs := float64(time.Since(start).Milliseconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.submissionInProgress = false
	s.totalSubmits++

	if err != nil {
		s.failureCount++
		s.metrics.IncrSTTFailures()
		s.logger.Warnw("audiobridge: stt submit failed", "callId", s.callID, "error", err)
	} else {
		s.successCount++
		s.metrics.IncrSTTSubmissions()
		s.avgResponseMs = runningMean(s.avgResponseMs, elapsedMs, s.successCount)
		s.recordPendingRequest(res.RequestID)
	}

	if s.totalSubmits%10 == 0 {
		s.adjustThresholdsLocked()
	}
}

func runningMean(prevMean, sample float64, n int) float64 {
	if n <= 1 {
		return sample
	}
	return prevMean + (sample-prevMean)/float64(n)
}

// recordPendingRequest tracks an outstanding STT request id, capped at
// 100 with an oldest-half-drop when full (spec §4.2).
func (s *Session) recordPendingRequest(requestID string) {
	if requestID == "" {
		return
	}
	s.pendingSttRequests = append(s.pendingSttRequests, requestID)
	if len(s.pendingSttRequests) > maxPendingSttRequests {
		half := len(s.pendingSttRequests) / 2
		s.pendingSttRequests = append([]string{}, s.pendingSttRequests[half:]...)
	}
}

// adjustThresholdsLocked retunes the submit policy every 10 submissions
// (spec §4.2). Caller must hold s.mu.
func (s *Session) adjustThresholdsLocked() {
	total := s.successCount + s.failureCount
	if total == 0 {
		return
	}
	successRate := float64(s.successCount) / float64(total)

	switch {
	case successRate > 0.95:
		if s.avgResponseMs < 1000 {
			s.minIntervalMs = maxInt(s.minIntervalMs-200, 1000)
			s.optimalChunks = maxInt(s.optimalChunks-2, 15)
		} else {
			s.minIntervalMs = minInt(s.minIntervalMs+200, 3000)
		}
	case successRate < 0.80:
		s.minIntervalMs = minInt(s.minIntervalMs+500, 4000)
		s.optimalChunks = minInt(s.optimalChunks+5, 40)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close tears the session down (spec §4.2: "Close"). Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	if s.ttsStream != nil {
		_ = s.ttsStream.Close()
		s.ttsStream = nil
	}
	s.media = nil
}
