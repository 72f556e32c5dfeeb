// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audiobridge

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/rapidaai/voicecampaign/internal/codec"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
	"github.com/stretchr/testify/require"
)

type countingSTT struct {
	mu         sync.Mutex
	submits    int
	lastBlob   []byte
	delay      time.Duration
	failNext   bool
}

func (s *countingSTT) SubmitAsync(ctx context.Context, req provider.SubmitSpeechToTextRequest) (provider.SubmitSpeechToTextResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.submits++
	s.lastBlob = req.Audio
	if s.failNext {
		s.failNext = false
		return provider.SubmitSpeechToTextResult{}, assertError("provider rejected")
	}
	return provider.SubmitSpeechToTextResult{RequestID: "req-1"}, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
func assertError(msg string) error { return assertErr(msg) }

type noopMedia struct{ closed bool }

func (m *noopMedia) WriteMediaFrame(track string, chunk uint64, payload []byte) error { return nil }
func (m *noopMedia) Closed() bool                                                     { return m.closed }

func newTestSession(stt provider.SpeechToText) *Session {
	return NewSession(Config{
		CallID: "CA1",
		Media:  &noopMedia{},
		STT:    stt,
	}, logging.NewTestLogger(), health.NewMetrics())
}

func muLawSilenceFrame(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0xFF // mu-law silence byte
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func TestSession_InboundFrame_DropsWhenInactive(t *testing.T) {
	stt := &countingSTT{}
	s := newTestSession(stt)
	s.Close()

	s.HandleInboundFrame(context.Background(), InboundFrame{
		Track: "inbound", PayloadBase64: muLawSilenceFrame(160),
		Format: codec.AudioFormat{Codec: "mulaw", SampleRate: 8000, Channels: 1, BitDepth: 8}, FormatIsPresent: true,
	})

	require.Equal(t, 0, len(s.chunks))
}

func TestSession_InboundFrame_IgnoresOutboundTrack(t *testing.T) {
	s := newTestSession(&countingSTT{})
	s.HandleInboundFrame(context.Background(), InboundFrame{Track: "outbound", PayloadBase64: muLawSilenceFrame(160)})
	require.Equal(t, 0, len(s.chunks))
}

func TestSession_RingBufferCapEvictsOldest(t *testing.T) {
	s := newTestSession(nil)
	s.lastSubmitCheck = time.Now() // suppress maybeSubmit noise this test doesn't exercise

	for i := 0; i < ringChunkCap+50; i++ {
		s.appendChunk([]byte{0x01, 0x02})
	}
	require.LessOrEqual(t, len(s.chunks), ringChunkCap)
}

// TestSession_SubmitsOnceAtOptimalChunksThreshold exercises spec
// §8 scenario 4: 30 mu-law chunks of 160 bytes each, 50ms apart. Exactly
// one submission fires on the chunk crossing optimalChunks=25 with
// Δt ≥ 2000ms, and the blob is a WAV header plus 30*320 bytes of PCM
// (mu-law decode doubles each byte to a 16-bit sample).
func TestSession_SubmitsOnceAtOptimalChunksThreshold(t *testing.T) {
	stt := &countingSTT{delay: 100 * time.Millisecond} // keeps submissionInProgress true across the remaining frames in this tight loop
	s := newTestSession(stt)
	s.minIntervalMs = 0 // isolate the chunk-count trigger from wall-clock throttling in this fast test

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		s.mu.Lock()
		s.lastSubmitCheck = time.Time{} // force the 1s-throttle check to run every frame
		s.mu.Unlock()
		s.HandleInboundFrame(ctx, InboundFrame{
			Track:           "inbound",
			PayloadBase64:   muLawSilenceFrame(160),
			Format:          codec.AudioFormat{Codec: "mulaw", SampleRate: 8000, Channels: 1, BitDepth: 8},
			FormatIsPresent: true,
		})
	}

	require.Eventually(t, func() bool {
		stt.mu.Lock()
		defer stt.mu.Unlock()
		return stt.submits >= 1
	}, time.Second, 5*time.Millisecond)

	stt.mu.Lock()
	defer stt.mu.Unlock()
	require.Equal(t, 1, stt.submits)
	require.Len(t, stt.lastBlob, 44+30*320)
}

func TestSession_MaybeSubmit_StalenessTrigger(t *testing.T) {
	stt := &countingSTT{}
	s := newTestSession(stt)
	s.appendChunk(make([]byte, 10))
	s.lastSubmitAt = time.Now().Add(-6 * time.Second)

	s.mu.Lock()
	s.maybeSubmitLocked(context.Background())
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		stt.mu.Lock()
		defer stt.mu.Unlock()
		return stt.submits == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_MaybeSubmit_NoSttConfiguredIsNoop(t *testing.T) {
	s := newTestSession(nil)
	s.appendChunk(make([]byte, defaultAudioChunkMaxCap+10))
	s.mu.Lock()
	s.maybeSubmitLocked(context.Background())
	s.mu.Unlock()
	require.True(t, len(s.chunks) > 0) // nothing consumed — stt is nil
}

func TestSession_AdjustThresholds_HighSuccessFastResponseTightens(t *testing.T) {
	s := newTestSession(nil)
	s.successCount = 10
	s.failureCount = 0
	s.avgResponseMs = 500
	s.adjustThresholdsLocked()
	require.Equal(t, defaultMinIntervalMs-200, s.minIntervalMs)
	require.Equal(t, defaultOptimalChunks-2, s.optimalChunks)
}

func TestSession_AdjustThresholds_LowSuccessRateLoosens(t *testing.T) {
	s := newTestSession(nil)
	s.successCount = 7
	s.failureCount = 3
	s.adjustThresholdsLocked()
	require.Equal(t, defaultMinIntervalMs+500, s.minIntervalMs)
	require.Equal(t, defaultOptimalChunks+5, s.optimalChunks)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := newTestSession(nil)
	s.Close()
	require.NotPanics(t, func() { s.Close() })
	require.False(t, s.Active())
}

func TestWrapWav_HeaderLengthAndFields(t *testing.T) {
	pcm := make([]byte, 320)
	out := wrapWav(pcm, 16000, 16, 1)
	require.Len(t, out, 44+320)
	require.Equal(t, "RIFF", string(out[0:4]))
	require.Equal(t, "WAVE", string(out[8:12]))
	require.Equal(t, "data", string(out[36:40]))
}
