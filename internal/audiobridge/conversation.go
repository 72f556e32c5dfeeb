// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audiobridge

import (
	"context"

	"github.com/rapidaai/voicecampaign/internal/provider"
)

// HandleSTTResult is C3's delivery of a correlated transcription into the
// owning session (spec §4.2 "Handling an STT result"). Turn-by-turn
// serialisation is enforced: if a reply is already in flight, the text is
// queued FIFO and drained once the current turn completes.
func (s *Session) HandleSTTResult(ctx context.Context, text string) {
	s.mu.Lock()
	if text == "" {
		s.mu.Unlock()
		s.logger.Debugw("audiobridge: empty stt result", "callId", s.callID)
		return
	}
	if s.llm == nil {
		s.mu.Unlock()
		s.logger.Debugw("audiobridge: no conversation llm configured, stt result ignored", "callId", s.callID)
		return
	}
	if s.responseInFlight {
		s.queuedInputs = append(s.queuedInputs, text)
		s.mu.Unlock()
		return
	}
	s.responseInFlight = true
	s.conversation = append(s.conversation, provider.ConversationTurn{Role: "user", Content: text})
	contextCopy := append([]provider.ConversationTurn(nil), s.conversation...)
	s.mu.Unlock()

	s.runTurn(ctx, text, contextCopy)
}

func (s *Session) runTurn(ctx context.Context, text string, contextSnapshot []provider.ConversationTurn) {
	reply, err := s.llm.GenerateConversationalResponse(ctx, text, s.voiceAgentID, contextSnapshot)
	if err != nil {
		s.logger.Warnw("audiobridge: llm generation failed", "callId", s.callID, "error", err)
		s.finishTurn(ctx)
		return
	}

	s.mu.Lock()
	s.conversation = append(s.conversation, provider.ConversationTurn{Role: "assistant", Content: reply})
	if len(s.conversation) > maxConversationTurns {
		s.conversation = s.conversation[len(s.conversation)-maxConversationTurns:]
	}
	s.mu.Unlock()

	s.streamTTS(ctx, reply)
	s.finishTurn(ctx)
}

// finishTurn releases the in-flight flag and drains exactly one queued
// input, if any, preserving FIFO turn order (spec §4.2).
func (s *Session) finishTurn(ctx context.Context) {
	s.mu.Lock()
	s.responseInFlight = false
	if len(s.queuedInputs) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.queuedInputs[0]
	s.queuedInputs = s.queuedInputs[1:]
	s.responseInFlight = true
	s.conversation = append(s.conversation, provider.ConversationTurn{Role: "user", Content: next})
	contextCopy := append([]provider.ConversationTurn(nil), s.conversation...)
	s.mu.Unlock()

	s.runTurn(ctx, next, contextCopy)
}

// streamTTS opens a streaming synthesis request and pumps frames to the
// media transport as outbound media messages (spec §4.2 "TTS streaming").
func (s *Session) streamTTS(ctx context.Context, text string) {
	s.mu.Lock()
	media := s.media
	format := s.ttsOutputFormatLocked()
	s.mu.Unlock()

	if media == nil || media.Closed() {
		return
	}

	done := make(chan struct{})
	stream, err := s.tts.StreamRealTime(ctx, text, s.voiceAgentID, func(frame []byte) {
		s.mu.Lock()
		m := s.media
		s.chunkSeq++
		seq := s.chunkSeq
		s.mu.Unlock()
		if m == nil || m.Closed() {
			return
		}
		if err := m.WriteMediaFrame("outbound", seq, frame); err != nil {
			s.logger.Warnw("audiobridge: write outbound media frame failed", "callId", s.callID, "error", err)
		}
	}, func() {
		close(done)
	}, provider.TextToSpeechOptions{OutputFormat: format})
	if err != nil {
		s.logger.Warnw("audiobridge: tts stream open failed", "callId", s.callID, "error", err)
		return
	}

	s.mu.Lock()
	s.ttsStream = stream
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.ttsStream == stream {
		s.ttsStream = nil
	}
	s.mu.Unlock()
}

// ttsOutputFormatLocked picks an output format matching the inbound leg
// (spec §4.2: "never MP3 to an active call leg"). Caller must hold s.mu.
func (s *Session) ttsOutputFormatLocked() string {
	switch s.sourceFormat.Codec {
	case "mulaw":
		return "mulaw-8k"
	case "alaw":
		return "alaw-8k"
	default:
		return "pcm-16k"
	}
}
