// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package provider

import "context"

// SubmitSpeechToTextRequest wraps a WAV blob for async transcription
// (spec §6). The client timeout is enforced by the caller (10s, §4.2).
type SubmitSpeechToTextRequest struct {
	Audio           []byte
	AudioFormat     string // "wav"
	SampleRate      int
	CallID          string
	OutputLanguages []string
	WebhookURL      string
	Metadata        map[string]interface{}
}

// SubmitSpeechToTextResult carries the provider's correlation id.
type SubmitSpeechToTextResult struct {
	RequestID string
}

// SpeechToTextResult is the shape of the webhook callback the STT
// Correlator (C3) receives (spec §4.3).
type SpeechToTextResult struct {
	RequestID string
	CallID    string
	Text      string
	Language  string
	IsFinal   bool
}

// SpeechToText is the external speech-to-text collaborator.
type SpeechToText interface {
	SubmitAsync(ctx context.Context, req SubmitSpeechToTextRequest) (SubmitSpeechToTextResult, error)
}

// TextToSpeechOptions configures a streaming synthesis request.
type TextToSpeechOptions struct {
	OutputFormat string // "mulaw-8k", "alaw-8k", "pcm-16k" — never mp3 to a live leg
}

// TextToSpeechStream is a live synthesis handle: audio frames are
// delivered to onChunk as they arrive, onDone fires once, and Close
// aborts the stream early.
type TextToSpeechStream interface {
	Close() error
}

// TextToSpeech is the external text-to-speech collaborator.
type TextToSpeech interface {
	StreamRealTime(
		ctx context.Context,
		text string,
		voiceAgentID string,
		onChunk func(frame []byte),
		onDone func(),
		opts TextToSpeechOptions,
	) (TextToSpeechStream, error)
}

// ConversationTurn is one turn of context kept for a session (spec §3/§4.2).
type ConversationTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// ConversationLLM is the collaborator that turns a transcript into a
// reply (spec §4.2's LLM.generateConversationalResponse).
type ConversationLLM interface {
	GenerateConversationalResponse(ctx context.Context, text, voiceAgentID string, context []ConversationTurn) (string, error)
}
