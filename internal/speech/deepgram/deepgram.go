// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_transformer_deepgram implements provider.SpeechToText
// against Deepgram's prerecorded transcription API, submitted
// asynchronously with a callback URL so the result correlates back
// through the STT Correlator (spec §4.3) instead of blocking the caller.
// Option defaults (model, encoding, sample rate) match
// api/assistant-api/internal/transformer/deepgram/deepgram_test.go's
// asserted configuration.
package internal_transformer_deepgram

import (
	"bytes"
	"context"
	"fmt"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/prerecorded"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

const (
	defaultModel      = "nova"
	defaultLanguage   = "en-US"
	defaultEncoding   = "linear16"
	defaultSampleRate = 16000
)

// SpeechToText implements provider.SpeechToText via Deepgram's
// prerecorded ("batch") API in async/callback mode: submit returns
// immediately with a request id, and Deepgram POSTs the transcript to
// the webhook URL carried on the request.
type SpeechToText struct {
	client *prerecorded.Client
	logger logging.Logger
}

// New constructs a Deepgram-backed SpeechToText from an API key.
func New(apiKey string, logger logging.Logger) (*SpeechToText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("internal_transformer_deepgram: api key required")
	}
	client := prerecorded.New(apiKey, prerecorded.ClientOptions{})
	return &SpeechToText{client: client, logger: logger}, nil
}

// SubmitAsync uploads the WAV blob for transcription with Callback set
// to req.WebhookURL (spec §6: "submitSpeechToTextAsync(...) ->
// {request_id}"). The 10s client timeout is enforced by the caller via
// ctx (audiobridge.Session.submitAsync).
func (s *SpeechToText) SubmitAsync(ctx context.Context, req provider.SubmitSpeechToTextRequest) (provider.SubmitSpeechToTextResult, error) {
	if req.WebhookURL == "" {
		return provider.SubmitSpeechToTextResult{}, &provider.ProviderError{
			Kind:    provider.ErrorKindPermanent,
			Message: "internal_transformer_deepgram: missing webhook url, cannot submit async",
		}
	}

	opts := interfaces.PreRecordedTranscriptionOptions{
		Model:       defaultModel,
		Language:    firstNonEmpty(requestLanguage(req), defaultLanguage),
		Encoding:    defaultEncoding,
		SampleRate:  defaultSampleRate,
		Channels:    1,
		SmartFormat: true,
		Punctuate:   true,
		Callback:    req.WebhookURL,
	}

	res, err := s.client.FromStream(ctx, bytes.NewReader(req.Audio), opts)
	if err != nil {
		return provider.SubmitSpeechToTextResult{}, classify(err)
	}
	if res.RequestID == "" {
		return provider.SubmitSpeechToTextResult{}, fmt.Errorf("internal_transformer_deepgram: submitAsync: empty request id in response")
	}
	return provider.SubmitSpeechToTextResult{RequestID: res.RequestID}, nil
}

func requestLanguage(req provider.SubmitSpeechToTextRequest) string {
	if len(req.OutputLanguages) > 0 {
		return req.OutputLanguages[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// classify maps a Deepgram SDK error to the provider error kinds (spec
// §7). The SDK's batch client does not expose a structured status code
// on its error type, so every submit failure is treated as transient
// (spec §7 "Provider Transient": timeout, 5xx, 429) — the next audio
// window's submission will simply retry with fresh audio.
func classify(err error) error {
	return &provider.ProviderError{
		Kind:    provider.ErrorKindTransient,
		Message: "internal_transformer_deepgram: request failed",
		Err:     err,
	}
}
