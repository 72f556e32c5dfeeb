// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_transformer_google implements provider.TextToSpeech
// via Google Cloud's streaming Text-to-Speech API, grounded on the
// client-option construction in
// api/assistant-api/internal/transformer/google/google.go
// (credentials, voice defaults) and generalized from a single-shot
// option builder to a live streaming handle.
package internal_transformer_google

import (
	"context"
	"fmt"
	"io"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

const defaultVoice = "en-US-Chirp-HD-F"

// TextToSpeech implements provider.TextToSpeech via
// texttospeech.StreamingSynthesizeClient.
type TextToSpeech struct {
	newClient func(ctx context.Context) (*texttospeech.Client, error)
	logger    logging.Logger
}

// New constructs a Google-backed TextToSpeech. clientOpts assembles API
// key / service-account credentials from config, the same shape
// google.golang.org/api/option expects everywhere else in this module.
func New(clientOpts []option.ClientOption, logger logging.Logger) *TextToSpeech {
	return &TextToSpeech{
		newClient: func(ctx context.Context) (*texttospeech.Client, error) {
			return texttospeech.NewClient(ctx, clientOpts...)
		},
		logger: logger,
	}
}

// stream wraps the gRPC streaming handle so Close can abort synthesis
// early (spec §4.2: "track it for cleanup").
type stream struct {
	cancel context.CancelFunc
	client *texttospeech.Client
}

func (s *stream) Close() error {
	s.cancel()
	return s.client.Close()
}

// StreamRealTime opens a Google TTS streaming synthesis request and
// pumps decoded audio frames to onChunk as they arrive, matching the
// inbound leg's sample format via opts.OutputFormat (spec §4.2 "TTS
// streaming": never MP3 to a live leg).
func (t *TextToSpeech) StreamRealTime(
	ctx context.Context,
	text string,
	voiceAgentID string,
	onChunk func(frame []byte),
	onDone func(),
	opts provider.TextToSpeechOptions,
) (provider.TextToSpeechStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	client, err := t.newClient(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("internal_transformer_google: new client: %w", err)
	}

	synth, err := client.StreamingSynthesize(streamCtx)
	if err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("internal_transformer_google: open stream: %w", err)
	}

	cfg := &texttospeechpb.StreamingSynthesizeConfig{
		Voice: &texttospeechpb.VoiceSelectionParams{Name: defaultVoice},
		StreamingAudioConfig: &texttospeechpb.StreamingAudioConfig{
			AudioEncoding:   audioEncodingFor(opts.OutputFormat),
			SampleRateHertz: sampleRateFor(opts.OutputFormat),
		},
	}
	if err := synth.Send(&texttospeechpb.StreamingSynthesizeRequest{
		StreamingRequest: &texttospeechpb.StreamingSynthesizeRequest_StreamingConfig{StreamingConfig: cfg},
	}); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("internal_transformer_google: send config: %w", err)
	}
	if err := synth.Send(&texttospeechpb.StreamingSynthesizeRequest{
		StreamingRequest: &texttospeechpb.StreamingSynthesizeRequest_Input{
			Input: &texttospeechpb.StreamingSynthesisInput{
				InputSource: &texttospeechpb.StreamingSynthesisInput_Text{Text: text},
			},
		},
	}); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("internal_transformer_google: send text: %w", err)
	}
	if err := synth.CloseSend(); err != nil {
		t.logger.Warnw("internal_transformer_google: close send failed", "voiceAgentId", voiceAgentID, "error", err)
	}

	go func() {
		defer onDone()
		for {
			resp, err := synth.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				if streamCtx.Err() == nil {
					t.logger.Warnw("internal_transformer_google: recv failed", "voiceAgentId", voiceAgentID, "error", err)
				}
				return
			}
			if audio := resp.GetAudioContent(); len(audio) > 0 {
				onChunk(audio)
			}
		}
	}()

	return &stream{cancel: cancel, client: client}, nil
}

func audioEncodingFor(outputFormat string) texttospeechpb.AudioEncoding {
	switch outputFormat {
	case "mulaw-8k":
		return texttospeechpb.AudioEncoding_MULAW
	case "alaw-8k":
		return texttospeechpb.AudioEncoding_ALAW
	default:
		return texttospeechpb.AudioEncoding_PCM
	}
}

func sampleRateFor(outputFormat string) int32 {
	switch outputFormat {
	case "mulaw-8k", "alaw-8k":
		return 8000
	default:
		return 16000
	}
}
