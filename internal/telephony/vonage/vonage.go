// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_vonage_telephony is the second provider.Telephony
// implementation, built on the same auth construction pattern as the
// account's existing Vonage integration and exercising the
// replace-directive fork of vonage-go-sdk carried in go.mod.
package internal_vonage_telephony

import (
	"context"
	"fmt"

	vg "github.com/vonage/vonage-go-sdk"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

// Telephony implements provider.Telephony against a single Vonage
// application, authenticated via vg.Auth() with an application id and
// private key (spec §6 credential shape).
type Telephony struct {
	voice  *vg.VoiceClient
	logger logging.Logger
}

// New constructs a Vonage-backed Telephony from an application id and
// its PEM private key.
func New(applicationID string, privateKey []byte, logger logging.Logger) (*Telephony, error) {
	if applicationID == "" || len(privateKey) == 0 {
		return nil, fmt.Errorf("internal_vonage_telephony: applicationId/privateKey required")
	}
	auth, err := vg.CreateAuthFromAppPrivateKey(applicationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("internal_vonage_telephony: auth: %w", err)
	}
	return &Telephony{voice: vg.NewVoiceClient(auth), logger: logger}, nil
}

// PlaceCall creates an outbound call via Vonage's Voice API (spec §6).
func (t *Telephony) PlaceCall(ctx context.Context, req provider.PlaceCallRequest) (provider.PlaceCallResult, error) {
	callReq := vg.CreateCallReq{
		To: []vg.CallTo{
			vg.CallTo{Type: "phone", Number: req.To},
		},
		From:      vg.CallFrom{Type: "phone", Number: req.From},
		AnswerUrl: []string{req.WebhookURL},
		EventUrl:  []string{req.WebhookURL},
	}

	resp, _, err := t.voice.CreateCall(callReq)
	if err != nil {
		return provider.PlaceCallResult{}, classify(err)
	}
	if resp.Uuid == "" {
		return provider.PlaceCallResult{}, fmt.Errorf("internal_vonage_telephony: placeCall: empty call uuid in response")
	}
	return provider.PlaceCallResult{ID: resp.Uuid}, nil
}

// GetCallDetails fetches a call's point-in-time status from Vonage.
func (t *Telephony) GetCallDetails(ctx context.Context, callID string) (provider.CallDetails, error) {
	info, _, err := t.voice.GetCallInfo(callID)
	if err != nil {
		return provider.CallDetails{}, classify(err)
	}
	return provider.CallDetails{
		ID:       callID,
		Status:   info.Status,
		Duration: parseIntOrZero(info.Duration),
	}, nil
}

// GetRecordingDetails always returns an unsupported error: Vonage delivers
// recording metadata via the recording webhook (spec §4.6
// recording.ended), not a dedicated fetch-by-id endpoint, and no lookup
// is attempted here.
func (t *Telephony) GetRecordingDetails(ctx context.Context, recordingID string) (provider.RecordingDetails, error) {
	return provider.RecordingDetails{}, fmt.Errorf("internal_vonage_telephony: getRecordingDetails unsupported for id %s: use the recording.ended webhook payload", recordingID)
}

func classify(err error) error {
	return &provider.ProviderError{
		Kind:    provider.ErrorKindTransient,
		Message: "internal_vonage_telephony: request failed",
		Err:     err,
	}
}

func parseIntOrZero(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
