// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_twilio_telephony adapts the Twilio REST API to the
// provider.Telephony collaborator interface (spec §6), grounded on the
// teacher's client construction in
// api/assistant-api/internal/telephony/twilio.
package internal_twilio_telephony

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

// Telephony implements provider.Telephony against a single Twilio
// account, built on twl.Client()/ClientParam() and extended to place
// calls and fetch call/recording details rather than only build a
// client.
type Telephony struct {
	client *twilio.RestClient
	logger logging.Logger
}

// New constructs a Twilio-backed Telephony from an account SID/auth
// token pair (spec §6 Configuration table's telephony credentials).
func New(accountSID, authToken string, logger logging.Logger) (*Telephony, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("internal_twilio_telephony: accountSid/authToken required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Telephony{client: client, logger: logger}, nil
}

// PlaceCall creates an outbound call via Twilio's Voice API (spec §6).
func (t *Telephony) PlaceCall(ctx context.Context, req provider.PlaceCallRequest) (provider.PlaceCallResult, error) {
	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	if req.WebhookURL != "" {
		params.SetUrl(req.WebhookURL)
		params.SetStatusCallback(req.WebhookURL)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}

	resp, err := t.client.Api.CreateCall(params)
	if err != nil {
		return provider.PlaceCallResult{}, classify(err)
	}
	if resp.Sid == nil {
		return provider.PlaceCallResult{}, fmt.Errorf("internal_twilio_telephony: placeCall: empty call sid in response")
	}
	return provider.PlaceCallResult{ID: *resp.Sid}, nil
}

// GetCallDetails fetches a call's point-in-time status from Twilio.
func (t *Telephony) GetCallDetails(ctx context.Context, callID string) (provider.CallDetails, error) {
	resp, err := t.client.Api.FetchCall(callID, &api.FetchCallParams{})
	if err != nil {
		return provider.CallDetails{}, classify(err)
	}
	details := provider.CallDetails{ID: callID}
	if resp.Status != nil {
		details.Status = *resp.Status
	}
	if resp.Duration != nil {
		fmt.Sscanf(*resp.Duration, "%d", &details.Duration)
	}
	return details, nil
}

// GetRecordingDetails fetches a recording's point-in-time status.
func (t *Telephony) GetRecordingDetails(ctx context.Context, recordingID string) (provider.RecordingDetails, error) {
	resp, err := t.client.Api.FetchRecording(recordingID, &api.FetchRecordingParams{})
	if err != nil {
		return provider.RecordingDetails{}, classify(err)
	}
	details := provider.RecordingDetails{ID: recordingID}
	if resp.CallSid != nil {
		details.CallID = *resp.CallSid
	}
	if resp.Status != nil {
		details.Status = *resp.Status
	}
	if resp.Duration != nil {
		fmt.Sscanf(*resp.Duration, "%d", &details.Duration)
	}
	if resp.MediaUrl != nil {
		details.URL = *resp.MediaUrl
	}
	return details, nil
}

// classify wraps a Twilio SDK error with the provider error kind (spec
// §7). twilio-go surfaces REST errors as *client.RestError carrying the
// HTTP status; anything else (network failure, timeout) is treated as
// transient.
func classify(err error) error {
	if restErr, ok := err.(*twilioclient.RestError); ok {
		return &provider.ProviderError{
			Kind:    provider.ClassifyHTTPStatus(restErr.Status),
			Status:  restErr.Status,
			Message: "internal_twilio_telephony: request failed",
			Err:     err,
		}
	}
	return &provider.ProviderError{
		Kind:    provider.ErrorKindTransient,
		Message: "internal_twilio_telephony: request failed",
		Err:     err,
	}
}
