// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package provider declares the collaborator interfaces the core depends
// on (spec §6): the telephony provider, the speech provider, and the
// conversational LLM. Concrete adapters live in internal/telephony/*,
// internal/speech/* and internal/conversation/*; this package has no
// implementation, only seams. The outbound-webhook sink is
// eventrouter.WebhookSink, not an interface here.
package provider

import "context"

// PlaceCallRequest is the outbound call request passed to Telephony.PlaceCall.
type PlaceCallRequest struct {
	To            string
	From          string
	WebhookURL    string
	Metadata      map[string]interface{}
	PhoneNumberID string
}

// PlaceCallResult carries the provider-assigned call id (spec: "Call SID").
type PlaceCallResult struct {
	ID string
}

// CallDetails is the provider's point-in-time view of a call.
type CallDetails struct {
	ID       string
	Status   string
	Duration int
}

// RecordingDetails is the provider's point-in-time view of a recording.
type RecordingDetails struct {
	ID       string
	CallID   string
	Status   string
	Duration int
	URL      string
}

// Telephony is the external telephony provider collaborator (spec §6).
type Telephony interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	GetCallDetails(ctx context.Context, callID string) (CallDetails, error)
	GetRecordingDetails(ctx context.Context, recordingID string) (RecordingDetails, error)
}

// LifecycleEvent is a telephony lifecycle event delivered to the
// Reconciler (spec §4.6): call.started, call.answered, call.ended,
// recording.started, recording.ended.
type LifecycleEvent struct {
	Type       string
	CallSid    string
	CampaignID *uint64
	Direction  string
	From       string
	To         string
	Status     string
	Duration   int
	RecordingSid string
	RecordingURL string
	AmdResult    string
	AmdDurationMS int
}
