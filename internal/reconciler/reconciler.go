// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package reconciler is the Call Store's writer for telephony lifecycle
// events (spec §4.6): it upserts CallRow/CallRecording rows, republishes
// a normalized event onto the Event Router, and hands call.ended to the
// Scheduler through its CallCompletionHandler.
package reconciler

import (
	"context"
	"time"

	"github.com/rapidaai/voicecampaign/internal/callstore"
	"github.com/rapidaai/voicecampaign/internal/eventrouter"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

// CallCompletionHandler is the Scheduler's onCallCompleted entry point
// (spec §4.6: "If the row has a campaignId, invoke
// Scheduler.onCallCompleted(callSid, status, details)"). Declared here
// rather than imported from package scheduler so the dependency runs
// one way only: scheduler knows nothing about reconciler.
type CallCompletionHandler func(ctx context.Context, callSid, status string, details map[string]interface{}) error

// Reconciler is the single writer of CallRow/CallRecording state in
// response to provider lifecycle events (spec §4.6).
type Reconciler struct {
	store       callstore.Store
	router      *eventrouter.Router
	logger      logging.Logger
	onCompleted CallCompletionHandler
}

// New constructs a Reconciler wired to the shared store and router.
// onCompleted may be nil (e.g. in tests exercising the store writes
// alone); production wiring passes Scheduler.OnCallCompleted.
func New(store callstore.Store, router *eventrouter.Router, logger logging.Logger, onCompleted CallCompletionHandler) *Reconciler {
	return &Reconciler{store: store, router: router, logger: logger, onCompleted: onCompleted}
}

// HandleLifecycleEvent processes a single telephony event (spec §4.6).
// Call events are keyed by callSid: applying the same one twice updates
// the same CallRow rather than creating a duplicate (each application
// appends another entry to the row's metadata events). recording.started
// inserts a CallRecording, so a repeat of it fails on the recordingSid
// instead of creating a second row.
func (r *Reconciler) HandleLifecycleEvent(ctx context.Context, evt provider.LifecycleEvent) error {
	switch evt.Type {
	case "call.started":
		return r.handleCallStarted(ctx, evt)
	case "call.answered":
		return r.handleCallAnswered(ctx, evt)
	case "call.ended":
		return r.handleCallEnded(ctx, evt)
	case "recording.started":
		return r.handleRecordingStarted(ctx, evt)
	case "recording.ended":
		return r.handleRecordingEnded(ctx, evt)
	default:
		r.logger.Warnw("reconciler: unrecognized event type", "type", evt.Type, "callSid", evt.CallSid)
		return nil
	}
}

// handleCallStarted upserts the CallRow (spec §4.6: existing row moves to
// in-progress; a missing one is created outright, which is the common
// case when the Scheduler didn't pre-create it — e.g. an inbound call).
func (r *Reconciler) handleCallStarted(ctx context.Context, evt provider.LifecycleEvent) error {
	now := time.Now().UTC()
	if existing, err := r.store.FindCallBySid(ctx, evt.CallSid); err == nil {
		patch := map[string]interface{}{
			"status":     model.CallStatusInProgress,
			"start_time": now,
			"metadata":   model.AppendEvent(existing.Metadata, "call.started", now.Format(time.RFC3339), nil),
		}
		if err := r.store.UpdateCallBySid(ctx, evt.CallSid, patch); err != nil {
			return err
		}
		r.republish(evt)
		return nil
	}

	row := &model.CallRow{
		CallSid:    evt.CallSid,
		CampaignID: evt.CampaignID,
		Direction:  firstNonEmpty(evt.Direction, model.DirectionOutbound),
		Status:     model.CallStatusInProgress,
		From:       evt.From,
		To:         evt.To,
		StartTime:  now,
	}
	row.Metadata = model.AppendEvent(nil, "call.started", now.Format(time.RFC3339), nil)

	if err := r.store.CreateCall(ctx, row); err != nil {
		return err
	}
	r.republish(evt)
	return nil
}

func (r *Reconciler) handleCallAnswered(ctx context.Context, evt provider.LifecycleEvent) error {
	now := time.Now().UTC()
	patch := map[string]interface{}{
		"status":      model.CallStatusAnswered,
		"answer_time": now,
	}
	if evt.AmdResult != "" {
		patch["amd_result"] = evt.AmdResult
		patch["amd_duration"] = evt.AmdDurationMS
	}
	if err := r.store.UpdateCallBySid(ctx, evt.CallSid, patch); err != nil {
		return err
	}
	r.appendEvent(ctx, evt.CallSid, "call.answered", now, map[string]interface{}{"amdResult": evt.AmdResult})
	r.republish(evt)
	return nil
}

func (r *Reconciler) handleCallEnded(ctx context.Context, evt provider.LifecycleEvent) error {
	now := time.Now().UTC()
	status := evt.Status
	if status == "" {
		status = model.CallStatusCompleted
	}
	patch := map[string]interface{}{
		"status":   status,
		"end_time": now,
		"duration": evt.Duration,
	}
	if err := r.store.UpdateCallBySid(ctx, evt.CallSid, patch); err != nil {
		return err
	}
	r.appendEvent(ctx, evt.CallSid, "call.ended", now, map[string]interface{}{"status": status, "duration": evt.Duration})
	r.republish(evt)

	campaignID := evt.CampaignID
	if campaignID == nil {
		if row, err := r.store.FindCallBySid(ctx, evt.CallSid); err == nil {
			campaignID = row.CampaignID
		}
	}
	if campaignID != nil && r.onCompleted != nil {
		if err := r.onCompleted(ctx, evt.CallSid, status, map[string]interface{}{
			"duration":     evt.Duration,
			"recordingUrl": evt.RecordingURL,
		}); err != nil {
			r.logger.Warnw("reconciler: onCallCompleted failed", "callSid", evt.CallSid, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) handleRecordingStarted(ctx context.Context, evt provider.LifecycleEvent) error {
	rec := &model.CallRecording{
		RecordingSid: evt.RecordingSid,
		CallSid:      evt.CallSid,
		Status:       model.RecordingStatusInProgress,
		StartTime:    time.Now().UTC(),
	}
	if err := r.store.CreateRecording(ctx, rec); err != nil {
		return err
	}
	r.republish(evt)
	return nil
}

func (r *Reconciler) handleRecordingEnded(ctx context.Context, evt provider.LifecycleEvent) error {
	now := time.Now().UTC()
	patch := map[string]interface{}{
		"status":   model.RecordingStatusCompleted,
		"end_time": now,
		"duration": evt.Duration,
	}
	if evt.RecordingURL != "" {
		patch["url"] = evt.RecordingURL
	}
	if err := r.store.UpdateRecordingBySid(ctx, evt.RecordingSid, patch); err != nil {
		return err
	}
	if evt.RecordingURL != "" {
		_ = r.store.UpdateCallBySid(ctx, evt.CallSid, map[string]interface{}{
			"recording_url": evt.RecordingURL,
			"recording_sid": evt.RecordingSid,
		})
	}
	r.republish(evt)
	return nil
}

func (r *Reconciler) appendEvent(ctx context.Context, callSid, eventType string, at time.Time, details map[string]interface{}) {
	row, err := r.store.FindCallBySid(ctx, callSid)
	if err != nil {
		r.logger.Warnw("reconciler: append event: lookup failed", "callSid", callSid, "error", err)
		return
	}
	updated := model.AppendEvent(row.Metadata, eventType, at.Format(time.RFC3339), details)
	if err := r.store.UpdateCallBySid(ctx, callSid, map[string]interface{}{"metadata": updated}); err != nil {
		r.logger.Warnw("reconciler: append event: update failed", "callSid", callSid, "error", err)
	}
}

// republish re-emits the normalized event through the Event Router. It
// always publishes — to the unfiltered topic, and additionally to the
// campaign-scoped topic when evt.CampaignID is set (spec §4.5/§4.6: "The
// reconciler then re-publishes the same event through the Event Router
// (unfiltered and campaign-scoped if applicable)"). A call with no
// campaign (inbound, or any call the Scheduler didn't originate) still
// reaches unfiltered subscribers.
func (r *Reconciler) republish(evt provider.LifecycleEvent) {
	r.router.Publish(eventrouter.Event{
		Type:       evt.Type,
		CampaignID: evt.CampaignID,
		CallSid:    evt.CallSid,
		Payload: map[string]interface{}{
			"status":        evt.Status,
			"duration":      evt.Duration,
			"recordingSid":  evt.RecordingSid,
			"recordingUrl":  evt.RecordingURL,
			"amdResult":     evt.AmdResult,
			"amdDurationMs": evt.AmdDurationMS,
		},
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
