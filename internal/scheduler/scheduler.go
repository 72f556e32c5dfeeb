// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package scheduler owns the call queue (spec §4.7): it admits contacts
// into QueueEntry rows, dispatches them under per-campaign concurrency
// caps and pacing, and reacts to terminal call dispositions by consulting
// the Retry Planner.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/voicecampaign/internal/callstore"
	"github.com/rapidaai/voicecampaign/internal/eventrouter"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/rapidaai/voicecampaign/internal/provider"
	"github.com/rapidaai/voicecampaign/internal/retryplanner"
)

// BatchOptions configures scheduleBatch, merged over the defaults named
// in spec §4.7.
type BatchOptions struct {
	MaxConcurrent     int
	CallDelayMs       int // 0 means no stagger; a negative value selects the default
	UseAmd            bool
	MaxRetries        int
	RetryDelayMinutes int
	RetryOn           []string
}

// DefaultBatchOptions mirrors spec §4.7's merge defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxConcurrent:     5,
		CallDelayMs:       2000,
		UseAmd:            true,
		MaxRetries:        3,
		RetryDelayMinutes: 60,
		RetryOn:           []string{model.CallStatusBusy, model.CallStatusNoAnswer, model.CallStatusFailed},
	}
}

func mergeOptions(opts BatchOptions) BatchOptions {
	d := DefaultBatchOptions()
	if opts.MaxConcurrent > 0 {
		d.MaxConcurrent = opts.MaxConcurrent
	}
	if opts.CallDelayMs >= 0 {
		d.CallDelayMs = opts.CallDelayMs
	}
	d.UseAmd = opts.UseAmd || d.UseAmd
	if opts.MaxRetries > 0 {
		d.MaxRetries = opts.MaxRetries
	}
	if opts.RetryDelayMinutes > 0 {
		d.RetryDelayMinutes = opts.RetryDelayMinutes
	}
	if len(opts.RetryOn) > 0 {
		d.RetryOn = opts.RetryOn
	}
	return d
}

// BatchResult is scheduleBatch's return value (spec §4.7).
type BatchResult struct {
	ScheduledCalls int
	QueuedCalls    int
	Options        BatchOptions
}

// ProcessResult is processQueue's return value (spec §4.7).
type ProcessResult struct {
	Processed int
	Initiated int
	Retries   int
	Failed    int
}

// Scheduler is the sole writer of QueueEntry transitions (spec §5: "the
// scheduler is single-writer per campaign").
type Scheduler struct {
	store     callstore.Store
	telephony provider.Telephony
	router    *eventrouter.Router
	locker    CampaignLocker
	logger    logging.Logger
	metrics   *health.Metrics

	publicURL       string
	defaultCallerID string

	// dispatchConcurrency bounds how many telephony placements run at
	// once within a single processQueue pass (spec §5: "may fan out
	// telephony placement concurrently").
	dispatchConcurrency int
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLocker overrides the default in-process CampaignLocker.
func WithLocker(l CampaignLocker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithDispatchConcurrency bounds concurrent telephony RPCs per tick.
func WithDispatchConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.dispatchConcurrency = n
		}
	}
}

// New constructs a Scheduler.
func New(store callstore.Store, telephony provider.Telephony, router *eventrouter.Router, logger logging.Logger, metrics *health.Metrics, publicURL, defaultCallerID string, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:               store,
		telephony:           telephony,
		router:              router,
		locker:              NewMutexLocker(),
		logger:              logger,
		metrics:             metrics,
		publicURL:           publicURL,
		defaultCallerID:     defaultCallerID,
		dispatchConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleBatch admits contacts into the queue for a campaign and
// triggers one immediate dispatch pass (spec §4.7).
func (s *Scheduler) ScheduleBatch(ctx context.Context, campaignID uint64, contactIDs []uint64, opts BatchOptions) (BatchResult, error) {
	campaign, err := s.store.FindCampaign(ctx, campaignID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scheduler: scheduleBatch: campaign %d: %w", campaignID, err)
	}

	merged := mergeOptions(opts)
	contacts, err := s.store.FindContacts(ctx, contactIDs)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scheduler: scheduleBatch: contacts: %w", err)
	}

	now := time.Now().UTC()
	queued := 0
	for i, contact := range contacts {
		entry := &model.QueueEntry{
			CampaignID:    campaignID,
			ContactID:     contact.Id,
			Phone:         contact.Phone,
			CallerID:      campaign.CallerID,
			PhoneNumberID: campaign.PhoneNumberID,
			Status:        model.QueueStatusScheduled,
			ScheduledTime: now.Add(time.Duration(i*merged.CallDelayMs) * time.Millisecond),
			Attempts:      0,
			MaxAttempts:   merged.MaxRetries,
			UseAmd:        merged.UseAmd,
		}
		if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
			s.logger.Errorw("scheduler: create queue entry failed", "campaignId", campaignID, "contactId", contact.Id, "error", err)
			continue
		}
		queued++
	}

	result := BatchResult{ScheduledCalls: queued, QueuedCalls: queued, Options: merged}

	if _, err := s.ProcessQueue(ctx, &campaignID); err != nil {
		s.logger.Warnw("scheduler: immediate dispatch after scheduleBatch failed", "campaignId", campaignID, "error", err)
	}

	return result, nil
}

// ProcessQueue admits the next wave of QueueEntries into flight (spec
// §4.7). When campaignID is nil, every active campaign is processed.
func (s *Scheduler) ProcessQueue(ctx context.Context, campaignID *uint64) (ProcessResult, error) {
	var campaigns []*model.Campaign
	if campaignID != nil {
		c, err := s.store.FindCampaign(ctx, *campaignID)
		if err != nil {
			return ProcessResult{}, fmt.Errorf("scheduler: processQueue: campaign %d: %w", *campaignID, err)
		}
		campaigns = []*model.Campaign{c}
	} else {
		active, err := s.store.FindActiveCampaigns(ctx)
		if err != nil {
			return ProcessResult{}, fmt.Errorf("scheduler: processQueue: active campaigns: %w", err)
		}
		campaigns = active
	}

	var total ProcessResult
	for _, campaign := range campaigns {
		if !campaign.IsActive() {
			continue
		}
		r, err := s.processCampaign(ctx, campaign)
		if err != nil {
			s.logger.Errorw("scheduler: processQueue: campaign failed", "campaignId", campaign.Id, "error", err)
			continue
		}
		total.Processed += r.Processed
		total.Initiated += r.Initiated
		total.Retries += r.Retries
		total.Failed += r.Failed
	}
	return total, nil
}

func (s *Scheduler) processCampaign(ctx context.Context, campaign *model.Campaign) (ProcessResult, error) {
	unlock, err := s.locker.Lock(ctx, campaign.Id)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("scheduler: lock campaign %d: %w", campaign.Id, err)
	}

	now := time.Now().UTC()
	if !withinCallHours(campaign, now) {
		unlock()
		return ProcessResult{}, nil
	}

	inProgress, err := s.store.CountQueueEntries(ctx,
		callstore.Eq("campaign_id", campaign.Id),
		callstore.Eq("status", model.QueueStatusInProgress),
	)
	if err != nil {
		unlock()
		return ProcessResult{}, fmt.Errorf("scheduler: count in-progress: %w", err)
	}

	slots := int(int64(campaign.MaxConcurrentCalls) - inProgress)
	if slots <= 0 {
		unlock()
		return ProcessResult{}, nil
	}

	entries, err := s.store.FindQueueEntries(ctx, nil, slots,
		callstore.Eq("campaign_id", campaign.Id),
		callstore.In("status", []string{model.QueueStatusScheduled, model.QueueStatusRetry}),
		callstore.LessOrEqual("scheduled_time", now),
		callstore.Raw("attempts < max_attempts"),
	)
	if err != nil {
		unlock()
		return ProcessResult{}, fmt.Errorf("scheduler: find dispatchable entries: %w", err)
	}

	claimed := make([]*model.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if err := s.store.UpdateQueueEntry(ctx, entry.Id, map[string]interface{}{
			"status":   model.QueueStatusInProgress,
			"attempts": entry.Attempts + 1,
		}); err != nil {
			s.logger.Warnw("scheduler: claim queue entry failed", "queueId", entry.Id, "error", err)
			continue
		}
		entry.Attempts++
		claimed = append(claimed, entry)
	}
	// QueueEntry transitions above are serialised by the campaign lock
	// (spec §5). The lock is released before telephony I/O so the
	// dispatch task never holds it across an RPC.
	unlock()

	result := ProcessResult{Processed: len(claimed)}
	if len(claimed) == 0 {
		return result, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.dispatchConcurrency)

	for _, entry := range claimed {
		entry := entry
		group.Go(func() error {
			if s.placeCall(gctx, campaign, entry) {
				result.Initiated++
			} else {
				result.Retries++
			}
			return nil
		})
	}
	_ = group.Wait()

	return result, nil
}

func (s *Scheduler) placeCall(ctx context.Context, campaign *model.Campaign, entry *model.QueueEntry) bool {
	webhookURL := s.publicURL
	if campaign.WebhookURL != nil && *campaign.WebhookURL != "" {
		webhookURL = *campaign.WebhookURL
	}
	callerID := entry.CallerID
	if callerID == "" {
		callerID = s.defaultCallerID
	}

	placeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.telephony.PlaceCall(placeCtx, provider.PlaceCallRequest{
		To:            entry.Phone,
		From:          callerID,
		WebhookURL:    webhookURL,
		PhoneNumberID: valueOrEmpty(entry.PhoneNumberID),
		Metadata: map[string]interface{}{
			"queueEntryId": entry.Id,
			"campaignId":   campaign.Id,
			"useAmd":       entry.UseAmd,
		},
	})
	if err != nil {
		s.logger.Warnw("scheduler: place call failed", "queueId", entry.Id, "error", err)
		s.metrics.IncrCallsFailed()
		s.handleDispatchFailure(context.Background(), campaign, entry, err)
		return false
	}

	now := time.Now().UTC()
	if err := s.store.UpdateQueueEntry(ctx, entry.Id, map[string]interface{}{
		"call_sid":            res.ID,
		"last_attempt_status": "dispatched",
		"last_attempt_time":   now,
	}); err != nil {
		s.logger.Warnw("scheduler: persist call sid failed", "queueId", entry.Id, "error", err)
	}

	if err := s.store.CreateCall(ctx, &model.CallRow{
		CallSid:    res.ID,
		CampaignID: &campaign.Id,
		ContactID:  &entry.ContactID,
		Direction:  model.DirectionOutbound,
		Status:     model.CallStatusInitiated,
		From:       callerID,
		To:         entry.Phone,
		StartTime:  now,
	}); err != nil {
		s.logger.Warnw("scheduler: create call row failed", "callSid", res.ID, "error", err)
	}

	s.metrics.IncrCallsPlaced()
	s.router.Publish(eventrouter.Event{
		Type:       "call.started",
		CampaignID: &campaign.Id,
		CallSid:    res.ID,
		Payload:    map[string]interface{}{"queueEntryId": entry.Id},
	})
	return true
}

// handleDispatchFailure delegates a failed placeCall RPC to the Retry
// Planner as if the call had terminated with status=failed (spec §4.7:
// "If the telephony call fails, invoke Retry Planner").
func (s *Scheduler) handleDispatchFailure(ctx context.Context, campaign *model.Campaign, entry *model.QueueEntry, placeErr error) {
	decision := retryplanner.Plan(entry, campaign, model.CallStatusFailed, time.Now().UTC(), map[string]interface{}{
		"reason": placeErr.Error(),
	})
	if decision.Patch["status"] == model.QueueStatusRetry {
		s.metrics.IncrRetriesPlanned()
	}
	if err := s.store.UpdateQueueEntry(ctx, entry.Id, decision.Patch); err != nil {
		s.logger.Errorw("scheduler: persist dispatch-failure retry decision failed", "queueId", entry.Id, "error", err)
	}
}

// CancelParams scopes a cancelScheduledCalls request (spec §4.7).
type CancelParams struct {
	CampaignID *uint64
	ContactIDs []uint64
	QueueIDs   []uint64
}

// CancelScheduledCalls transitions matching scheduled/retry entries to
// cancelled. In-progress calls are untouched (spec §4.7).
func (s *Scheduler) CancelScheduledCalls(ctx context.Context, params CancelParams) (int, error) {
	preds := []callstore.Predicate{
		callstore.In("status", []string{model.QueueStatusScheduled, model.QueueStatusRetry}),
	}
	if params.CampaignID != nil {
		preds = append(preds, callstore.Eq("campaign_id", *params.CampaignID))
	}
	if len(params.ContactIDs) > 0 {
		preds = append(preds, callstore.In("contact_id", params.ContactIDs))
	}
	if len(params.QueueIDs) > 0 {
		preds = append(preds, callstore.In("id", params.QueueIDs))
	}

	entries, err := s.store.FindQueueEntries(ctx, nil, 0, preds...)
	if err != nil {
		return 0, fmt.Errorf("scheduler: cancelScheduledCalls: find entries: %w", err)
	}

	cancelled := 0
	for _, entry := range entries {
		if err := s.store.UpdateQueueEntry(ctx, entry.Id, map[string]interface{}{"status": model.QueueStatusCancelled}); err != nil {
			s.logger.Warnw("scheduler: cancel queue entry failed", "queueId", entry.Id, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// OnCallCompleted is the Reconciler's entry point for a terminal call
// disposition (spec §4.7). It is idempotent: a second call for the same
// callSid after the entry has already left in-progress is a no-op
// (spec §8 property 6).
func (s *Scheduler) OnCallCompleted(ctx context.Context, callSid, status string, details map[string]interface{}) error {
	entry, err := s.store.FindQueueEntryByCallSid(ctx, callSid)
	if err != nil {
		s.logger.Errorw("scheduler: onCallCompleted: no queue entry for callSid", "callSid", callSid)
		return nil
	}
	if entry.Status != model.QueueStatusInProgress {
		return nil
	}

	campaign, err := s.store.FindCampaign(ctx, entry.CampaignID)
	if err != nil {
		return fmt.Errorf("scheduler: onCallCompleted: campaign %d: %w", entry.CampaignID, err)
	}

	unlock, err := s.locker.Lock(ctx, campaign.Id)
	if err != nil {
		return fmt.Errorf("scheduler: onCallCompleted: lock: %w", err)
	}
	defer unlock()

	decision := retryplanner.Plan(entry, campaign, status, time.Now().UTC(), details)
	if decision.Patch["status"] == model.QueueStatusRetry {
		s.metrics.IncrRetriesPlanned()
	} else if decision.Patch["status"] == model.QueueStatusCompleted {
		s.metrics.IncrCallsCompleted()
	} else {
		s.metrics.IncrCallsFailed()
	}

	if err := s.store.UpdateQueueEntry(ctx, entry.Id, decision.Patch); err != nil {
		return fmt.Errorf("scheduler: onCallCompleted: update queue entry %d: %w", entry.Id, err)
	}
	return nil
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
