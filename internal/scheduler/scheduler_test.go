// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rapidaai/voicecampaign/internal/callstore"
	"github.com/rapidaai/voicecampaign/internal/eventrouter"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/rapidaai/voicecampaign/internal/provider"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestStore stands up a real callstore.Store against an in-memory
// sqlite database named after the test, so each test starts empty
// (gorm.io/driver/sqlite is already part of the stack for
// local/dev use) so predicate queries — ordering, status filters, the
// attempts < max_attempts comparison — exercise the genuine SQL path
// instead of a hand-rolled reimplementation of GORM's query builder.
func newTestStore(t *testing.T) callstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Campaign{}, &model.Contact{}, &model.QueueEntry{}, &model.CallRow{}, &model.CallRecording{}))
	return callstore.NewStore(db, logging.NewTestLogger())
}

type fakeTelephony struct {
	mu       sync.Mutex
	placed   int
	failNext bool
}

func (f *fakeTelephony) PlaceCall(ctx context.Context, req provider.PlaceCallRequest) (provider.PlaceCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return provider.PlaceCallResult{}, fmt.Errorf("carrier rejected call")
	}
	f.placed++
	return provider.PlaceCallResult{ID: fmt.Sprintf("CA%d", f.placed)}, nil
}
func (f *fakeTelephony) GetCallDetails(ctx context.Context, callID string) (provider.CallDetails, error) {
	return provider.CallDetails{ID: callID}, nil
}
func (f *fakeTelephony) GetRecordingDetails(ctx context.Context, recordingID string) (provider.RecordingDetails, error) {
	return provider.RecordingDetails{ID: recordingID}, nil
}

func TestScheduler_ConcurrencyCapEnforced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	campaign := &model.Campaign{Id: 1, Status: model.CampaignStatusActive, MaxConcurrentCalls: 3, CallerID: "+1555", Timezone: "UTC"}
	require.NoError(t, storeCreateCampaign(store, campaign))

	contactIDs := make([]uint64, 0, 10)
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, storeCreateContact(store, &model.Contact{Id: i, Phone: fmt.Sprintf("+1555000%04d", i)}))
		contactIDs = append(contactIDs, i)
	}

	telephony := &fakeTelephony{}
	router := eventrouter.New(logging.NewTestLogger())
	s := New(store, telephony, router, logging.NewTestLogger(), health.NewMetrics(), "https://public.example.com", "+1555000000")

	_, err := s.ScheduleBatch(ctx, 1, contactIDs, BatchOptions{MaxConcurrent: 3, CallDelayMs: 0})
	require.NoError(t, err)

	inProgress, err := store.FindQueueEntries(ctx, nil, 0, callstore.Eq("campaign_id", uint64(1)), callstore.Eq("status", model.QueueStatusInProgress))
	require.NoError(t, err)
	scheduled, err := store.FindQueueEntries(ctx, nil, 0, callstore.Eq("campaign_id", uint64(1)), callstore.Eq("status", model.QueueStatusScheduled))
	require.NoError(t, err)
	require.Len(t, inProgress, 3)
	require.Len(t, scheduled, 7)

	// Completing one frees exactly one slot.
	require.NoError(t, s.OnCallCompleted(ctx, *inProgress[0].CallSid, model.CallStatusCompleted, nil))
	_, err = s.ProcessQueue(ctx, uint64Ptr(1))
	require.NoError(t, err)

	inProgress, err = store.FindQueueEntries(ctx, nil, 0, callstore.Eq("campaign_id", uint64(1)), callstore.Eq("status", model.QueueStatusInProgress))
	require.NoError(t, err)
	require.Len(t, inProgress, 3)
}

func TestScheduler_DispatchFailureInvokesRetryPlanner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	campaign := &model.Campaign{Id: 2, Status: model.CampaignStatusActive, MaxConcurrentCalls: 1, RetryDelayMinutes: 1, RetryExponentialFactor: 2, CallerID: "+1555", Timezone: "UTC"}
	require.NoError(t, storeCreateCampaign(store, campaign))
	require.NoError(t, storeCreateContact(store, &model.Contact{Id: 1, Phone: "+15550001111"}))

	telephony := &fakeTelephony{failNext: true}
	router := eventrouter.New(logging.NewTestLogger())
	s := New(store, telephony, router, logging.NewTestLogger(), health.NewMetrics(), "https://public.example.com", "+1555000000")

	_, err := s.ScheduleBatch(ctx, 2, []uint64{1}, BatchOptions{MaxConcurrent: 1, MaxRetries: 3})
	require.NoError(t, err)

	retry, err := store.FindQueueEntries(ctx, nil, 0, callstore.Eq("campaign_id", uint64(2)), callstore.Eq("status", model.QueueStatusRetry))
	require.NoError(t, err)
	require.Len(t, retry, 1)
	require.Equal(t, 1, retry[0].Attempts)
}

func TestScheduler_CancelScheduledCallsSkipsInProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateQueueEntry(ctx, &model.QueueEntry{CampaignID: 3, ContactID: 1, Status: model.QueueStatusScheduled, MaxAttempts: 3}))
	require.NoError(t, store.CreateQueueEntry(ctx, &model.QueueEntry{CampaignID: 3, ContactID: 2, Status: model.QueueStatusInProgress, MaxAttempts: 3}))

	s := New(store, &fakeTelephony{}, eventrouter.New(logging.NewTestLogger()), logging.NewTestLogger(), health.NewMetrics(), "", "")
	n, err := s.CancelScheduledCalls(ctx, CancelParams{CampaignID: uint64Ptr(3)})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	inProgress, err := store.FindQueueEntries(ctx, nil, 0, callstore.Eq("campaign_id", uint64(3)), callstore.Eq("status", model.QueueStatusInProgress))
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
}

func TestScheduler_OnCallCompletedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	campaign := &model.Campaign{Id: 4, Status: model.CampaignStatusActive, MaxConcurrentCalls: 1, RetryDelayMinutes: 1, RetryExponentialFactor: 2, Timezone: "UTC"}
	require.NoError(t, storeCreateCampaign(store, campaign))

	sid := "CA-idempotent"
	require.NoError(t, store.CreateQueueEntry(ctx, &model.QueueEntry{CampaignID: 4, ContactID: 1, Status: model.QueueStatusInProgress, CallSid: &sid, Attempts: 1, MaxAttempts: 3}))

	s := New(store, &fakeTelephony{}, eventrouter.New(logging.NewTestLogger()), logging.NewTestLogger(), health.NewMetrics(), "", "")
	require.NoError(t, s.OnCallCompleted(ctx, sid, model.CallStatusCompleted, nil))

	entry, err := store.FindQueueEntryByCallSid(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, model.QueueStatusCompleted, entry.Status)

	require.NoError(t, s.OnCallCompleted(ctx, sid, model.CallStatusCompleted, nil))
	entry, err = store.FindQueueEntryByCallSid(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, model.QueueStatusCompleted, entry.Status)
}

func uint64Ptr(v uint64) *uint64 { return &v }

// storeCreateCampaign/storeCreateContact exist because Store has no
// generic Create for read-mostly rows the scheduler never mutates.
func storeCreateCampaign(s callstore.Store, c *model.Campaign) error {
	return storeRawCreate(s, c)
}
func storeCreateContact(s callstore.Store, c *model.Contact) error {
	return storeRawCreate(s, c)
}

func storeRawCreate(s callstore.Store, row interface{}) error {
	type dbHolder interface{ DB() *gorm.DB }
	if h, ok := s.(dbHolder); ok {
		return h.DB().Create(row).Error
	}
	return fmt.Errorf("store does not expose DB()")
}
