// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rapidaai/voicecampaign/internal/audiobridge"
	"github.com/rapidaai/voicecampaign/internal/callstore"
	"github.com/rapidaai/voicecampaign/internal/eventrouter"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/mediaws"
	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/rapidaai/voicecampaign/internal/reconciler"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Campaign{}, &model.Contact{}, &model.CallRow{}, &model.CallRecording{}, &model.QueueEntry{}))
	return db
}

func TestHealthzHandler_ReportsSnapshot(t *testing.T) {
	metrics := health.NewMetrics()
	metrics.IncrCallsPlaced()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	healthzHandler(metrics)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"CallsPlaced":1`)
}

func TestTelephonyWebhookHandler_RejectsMalformedBody(t *testing.T) {
	db := newTestDB(t)
	store := callstore.NewStore(db, logging.NewTestLogger())
	router := eventrouter.New(logging.NewTestLogger())
	recon := reconciler.New(store, router, logging.NewTestLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	telephonyWebhookHandler(recon, logging.NewTestLogger())(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelephonyWebhookHandler_CreatesCallOnStarted(t *testing.T) {
	db := newTestDB(t)
	store := callstore.NewStore(db, logging.NewTestLogger())
	router := eventrouter.New(logging.NewTestLogger())
	recon := reconciler.New(store, router, logging.NewTestLogger(), nil)

	body := `{"type":"call.started","callSid":"CA100","from":"+100","to":"+200"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	telephonyWebhookHandler(recon, logging.NewTestLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	row, err := store.FindCallBySid(req.Context(), "CA100")
	require.NoError(t, err)
	require.Equal(t, model.CallStatusInProgress, row.Status)
}

func TestTelephonyWebhookHandler_RejectsNonPost(t *testing.T) {
	recon := reconciler.New(nil, nil, logging.NewTestLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/webhooks/telephony", nil)
	rec := httptest.NewRecorder()
	telephonyWebhookHandler(recon, logging.NewTestLogger())(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSttWebhookHandler_DeliversToBridge(t *testing.T) {
	correlator := audiobridge.NewCorrelator(logging.NewTestLogger())
	factory := func(callID string, campaignID *uint64) audiobridge.Config {
		return audiobridge.Config{CallID: callID}
	}
	bridge := mediaws.NewBridge(correlator, factory, logging.NewTestLogger(), health.NewMetrics())

	body := `{"requestId":"req-1","callId":"CA1","text":"hello","isFinal":true}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stt", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	sttWebhookHandler(bridge, logging.NewTestLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSttWebhookHandler_RejectsMalformedBody(t *testing.T) {
	bridge := mediaws.NewBridge(nil, nil, logging.NewTestLogger(), health.NewMetrics())
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stt", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	sttWebhookHandler(bridge, logging.NewTestLogger())(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
