// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package retryplanner

import (
	"testing"
	"time"

	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name   string
		status string
		entry  *model.QueueEntry
		want   bool
	}{
		{"busy under cap", model.CallStatusBusy, &model.QueueEntry{Attempts: 1, MaxAttempts: 3}, true},
		{"no-answer under cap", model.CallStatusNoAnswer, &model.QueueEntry{Attempts: 1, MaxAttempts: 3}, true},
		{"at max attempts", model.CallStatusFailed, &model.QueueEntry{Attempts: 3, MaxAttempts: 3}, false},
		{"completed never retries", model.CallStatusCompleted, &model.QueueEntry{Attempts: 1, MaxAttempts: 3}, false},
		{"machine without opt-in", model.CallStatusMachine, &model.QueueEntry{Attempts: 1, MaxAttempts: 3, RetryOnMachine: false}, false},
		{"machine with opt-in", model.CallStatusMachine, &model.QueueEntry{Attempts: 1, MaxAttempts: 3, RetryOnMachine: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ShouldRetry(tc.status, tc.entry))
		})
	}
}

func TestPlan_RetryOnBusyComputesExponentialBackoff(t *testing.T) {
	campaign := &model.Campaign{RetryDelayMinutes: 1, RetryExponentialFactor: 2}
	entry := &model.QueueEntry{Attempts: 1, MaxAttempts: 3}
	now := time.Unix(1_000_000, 0).UTC()

	d := Plan(entry, campaign, model.CallStatusBusy, now, nil)

	require.Equal(t, model.QueueStatusRetry, d.Patch["status"])
	next := d.Patch["scheduled_time"].(time.Time)
	require.Equal(t, now.Add(120*time.Second), next)
}

func TestPlan_SecondRetryDoublesDelay(t *testing.T) {
	campaign := &model.Campaign{RetryDelayMinutes: 1, RetryExponentialFactor: 2}
	entry := &model.QueueEntry{Attempts: 2, MaxAttempts: 3}
	now := time.Unix(2_000_000, 0).UTC()

	d := Plan(entry, campaign, model.CallStatusNoAnswer, now, nil)

	next := d.Patch["scheduled_time"].(time.Time)
	require.Equal(t, now.Add(240*time.Second), next)
}

func TestPlan_ExhaustedAttemptsTransitionsFailed(t *testing.T) {
	campaign := &model.Campaign{RetryDelayMinutes: 1, RetryExponentialFactor: 2}
	entry := &model.QueueEntry{Attempts: 3, MaxAttempts: 3}
	now := time.Now().UTC()

	d := Plan(entry, campaign, model.CallStatusFailed, now, map[string]interface{}{"reason": "failed"})

	require.Equal(t, model.QueueStatusFailed, d.Patch["status"])
	require.Equal(t, model.CallStatusFailed, d.Patch["result"])
}

func TestPlan_SuccessTransitionsCompleted(t *testing.T) {
	campaign := &model.Campaign{RetryDelayMinutes: 1, RetryExponentialFactor: 2}
	entry := &model.QueueEntry{Attempts: 1, MaxAttempts: 3}
	now := time.Now().UTC()

	d := Plan(entry, campaign, model.CallStatusCompleted, now, nil)

	require.Equal(t, model.QueueStatusCompleted, d.Patch["status"])
	require.Equal(t, model.CallStatusCompleted, d.Patch["result"])
}
