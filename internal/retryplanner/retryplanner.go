// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package retryplanner decides whether a terminated QueueEntry should be
// redispatched and, if so, when (spec §4.8).
package retryplanner

import (
	"math"
	"time"

	"github.com/rapidaai/voicecampaign/internal/model"
)

// retryableStatuses are the terminal call statuses the planner will
// consider for a retry (spec §4.8).
var retryableStatuses = map[string]bool{
	model.CallStatusBusy:     true,
	model.CallStatusNoAnswer: true,
	model.CallStatusFailed:   true,
	model.CallStatusMachine:  true,
}

// ShouldRetry reports whether entry should be redispatched after
// terminating with status (spec §4.8).
func ShouldRetry(status string, entry *model.QueueEntry) bool {
	if entry.Attempts >= entry.MaxAttempts {
		return false
	}
	if status == model.CallStatusCompleted {
		return false
	}
	if status == model.CallStatusMachine && !entry.RetryOnMachine {
		return false
	}
	return retryableStatuses[status]
}

// Decision is the patch the Scheduler should apply to a QueueEntry after
// a terminal call status (spec §4.8).
type Decision struct {
	Patch map[string]interface{}
}

// Plan computes the state transition for entry given its terminal status
// (spec §4.8). Callers apply Patch via Store.UpdateQueueEntry.
func Plan(entry *model.QueueEntry, campaign *model.Campaign, status string, now time.Time, details map[string]interface{}) Decision {
	lastStatus := status
	if ShouldRetry(status, entry) {
		baseMs := float64(campaign.RetryDelayMinutes) * 60_000
		factor := math.Pow(campaign.RetryExponentialFactor, float64(entry.Attempts))
		delayMs := baseMs * factor
		nextTime := now.Add(time.Duration(delayMs) * time.Millisecond)

		return Decision{Patch: map[string]interface{}{
			"status":              model.QueueStatusRetry,
			"scheduled_time":      nextTime,
			"last_attempt_status": lastStatus,
			"last_attempt_time":   now,
			"result_details":      model.JSONMetadata(details),
		}}
	}

	finalStatus := model.QueueStatusFailed
	if status == model.CallStatusCompleted {
		finalStatus = model.QueueStatusCompleted
	}

	return Decision{Patch: map[string]interface{}{
		"status":              finalStatus,
		"end_time":            now,
		"result":              lastStatus,
		"result_details":      model.JSONMetadata(details),
		"last_attempt_status": lastStatus,
		"last_attempt_time":   now,
	}}
}
