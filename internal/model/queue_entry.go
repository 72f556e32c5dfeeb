// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package model

import (
	"time"

	"gorm.io/gorm"
)

// QueueEntry statuses, spec §3/§4.7 state machine.
const (
	QueueStatusScheduled  = "scheduled"
	QueueStatusInProgress = "in-progress"
	QueueStatusRetry      = "retry"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
	QueueStatusCancelled  = "cancelled"
)

// QueueEntry is the scheduler's unit of work (spec §3). It is owned by
// exactly one Campaign, created by scheduleBatch, mutated only by the
// Scheduler and Retry Planner. Terminal states (completed/failed/cancelled)
// are final.
type QueueEntry struct {
	Id            uint64  `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	CampaignID    uint64  `json:"campaignId" gorm:"column:campaign_id;type:bigint;not null;index"`
	ContactID     uint64  `json:"contactId" gorm:"column:contact_id;type:bigint;not null"`
	Phone         string  `json:"phone" gorm:"column:phone;type:varchar(32);not null"`
	CallerID      string  `json:"callerId" gorm:"column:caller_id;type:varchar(50);not null"`
	PhoneNumberID *string `json:"phoneNumberId" gorm:"column:phone_number_id;type:varchar(64)"`

	Status   string `json:"status" gorm:"column:status;type:varchar(20);not null;default:scheduled;index:idx_queue_dispatch,priority:2"`
	Priority int    `json:"priority" gorm:"column:priority;not null;default:0"`

	ScheduledTime time.Time `json:"scheduledTime" gorm:"column:scheduled_time;type:timestamp;not null;index:idx_queue_dispatch,priority:3"`

	Attempts       int  `json:"attempts" gorm:"column:attempts;not null;default:0"`
	MaxAttempts    int  `json:"maxAttempts" gorm:"column:max_attempts;not null;default:3"`
	UseAmd         bool `json:"useAmd" gorm:"column:use_amd;not null;default:true"`
	RetryOnMachine bool `json:"retryOnMachine" gorm:"column:retry_on_machine;not null;default:false"`

	CallSid           *string   `json:"callSid" gorm:"column:call_sid;type:varchar(64);index"`
	LastAttemptStatus *string   `json:"lastAttemptStatus" gorm:"column:last_attempt_status;type:varchar(20)"`
	LastAttemptTime   *time.Time `json:"lastAttemptTime" gorm:"column:last_attempt_time;type:timestamp"`

	StartTime *time.Time `json:"startTime" gorm:"column:start_time;type:timestamp"`
	EndTime   *time.Time `json:"endTime" gorm:"column:end_time;type:timestamp"`

	Result        *string      `json:"result" gorm:"column:result;type:varchar(40)"`
	ResultDetails JSONMetadata `json:"resultDetails" gorm:"column:result_details;type:text"`
	Metadata      JSONMetadata `json:"metadata" gorm:"column:metadata;type:text"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp"`
}

func (QueueEntry) TableName() string { return "call_queue" }

func (q *QueueEntry) BeforeCreate(tx *gorm.DB) error {
	if q.Id == 0 {
		q.Id = NextID()
	}
	if q.Status == "" {
		q.Status = QueueStatusScheduled
	}
	if q.CreatedDate.IsZero() {
		q.CreatedDate = time.Now().UTC()
	}
	return nil
}

// IsTerminal reports whether the entry has reached a final state (spec §3 invariant).
func (q *QueueEntry) IsTerminal() bool {
	switch q.Status {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	default:
		return false
	}
}

// IsDispatchable reports whether the entry is eligible for the next
// processQueue pass (spec §4.7).
func (q *QueueEntry) IsDispatchable(now time.Time) bool {
	if q.Status != QueueStatusScheduled && q.Status != QueueStatusRetry {
		return false
	}
	if !q.ScheduledTime.Before(now) && !q.ScheduledTime.Equal(now) {
		return false
	}
	return q.Attempts < q.MaxAttempts
}
