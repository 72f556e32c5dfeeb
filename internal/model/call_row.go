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

// Call directions and statuses, spec §3.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	CallStatusInitiated  = "initiated"
	CallStatusInProgress = "in-progress"
	CallStatusAnswered   = "answered"
	CallStatusCompleted  = "completed"
	CallStatusBusy       = "busy"
	CallStatusNoAnswer   = "no-answer"
	CallStatusFailed     = "failed"
	CallStatusMachine    = "machine"
)

// CallRow is the durable record of a single placed call (spec §3).
// callSid uniquely identifies a call across all components.
type CallRow struct {
	Id            uint64  `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	CallSid       string  `json:"callSid" gorm:"column:call_sid;type:varchar(64);not null;uniqueIndex"`
	CampaignID    *uint64 `json:"campaignId" gorm:"column:campaign_id;type:bigint"`
	ContactID     *uint64 `json:"contactId" gorm:"column:contact_id;type:bigint"`
	Direction     string  `json:"direction" gorm:"column:direction;type:varchar(20);not null"`
	Status        string  `json:"status" gorm:"column:status;type:varchar(20);not null"`
	From          string  `json:"from" gorm:"column:from_number;type:varchar(32);not null"`
	To            string  `json:"to" gorm:"column:to_number;type:varchar(32);not null"`
	StartTime     time.Time  `json:"startTime" gorm:"column:start_time;type:timestamp;not null"`
	AnswerTime    *time.Time `json:"answerTime" gorm:"column:answer_time;type:timestamp"`
	EndTime       *time.Time `json:"endTime" gorm:"column:end_time;type:timestamp"`
	Duration      int        `json:"duration" gorm:"column:duration;not null;default:0"`
	RecordingURL  *string    `json:"recordingUrl" gorm:"column:recording_url;type:text"`
	RecordingSid  *string    `json:"recordingSid" gorm:"column:recording_sid;type:varchar(64)"`
	AmdResult     *string    `json:"amdResult" gorm:"column:amd_result;type:varchar(20)"`
	AmdDurationMS *int       `json:"amdDuration" gorm:"column:amd_duration;type:integer"`

	Metadata JSONMetadata `json:"metadata" gorm:"column:metadata;type:text"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp"`
}

func (CallRow) TableName() string { return "call_logs" }

func (c *CallRow) BeforeCreate(tx *gorm.DB) error {
	if c.Id == 0 {
		c.Id = NextID()
	}
	if c.CreatedDate.IsZero() {
		c.CreatedDate = time.Now().UTC()
	}
	if c.Metadata == nil {
		c.Metadata = JSONMetadata{}
	}
	return nil
}

// CallRecording, spec §3.
const (
	RecordingStatusInProgress = "in-progress"
	RecordingStatusCompleted  = "completed"
)

type CallRecording struct {
	Id           uint64    `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	RecordingSid string    `json:"recordingSid" gorm:"column:recording_sid;type:varchar(64);not null;uniqueIndex"`
	CallSid      string    `json:"callSid" gorm:"column:call_sid;type:varchar(64);not null;index"`
	Status       string    `json:"status" gorm:"column:status;type:varchar(20);not null"`
	StartTime    time.Time `json:"startTime" gorm:"column:start_time;type:timestamp;not null"`
	EndTime      *time.Time `json:"endTime" gorm:"column:end_time;type:timestamp"`
	Duration     int        `json:"duration" gorm:"column:duration;not null;default:0"`
	URL          *string    `json:"url" gorm:"column:url;type:text"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;<-:create"`
}

func (CallRecording) TableName() string { return "call_recordings" }

func (c *CallRecording) BeforeCreate(tx *gorm.DB) error {
	if c.Id == 0 {
		c.Id = NextID()
	}
	if c.CreatedDate.IsZero() {
		c.CreatedDate = time.Now().UTC()
	}
	return nil
}
