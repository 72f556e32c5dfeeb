// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package model

import "time"

// Campaign statuses, spec §3.
const (
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// Campaign is immutable during a run for every field the core reads; the
// scheduler only reads it (spec §3).
type Campaign struct {
	Id                     uint64  `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	Status                 string  `json:"status" gorm:"column:status;type:varchar(20);not null;default:active"`
	CallerID               string  `json:"callerId" gorm:"column:caller_id;type:varchar(50);not null"`
	PhoneNumberID          *string `json:"phoneNumberId" gorm:"column:phone_number_id;type:varchar(64)"`
	MaxConcurrentCalls     int     `json:"maxConcurrentCalls" gorm:"column:max_concurrent_calls;not null;default:5"`
	RetryDelayMinutes      int     `json:"retryDelayMinutes" gorm:"column:retry_delay_minutes;not null;default:60"`
	RetryExponentialFactor float64 `json:"retryExponentialFactor" gorm:"column:retry_exponential_factor;not null;default:1.5"`
	WebhookURL             *string `json:"webhookUrl" gorm:"column:webhook_url;type:text"`

	// CallHoursStart/End are "HH:MM" in the campaign's Timezone (SPEC_FULL
	// supplement — the distilled spec left the interpretation of these
	// fields as an open question; see DESIGN.md).
	CallHoursStart *string `json:"callHoursStart" gorm:"column:call_hours_start;type:varchar(5)"`
	CallHoursEnd   *string `json:"callHoursEnd" gorm:"column:call_hours_end;type:varchar(5)"`
	Timezone       string  `json:"timezone" gorm:"column:timezone;type:varchar(64);not null;default:UTC"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp"`
}

func (Campaign) TableName() string { return "campaigns" }

// IsActive reports whether the scheduler should dispatch work for this campaign.
func (c *Campaign) IsActive() bool { return c.Status == CampaignStatusActive }

// Contact is read-only to the core; display fields are copied into queue
// metadata at enqueue time (spec §3).
type Contact struct {
	Id    uint64 `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	Phone string `json:"phone" gorm:"column:phone;type:varchar(32);not null"`
	Name  string `json:"name" gorm:"column:name;type:varchar(200)"`
	Email string `json:"email" gorm:"column:email;type:varchar(200)"`
}

func (Contact) TableName() string { return "contacts" }
