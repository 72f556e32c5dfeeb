// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package callstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/model"
	"gorm.io/gorm"
)

// Order describes a stable sort: priority DESC then scheduledTime ASC by
// default (spec §4.4), but exposed generically for aggregate queries.
type Order struct {
	Column string
	Desc   bool
}

// DefaultQueueOrder is the stable ordering every dispatch query uses.
var DefaultQueueOrder = []Order{
	{Column: "priority", Desc: true},
	{Column: "scheduled_time", Desc: false},
}

// AggregateOp names a supported aggregate operation.
type AggregateOp string

const (
	AggregateCount AggregateOp = "count"
	AggregateSum   AggregateOp = "sum"
	AggregateAvg   AggregateOp = "avg"
)

// Store is the source of truth for call rows and queue rows (spec §4.4).
// Updates to a single row are atomic (enforced by GORM's single-statement
// UPDATE/CREATE here — no read-modify-write races across goroutines).
type Store interface {
	CreateCall(ctx context.Context, row *model.CallRow) error
	UpdateCallBySid(ctx context.Context, sid string, patch map[string]interface{}) error
	FindCallBySid(ctx context.Context, sid string) (*model.CallRow, error)

	CreateRecording(ctx context.Context, rec *model.CallRecording) error
	UpdateRecordingBySid(ctx context.Context, sid string, patch map[string]interface{}) error
	FindRecordingBySid(ctx context.Context, sid string) (*model.CallRecording, error)

	CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) error
	UpdateQueueEntry(ctx context.Context, id uint64, patch map[string]interface{}) error
	FindQueueEntries(ctx context.Context, order []Order, limit int, preds ...Predicate) ([]*model.QueueEntry, error)
	FindQueueEntryByID(ctx context.Context, id uint64) (*model.QueueEntry, error)
	FindQueueEntryByCallSid(ctx context.Context, sid string) (*model.QueueEntry, error)
	CountQueueEntries(ctx context.Context, preds ...Predicate) (int64, error)

	FindCampaign(ctx context.Context, id uint64) (*model.Campaign, error)
	FindActiveCampaigns(ctx context.Context) ([]*model.Campaign, error)
	FindContacts(ctx context.Context, ids []uint64) ([]*model.Contact, error)

	Aggregate(ctx context.Context, campaignID uint64, field string, op AggregateOp) (float64, error)
}

type gormStore struct {
	db     *gorm.DB
	logger logging.Logger
}

// NewStore wraps an open *gorm.DB (postgres in production, sqlite for
// local/dev and tests, per the module's dual-driver go.mod).
func NewStore(db *gorm.DB, logger logging.Logger) Store {
	return &gormStore{db: db, logger: logger}
}

// DB exposes the underlying *gorm.DB for callers that need to seed or
// inspect rows the Store interface itself has no operation for (e.g.
// Campaign/Contact fixtures in tests, which the core never creates).
func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) CreateCall(ctx context.Context, row *model.CallRow) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("callstore: create call %s: %w", row.CallSid, err)
	}
	return nil
}

func (s *gormStore) UpdateCallBySid(ctx context.Context, sid string, patch map[string]interface{}) error {
	patch["updated_date"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.CallRow{}).Where("call_sid = ?", sid).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("callstore: update call %s: %w", sid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("callstore: call %s not found", sid)
	}
	return nil
}

func (s *gormStore) FindCallBySid(ctx context.Context, sid string) (*model.CallRow, error) {
	var row model.CallRow
	if err := s.db.WithContext(ctx).Where("call_sid = ?", sid).First(&row).Error; err != nil {
		return nil, fmt.Errorf("callstore: find call %s: %w", sid, err)
	}
	return &row, nil
}

func (s *gormStore) CreateRecording(ctx context.Context, rec *model.CallRecording) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("callstore: create recording %s: %w", rec.RecordingSid, err)
	}
	return nil
}

func (s *gormStore) UpdateRecordingBySid(ctx context.Context, sid string, patch map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.CallRecording{}).Where("recording_sid = ?", sid).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("callstore: update recording %s: %w", sid, res.Error)
	}
	return nil
}

func (s *gormStore) FindRecordingBySid(ctx context.Context, sid string) (*model.CallRecording, error) {
	var rec model.CallRecording
	if err := s.db.WithContext(ctx).Where("recording_sid = ?", sid).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("callstore: find recording %s: %w", sid, err)
	}
	return &rec, nil
}

func (s *gormStore) CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("callstore: create queue entry: %w", err)
	}
	return nil
}

// UpdateQueueEntry is a single atomic UPDATE, satisfying spec §4.4's
// "updates to a single row must be atomic".
func (s *gormStore) UpdateQueueEntry(ctx context.Context, id uint64, patch map[string]interface{}) error {
	patch["updated_date"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("callstore: update queue entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("callstore: queue entry %d not found", id)
	}
	return nil
}

func (s *gormStore) FindQueueEntries(ctx context.Context, order []Order, limit int, preds ...Predicate) ([]*model.QueueEntry, error) {
	if order == nil {
		order = DefaultQueueOrder
	}
	q := apply(s.db.WithContext(ctx).Model(&model.QueueEntry{}), preds...)
	for _, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		q = q.Order(fmt.Sprintf("%s %s", o.Column, dir))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []*model.QueueEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("callstore: find queue entries: %w", err)
	}
	return entries, nil
}

func (s *gormStore) FindQueueEntryByID(ctx context.Context, id uint64) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, fmt.Errorf("callstore: find queue entry %d: %w", id, err)
	}
	return &e, nil
}

func (s *gormStore) FindQueueEntryByCallSid(ctx context.Context, sid string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := s.db.WithContext(ctx).Where("call_sid = ?", sid).First(&e).Error; err != nil {
		return nil, fmt.Errorf("callstore: find queue entry for call %s: %w", sid, err)
	}
	return &e, nil
}

func (s *gormStore) CountQueueEntries(ctx context.Context, preds ...Predicate) (int64, error) {
	var count int64
	q := apply(s.db.WithContext(ctx).Model(&model.QueueEntry{}), preds...)
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("callstore: count queue entries: %w", err)
	}
	return count, nil
}

func (s *gormStore) FindCampaign(ctx context.Context, id uint64) (*model.Campaign, error) {
	var c model.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, fmt.Errorf("callstore: find campaign %d: %w", id, err)
	}
	return &c, nil
}

func (s *gormStore) FindActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	var campaigns []*model.Campaign
	if err := s.db.WithContext(ctx).Where("status = ?", model.CampaignStatusActive).Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("callstore: find active campaigns: %w", err)
	}
	return campaigns, nil
}

func (s *gormStore) FindContacts(ctx context.Context, ids []uint64) ([]*model.Contact, error) {
	var contacts []*model.Contact
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("callstore: find contacts: %w", err)
	}
	return contacts, nil
}

func (s *gormStore) Aggregate(ctx context.Context, campaignID uint64, field string, op AggregateOp) (float64, error) {
	var result float64
	q := s.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("campaign_id = ?", campaignID)
	expr := fmt.Sprintf("%s(%s)", op, field)
	if op == AggregateCount {
		expr = "COUNT(*)"
	}
	if err := q.Select(expr).Scan(&result).Error; err != nil {
		return 0, fmt.Errorf("callstore: aggregate %s(%s) for campaign %d: %w", op, field, campaignID, err)
	}
	return result, nil
}
