// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package callstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewStore(gdb, logging.NewTestLogger()), mock, mock
}

func TestGormStore_CreateCall(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "call_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	row := &model.CallRow{
		CallSid:   "CA123",
		Direction: model.DirectionOutbound,
		Status:    model.CallStatusInitiated,
		From:      "+15550000000",
		To:        "+15550000001",
		StartTime: time.Now().UTC(),
	}
	err := store.CreateCall(context.Background(), row)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateCallBySid_NotFound(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "call_logs"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.UpdateCallBySid(context.Background(), "CA-missing", map[string]interface{}{"status": model.CallStatusCompleted})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestGormStore_UpdateCallBySid_Success(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "call_logs"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateCallBySid(context.Background(), "CA123", map[string]interface{}{"status": model.CallStatusCompleted})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindQueueEntries_DefaultOrder(t *testing.T) {
	store, mock, _ := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "campaign_id", "contact_id", "phone", "caller_id", "status", "priority", "scheduled_time", "attempts", "max_attempts"}).
		AddRow(2, 10, 20, "+15550000002", "+15550009999", model.QueueStatusScheduled, 5, time.Now(), 0, 3).
		AddRow(1, 10, 21, "+15550000003", "+15550009999", model.QueueStatusScheduled, 1, time.Now(), 0, 3)

	mock.ExpectQuery(`SELECT \* FROM "call_queue"`).WillReturnRows(rows)

	entries, err := store.FindQueueEntries(context.Background(), nil, 10, Eq("campaign_id", uint64(10)))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CountQueueEntries(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT count`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountQueueEntries(context.Background(), Eq("campaign_id", uint64(10)), In("status", []string{model.QueueStatusInProgress}))
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Aggregate_Count(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	v, err := store.Aggregate(context.Background(), 10, "id", AggregateCount)
	require.NoError(t, err)
	require.Equal(t, float64(7), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPredicates_Compose(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "call_queue"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindQueueEntries(context.Background(), nil, 0,
		Eq("campaign_id", uint64(1)),
		In("status", []string{model.QueueStatusScheduled, model.QueueStatusRetry}),
		LessOrEqual("scheduled_time", time.Now()),
		GreaterOrEqual("priority", 0),
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
