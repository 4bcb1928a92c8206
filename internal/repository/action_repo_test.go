package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"env_automation/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actionRowColumns = []string{"id", "schedule_id", "device_id", "action_type", "parameters", "status", "scheduled_time", "executed_time", "result", "error_message", "created_at"}

func TestActionSQLite_CreateManual(t *testing.T) {
	db, mock := newMock(t)
	at, _ := parseTS(testTS)
	mock.ExpectExec(regexp.QuoteMeta(insertActionSQL)).
		WithArgs(sqlmock.AnyArg(), nil, int64(3), "set_state", nil, "pending", testTS, testTS).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := NewActionSQLite(db).Create(context.Background(), models.DeviceAction{
		DeviceID: 3, ActionType: "set_state", CreatedAt: at,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestActionSQLite_ListPendingDue(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(selectPendingDueActionsSQL)).WithArgs(testTS).
		WillReturnRows(sqlmock.NewRows(actionRowColumns).
			AddRow("a-1", 7, 3, "set_state", `{"state":"off"}`, "pending", testTS, nil, nil, nil, testTS))

	out, err := NewActionSQLite(db).ListPendingDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].ScheduleID)
	assert.Equal(t, int64(7), *out[0].ScheduleID)
	assert.Equal(t, "off", out[0].Parameters["state"])
	assert.Nil(t, out[0].ExecutedTime)
}

func TestActionSQLite_Complete(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(completeActionSQL)).
			WithArgs("success", testTS, `{"state":"on"}`, nil, "a-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewActionSQLite(db).Complete(context.Background(), "a-1", Completion{
			Status: models.ActionSuccess, ExecutedTime: at, Result: map[string]any{"state": "on"},
		})
		require.NoError(t, err)
	})

	t.Run("already terminal", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(completeActionSQL)).
			WithArgs("failed", testTS, nil, "device offline", "a-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewActionSQLite(db).Complete(context.Background(), "a-1", Completion{
			Status: models.ActionFailed, ExecutedTime: at, ErrorMessage: "device offline",
		})
		assert.True(t, errors.Is(err, ErrActionNotPending), "got %v", err)
	})

	t.Run("non terminal status", func(t *testing.T) {
		db, _ := newMock(t)
		err := NewActionSQLite(db).Complete(context.Background(), "a-1", Completion{Status: models.ActionInProgress})
		require.Error(t, err)
	})
}

func TestActionSQLite_CountByStatus(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(countActionsByStatusSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("pending", 2).AddRow("failed", 1))

	counts, err := NewActionSQLite(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[models.ActionStatus]int{models.ActionPending: 2, models.ActionFailed: 1}, counts)
}
