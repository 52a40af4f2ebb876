package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecociel/escalator/domain"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var columns = []string{"id", "deadline_at", "status", "is_overdue", "escalation_level", "last_escalated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestQueryDue_FirstPage(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	rows := pgxmock.NewRows(columns).
		AddRow("A", now.Add(-10*time.Minute), "Open", false, nil, nil).
		AddRow("C", now.Add(-5*time.Minute), "Open", true, int64(2), nil)
	mock.ExpectQuery(queryDueFirst).WithArgs(now, 100).WillReturnRows(rows)

	items, err := repo.QueryDue(context.Background(), now, domain.Cursor{}, 100)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "A", items[0].ID)
	assert.Equal(t, domain.StatusOpen, items[0].Status)
	assert.Equal(t, 0, items[0].EscalationLevel, "absent level reads as zero")
	assert.Nil(t, items[0].LastEscalatedAt)
	assert.True(t, items[0].DeadlineAt.Equal(now.Add(-10*time.Minute)))

	assert.Equal(t, "C", items[1].ID)
	assert.True(t, items[1].IsOverdue)
	assert.Equal(t, 2, items[1].EscalationLevel)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryDue_AfterCursor(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	after := domain.Cursor{DeadlineAt: now.Add(-time.Hour), ID: "K"}
	mock.ExpectQuery(queryDueAfter).
		WithArgs(now, after.DeadlineAt, after.ID, 50).
		WillReturnRows(pgxmock.NewRows(columns))

	items, err := repo.QueryDue(context.Background(), now, after, 50)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryDue_Error(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	dbErr := errors.New("connection reset")
	mock.ExpectQuery(queryDueFirst).WithArgs(now, 10).WillReturnError(dbErr)

	_, err := repo.QueryDue(context.Background(), now, domain.Cursor{}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_AppliedAndConflicts(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	batch := []domain.Escalation{
		{ID: "A", ExpectedLevel: 0, Level: 1, EscalatedAt: now},
		{ID: "B", ExpectedLevel: 3, Level: 4, EscalatedAt: now},
	}
	mock.ExpectBegin()
	mock.ExpectExec(escalate).
		WithArgs("A", 1, now, 0, "Resolved").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(escalate).
		WithArgs("B", 4, now, 3, "Resolved").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	res, err := repo.CommitBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Applied)
	assert.Equal(t, []string{"B"}, res.Conflicts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_ExecErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	execErr := errors.New("deadlock detected")
	mock.ExpectBegin()
	mock.ExpectExec(escalate).
		WithArgs("A", 1, now, 0, "Resolved").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(escalate).
		WithArgs("B", 1, now, 0, "Resolved").
		WillReturnError(execErr)
	mock.ExpectRollback()

	res, err := repo.CommitBatch(context.Background(), []domain.Escalation{
		{ID: "A", Level: 1, EscalatedAt: now},
		{ID: "B", Level: 1, EscalatedAt: now},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, execErr)
	assert.Empty(t, res.Applied, "a rolled back batch applies nothing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_CommitError(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	commitErr := errors.New("serialization failure")
	mock.ExpectBegin()
	mock.ExpectExec(escalate).
		WithArgs("A", 1, now, 0, "Resolved").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit().WillReturnError(commitErr)

	res, err := repo.CommitBatch(context.Background(), []domain.Escalation{{ID: "A", Level: 1, EscalatedAt: now}})
	require.Error(t, err)
	assert.ErrorIs(t, err, commitErr)
	assert.Empty(t, res.Applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatch_Empty(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	res, err := repo.CommitBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock := newMock(t)
	repo := New(mock)

	for _, stmt := range schema {
		mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
