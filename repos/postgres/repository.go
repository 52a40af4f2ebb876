package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ecociel/escalator/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repo struct {
	db DB
}

func New(db DB) *Repo {
	return &Repo{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS issues (
      id                TEXT PRIMARY KEY,
      deadline_at       TIMESTAMPTZ NOT NULL,
      status            TEXT NOT NULL DEFAULT 'Open',
      is_overdue        BOOLEAN NOT NULL DEFAULT FALSE,
      escalation_level  INTEGER,
      last_escalated_at TIMESTAMPTZ
    )`,
	`CREATE INDEX IF NOT EXISTS issues_deadline_at_id_idx ON issues (deadline_at, id)`,
}

func (repo *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := repo.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const (
	queryDueFirst = `
    SELECT id, deadline_at, status, is_overdue, escalation_level, last_escalated_at
    FROM issues
    WHERE deadline_at <= $1
    ORDER BY deadline_at, id
    LIMIT $2`

	queryDueAfter = `
    SELECT id, deadline_at, status, is_overdue, escalation_level, last_escalated_at
    FROM issues
    WHERE deadline_at <= $1 AND (deadline_at, id) > ($2, $3)
    ORDER BY deadline_at, id
    LIMIT $4`
)

func (repo *Repo) QueryDue(ctx context.Context, now time.Time, after domain.Cursor, limit int) ([]domain.WorkItem, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = repo.db.Query(ctx, queryDueFirst, now, limit)
	} else {
		rows, err = repo.db.Query(ctx, queryDueAfter, now, after.DeadlineAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query due items: %w", err)
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		var (
			item          domain.WorkItem
			status        string
			level         pgtype.Int8
			lastEscalated pgtype.Timestamptz
		)
		if err := rows.Scan(&item.ID, &item.DeadlineAt, &status, &item.IsOverdue, &level, &lastEscalated); err != nil {
			return nil, fmt.Errorf("scan due item: %w", err)
		}
		item.Status = domain.Status(status)
		if level.Valid {
			item.EscalationLevel = domain.NormalizeLevel(&level.Int64)
		}
		if lastEscalated.Valid {
			at := lastEscalated.Time
			item.LastEscalatedAt = &at
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows due items: %w", err)
	}
	return items, nil
}

const escalate = `
    UPDATE issues
    SET is_overdue = TRUE, escalation_level = $2, last_escalated_at = $3
    WHERE id = $1
      AND is_overdue = FALSE
      AND status <> $5
      AND GREATEST(COALESCE(escalation_level, 0), 0) = $4`

// CommitBatch applies escalations in one transaction. A row whose
// precondition no longer holds is reported as a conflict; any other error
// rolls back the whole batch.
func (repo *Repo) CommitBatch(ctx context.Context, escalations []domain.Escalation) (domain.CommitResult, error) {
	var res domain.CommitResult
	if len(escalations) == 0 {
		return res, nil
	}

	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin escalation batch: %w", err)
	}
	for _, e := range escalations {
		tag, err := tx.Exec(ctx, escalate, e.ID, e.Level, e.EscalatedAt, e.ExpectedLevel, string(domain.StatusResolved))
		if err != nil {
			_ = tx.Rollback(ctx)
			return domain.CommitResult{}, fmt.Errorf("escalate %s: %w", e.ID, err)
		}
		if tag.RowsAffected() == 1 {
			res.Applied = append(res.Applied, e.ID)
		} else {
			res.Conflicts = append(res.Conflicts, e.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CommitResult{}, fmt.Errorf("commit escalation batch: %w", err)
	}
	return res, nil
}
