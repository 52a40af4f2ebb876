// Package sqlite stores work items in an embedded SQLite database. It serves
// single-process deployments and local development; instants are stored as
// UTC Unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ecociel/escalator/domain"
	_ "modernc.org/sqlite"
)

type Repo struct {
	db *sql.DB
}

// Open opens the database at dsn. A single connection is kept so that
// ":memory:" databases are shared by every call.
func Open(dsn string) (*Repo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return &Repo{db: db}, nil
}

func (repo *Repo) Close() error {
	return repo.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS issues (
      id                TEXT PRIMARY KEY,
      deadline_at       INTEGER NOT NULL,
      status            TEXT NOT NULL DEFAULT 'Open',
      is_overdue        INTEGER NOT NULL DEFAULT 0,
      escalation_level  INTEGER,
      last_escalated_at INTEGER
    )`,
	`CREATE INDEX IF NOT EXISTS issues_deadline_at_id_idx ON issues (deadline_at, id)`,
}

func (repo *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := repo.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const (
	queryDueFirst = `
    SELECT id, deadline_at, status, is_overdue, escalation_level, last_escalated_at
    FROM issues
    WHERE deadline_at <= ?
    ORDER BY deadline_at, id
    LIMIT ?`

	queryDueAfter = `
    SELECT id, deadline_at, status, is_overdue, escalation_level, last_escalated_at
    FROM issues
    WHERE deadline_at <= ? AND (deadline_at, id) > (?, ?)
    ORDER BY deadline_at, id
    LIMIT ?`
)

func (repo *Repo) QueryDue(ctx context.Context, now time.Time, after domain.Cursor, limit int) ([]domain.WorkItem, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = repo.db.QueryContext(ctx, queryDueFirst, toNanos(now), limit)
	} else {
		rows, err = repo.db.QueryContext(ctx, queryDueAfter, toNanos(now), toNanos(after.DeadlineAt), after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query due items: %w", err)
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		var (
			item          domain.WorkItem
			deadline      int64
			status        string
			level         sql.NullInt64
			lastEscalated sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &deadline, &status, &item.IsOverdue, &level, &lastEscalated); err != nil {
			return nil, fmt.Errorf("scan due item: %w", err)
		}
		item.DeadlineAt = fromNanos(deadline)
		item.Status = domain.Status(status)
		if level.Valid {
			item.EscalationLevel = domain.NormalizeLevel(&level.Int64)
		}
		if lastEscalated.Valid {
			at := fromNanos(lastEscalated.Int64)
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
    SET is_overdue = 1, escalation_level = ?, last_escalated_at = ?
    WHERE id = ?
      AND is_overdue = 0
      AND status <> ?
      AND MAX(COALESCE(escalation_level, 0), 0) = ?`

func (repo *Repo) CommitBatch(ctx context.Context, escalations []domain.Escalation) (domain.CommitResult, error) {
	var res domain.CommitResult
	if len(escalations) == 0 {
		return res, nil
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin escalation batch: %w", err)
	}
	for _, e := range escalations {
		r, err := tx.ExecContext(ctx, escalate, e.Level, toNanos(e.EscalatedAt), e.ID, string(domain.StatusResolved), e.ExpectedLevel)
		if err != nil {
			_ = tx.Rollback()
			return domain.CommitResult{}, fmt.Errorf("escalate %s: %w", e.ID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return domain.CommitResult{}, fmt.Errorf("rows affected for %s: %w", e.ID, err)
		}
		if n == 1 {
			res.Applied = append(res.Applied, e.ID)
		} else {
			res.Conflicts = append(res.Conflicts, e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.CommitResult{}, fmt.Errorf("commit escalation batch: %w", err)
	}
	return res, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
