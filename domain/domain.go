package domain

import "time"

type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "InProgress"
	StatusResolved   Status = "Resolved"
)

// Terminal reports whether no further escalation may happen for the status.
func (s Status) Terminal() bool {
	return s == StatusResolved
}

// WorkItem is a time-bounded task tracked for deadline compliance.
type WorkItem struct {
	ID              string
	DeadlineAt      time.Time
	Status          Status
	IsOverdue       bool
	EscalationLevel int
	LastEscalatedAt *time.Time
}

// Due reports whether the item's deadline has passed at now. A deadline equal
// to now is due.
func (w WorkItem) Due(now time.Time) bool {
	return !w.DeadlineAt.After(now)
}

// NormalizeLevel maps a stored escalation level to the domain value. Absent
// and negative levels read as 0; write preconditions apply the same clamp.
func NormalizeLevel(level *int64) int {
	if level == nil || *level < 0 {
		return 0
	}
	return int(*level)
}

// Escalation is the mutation applied to a single overdue item.
// ExpectedLevel is the level read in this cycle and guards the write.
type Escalation struct {
	ID            string
	ExpectedLevel int
	Level         int
	EscalatedAt   time.Time
}

// Cursor is a keyset position in (DeadlineAt, ID) order. The zero Cursor
// starts from the beginning.
type Cursor struct {
	DeadlineAt time.Time
	ID         string
}

func (c Cursor) IsZero() bool {
	return c.ID == "" && c.DeadlineAt.IsZero()
}

// CursorAfter returns the cursor positioned on item.
func CursorAfter(item WorkItem) Cursor {
	return Cursor{DeadlineAt: item.DeadlineAt, ID: item.ID}
}

// CommitResult splits a batch into the writes that landed and the ones whose
// precondition no longer held.
type CommitResult struct {
	Applied   []string
	Conflicts []string
}

// CycleReport summarizes one scan-evaluate-commit cycle.
type CycleReport struct {
	CycleID   string        `json:"cycleId"`
	Now       time.Time     `json:"now"`
	Scanned   int           `json:"scanned"`
	Escalated int           `json:"escalated"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"duration"`
}
