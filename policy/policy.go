// Package policy decides whether a due work item is escalated in a cycle.
package policy

import (
	"time"

	"github.com/ecociel/escalator/domain"
)

type Kind int

const (
	Skip Kind = iota
	Escalate
)

func (k Kind) String() string {
	switch k {
	case Escalate:
		return "escalate"
	default:
		return "skip"
	}
}

// Action is the outcome of Decide. Level and At are set only for Escalate.
type Action struct {
	Kind  Kind
	Level int
	At    time.Time
}

// Func is the signature shared by Decide and its substitutes.
type Func func(item domain.WorkItem, now time.Time) Action

// Decide returns Skip for resolved items and for items already marked
// overdue, and Escalate to the next level stamped with now otherwise.
// The caller also sets IsOverdue when applying Escalate.
func Decide(item domain.WorkItem, now time.Time) Action {
	if item.Status.Terminal() {
		return Action{Kind: Skip}
	}
	if item.IsOverdue {
		return Action{Kind: Skip}
	}
	return Action{Kind: Escalate, Level: item.EscalationLevel + 1, At: now}
}
