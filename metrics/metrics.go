package metrics

import "time"

// CycleMetrics receives the outcome of every escalation cycle.
type CycleMetrics interface {
	CycleCompleted(d time.Duration)
	CycleFailed(kind string)
	ItemsScanned(n int)
	ItemsEscalated(n int)
	Conflicts(n int)
	PublishFailed()
}

type Nop struct{}

func (Nop) CycleCompleted(time.Duration) {}
func (Nop) CycleFailed(string)           {}
func (Nop) ItemsScanned(int)             {}
func (Nop) ItemsEscalated(int)           {}
func (Nop) Conflicts(int)                {}
func (Nop) PublishFailed()               {}
