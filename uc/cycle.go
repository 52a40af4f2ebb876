package uc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/escalator/clock"
	"github.com/ecociel/escalator/domain"
	"github.com/ecociel/escalator/metrics"
	"github.com/ecociel/escalator/policy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBatchSize keeps one commit within the 500-write limit of document
// store batches.
const DefaultBatchSize = 500

const DefaultPageSize = 500

var (
	ErrQuery           = errors.New("query due items")
	ErrCommit          = errors.New("commit escalations")
	ErrPolicyViolation = errors.New("policy violation")
)

type DueItemStore interface {
	QueryDue(ctx context.Context, now time.Time, after domain.Cursor, limit int) ([]domain.WorkItem, error)
	CommitBatch(ctx context.Context, escalations []domain.Escalation) (domain.CommitResult, error)
}

// EventPublisher announces escalations that were committed. It returns nil
// when every event was delivered, otherwise one error per escalation in input
// order with nil entries for the delivered ones.
type EventPublisher interface {
	PublishEscalated(ctx context.Context, cycleID string, escalations []domain.Escalation) []error
}

type CycleConfig struct {
	PageSize  int
	BatchSize int
	// Policy defaults to policy.Decide.
	Policy policy.Func
}

type RunCycleUseCase = func(ctx context.Context) (domain.CycleReport, error)

func MakeRunCycleUseCase(
	store DueItemStore,
	publisher EventPublisher,
	clk clock.Clock,
	m metrics.CycleMetrics,
	log *zap.SugaredLogger,
	cfg CycleConfig,
) RunCycleUseCase {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.Decide
	}
	if m == nil {
		m = metrics.Nop{}
	}

	return func(ctx context.Context) (domain.CycleReport, error) {
		start := time.Now()
		c := &cycle{
			store:     store,
			publisher: publisher,
			metrics:   m,
			cfg:       cfg,
			now:       clk.Now(),
			seen:      make(map[string]struct{}),
		}
		c.report = domain.CycleReport{CycleID: uuid.NewString(), Now: c.now}
		c.log = log.With("cycle", c.report.CycleID)

		err := c.run(ctx)
		c.report.Duration = time.Since(start)

		m.ItemsScanned(c.report.Scanned)
		m.ItemsEscalated(c.report.Escalated)
		m.Conflicts(c.report.Conflicts)
		if err != nil {
			m.CycleFailed(failureKind(err))
			c.log.Errorw("cycle failed", "error", err, "scanned", c.report.Scanned, "escalated", c.report.Escalated)
			return c.report, err
		}
		m.CycleCompleted(c.report.Duration)
		c.log.Infow("cycle completed",
			"now", c.now,
			"scanned", c.report.Scanned,
			"escalated", c.report.Escalated,
			"skipped", c.report.Skipped,
			"conflicts", c.report.Conflicts,
			"batches", c.report.Batches,
			"took", c.report.Duration.String(),
		)
		return c.report, nil
	}
}

type cycle struct {
	store     DueItemStore
	publisher EventPublisher
	metrics   metrics.CycleMetrics
	log       *zap.SugaredLogger
	cfg       CycleConfig

	now     time.Time
	report  domain.CycleReport
	seen    map[string]struct{}
	pending []domain.Escalation
}

func (c *cycle) run(ctx context.Context) error {
	var after domain.Cursor
	for {
		items, err := c.store.QueryDue(ctx, c.now, after, c.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrQuery, err)
		}
		c.report.Scanned += len(items)

		for _, item := range items {
			if err := c.evaluate(item); err != nil {
				return err
			}
		}
		for len(c.pending) >= c.cfg.BatchSize {
			if err := c.commit(ctx, c.pending[:c.cfg.BatchSize]); err != nil {
				return err
			}
			c.pending = c.pending[c.cfg.BatchSize:]
		}

		if len(items) < c.cfg.PageSize {
			break
		}
		after = domain.CursorAfter(items[len(items)-1])
	}

	if c.report.Scanned == 0 {
		c.log.Debugw("no due items", "now", c.now)
		return nil
	}
	if len(c.pending) == 0 {
		return nil
	}
	return c.commit(ctx, c.pending)
}

func (c *cycle) evaluate(item domain.WorkItem) error {
	if _, ok := c.seen[item.ID]; ok {
		return nil
	}
	c.seen[item.ID] = struct{}{}

	if !item.Due(c.now) {
		c.report.Skipped++
		return nil
	}
	action := c.cfg.Policy(item, c.now)
	if action.Kind != policy.Escalate {
		c.report.Skipped++
		return nil
	}
	if item.Status.Terminal() {
		return fmt.Errorf("%w: escalation of %s item %s", ErrPolicyViolation, item.Status, item.ID)
	}
	if action.Level != item.EscalationLevel+1 {
		return fmt.Errorf("%w: item %s escalated from level %d to %d", ErrPolicyViolation, item.ID, item.EscalationLevel, action.Level)
	}
	if !action.At.Equal(c.now) {
		return fmt.Errorf("%w: item %s stamped %s outside cycle time %s", ErrPolicyViolation, item.ID, action.At, c.now)
	}

	c.pending = append(c.pending, domain.Escalation{
		ID:            item.ID,
		ExpectedLevel: item.EscalationLevel,
		Level:         action.Level,
		EscalatedAt:   action.At,
	})
	return nil
}

func (c *cycle) commit(ctx context.Context, batch []domain.Escalation) error {
	res, err := c.store.CommitBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("%w: batch of %d: %w", ErrCommit, len(batch), err)
	}
	c.report.Batches++
	c.report.Escalated += len(res.Applied)
	c.report.Conflicts += len(res.Conflicts)
	if len(res.Conflicts) > 0 {
		c.log.Warnw("escalations rejected by write precondition", "ids", res.Conflicts)
	}

	c.publish(ctx, batch, res.Applied)
	return nil
}

func (c *cycle) publish(ctx context.Context, batch []domain.Escalation, applied []string) {
	if c.publisher == nil || len(applied) == 0 {
		return
	}
	byID := make(map[string]domain.Escalation, len(batch))
	for _, e := range batch {
		byID[e.ID] = e
	}
	events := make([]domain.Escalation, 0, len(applied))
	for _, id := range applied {
		if e, ok := byID[id]; ok {
			events = append(events, e)
		}
	}
	if len(events) == 0 {
		return
	}
	for i, err := range c.publisher.PublishEscalated(ctx, c.report.CycleID, events) {
		if err == nil || i >= len(events) {
			continue
		}
		c.metrics.PublishFailed()
		c.log.Warnw("publish escalation event failed", "id", events[i].ID, "error", err)
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrQuery):
		return "query"
	case errors.Is(err, ErrCommit):
		return "commit"
	case errors.Is(err, ErrPolicyViolation):
		return "policy"
	default:
		return "other"
	}
}
