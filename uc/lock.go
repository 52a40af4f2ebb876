package uc

import (
	"context"
	"errors"

	"github.com/ecociel/escalator/domain"
	"go.uber.org/zap"
)

// ErrCycleInProgress is returned when another process holds the cycle lock.
var ErrCycleInProgress = errors.New("cycle in progress elsewhere")

type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// MakeLockedRunCycleUseCase runs cycle only while holding l. If the lock
// backend is unreachable the cycle still runs; conditional writes keep
// overlapping cycles from escalating an item twice.
func MakeLockedRunCycleUseCase(l Locker, cycle RunCycleUseCase, log *zap.SugaredLogger) RunCycleUseCase {
	return func(ctx context.Context) (domain.CycleReport, error) {
		release, ok, err := l.Acquire(ctx)
		if err != nil {
			log.Warnw("cycle lock unavailable, running unlocked", "error", err)
			return cycle(ctx)
		}
		if !ok {
			return domain.CycleReport{}, ErrCycleInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warnw("release cycle lock", "error", err)
			}
		}()
		return cycle(ctx)
	}
}
