package jobserver

import (
	"context"
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/sync/semaphore"
)

// Local is an in-process Limiter.
type Local struct {
	sem *semaphore.Weighted
	n   int
}

// NewLocal returns a Limiter with n tokens (at least one).
func NewLocal(n int) *Local {
	if n <= 0 {
		n = 1
	}
	weight, err := safecast.Conv[int64](n)
	if err != nil {
		panic(fmt.Errorf("token count overflow: %w", err))
	}
	return &Local{sem: semaphore.NewWeighted(weight), n: n}
}

func (l *Local) Acquire(ctx context.Context) (*Token, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return newToken(func() error {
		l.sem.Release(1)
		return nil
	}), nil
}

func (l *Local) Capacity() int { return l.n }
