package jobserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const defaultPollInterval = 25 * time.Millisecond

// Slots is a cross-process Limiter: n lock files in a shared directory, each
// one a token. A process holds a token while it holds the file lock.
type Slots struct {
	dir   string
	locks []*flock.Flock
	local *Local

	mu    sync.Mutex
	inUse []bool

	// PollInterval is how often a blocked Acquire retries the lock files.
	PollInterval time.Duration
}

// OpenSlots prepares n token files under dir.
func OpenSlots(dir string, n int) (*Slots, error) {
	if n <= 0 {
		n = 1
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create jobserver dir: %w", err)
	}
	s := &Slots{
		dir:          dir,
		locks:        make([]*flock.Flock, n),
		local:        NewLocal(n),
		inUse:        make([]bool, n),
		PollInterval: defaultPollInterval,
	}
	for i := range s.locks {
		s.locks[i] = flock.New(filepath.Join(dir, fmt.Sprintf("slot-%d.lock", i)))
	}
	return s, nil
}

func (s *Slots) Capacity() int { return len(s.locks) }

// Acquire first takes an in-process token so goroutines of this process never
// contend for the same lock file, then polls the lock files until one is free.
func (s *Slots) Acquire(ctx context.Context) (*Token, error) {
	inner, err := s.local.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		idx, err := s.tryAny()
		if err != nil {
			inner.Release()
			return nil, err
		}
		if idx >= 0 {
			return newToken(func() error {
				defer inner.Release()
				return s.releaseSlot(idx)
			}), nil
		}
		select {
		case <-ctx.Done():
			inner.Release()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Slots) tryAny() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, lock := range s.locks {
		if s.inUse[i] {
			continue
		}
		ok, err := lock.TryLock()
		if err != nil {
			return -1, fmt.Errorf("jobserver slot %d: %w", i, err)
		}
		if ok {
			s.inUse[i] = true
			return i, nil
		}
	}
	return -1, nil
}

func (s *Slots) releaseSlot(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse[idx] = false
	return s.locks[idx].Unlock()
}
