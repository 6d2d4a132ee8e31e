// Package jobserver hands out concurrency tokens that bound how many codegen
// units hold native backend state at once. Tokens from Slots are shared by
// every process pointed at the same directory, so sibling builds draw from one
// budget; Local only limits the current process.
package jobserver

import (
	"context"
	"sync/atomic"

	"forge/internal/diag"
)

// Limiter hands out tokens. Acquire blocks until a token is free or ctx ends.
type Limiter interface {
	Acquire(ctx context.Context) (*Token, error)
	Capacity() int
}

// Token is one unit of the budget. Release returns it exactly once.
type Token struct {
	release  func() error
	released atomic.Bool
}

func newToken(release func() error) *Token {
	return &Token{release: release}
}

// Release returns the token. Releasing twice is a broken caller contract.
func (t *Token) Release() {
	if t == nil {
		return
	}
	if !t.released.CompareAndSwap(false, true) {
		diag.Abort(diag.JobDoubleRelease, "concurrency token released twice")
	}
	if err := t.release(); err != nil {
		diag.AbortErr(diag.JobReleaseFailed, err, "release concurrency token")
	}
}
