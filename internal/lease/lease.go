// internal/lease/lease.go

// Package lease serializes mutation of a single loan aggregate. Every
// balance- or status-changing operation acquires the loan's lease before its
// read-modify-write cycle and releases it afterwards, so two concurrent
// payments (or a payment racing a prepayment) can never interleave.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when the lease cannot be acquired within the timeout.
var ErrBusy = errors.New("lease held by another operation")

type entry struct {
	sem  chan struct{}
	refs int
}

// Keeper hands out exclusive, time-bounded leases keyed by loan id.
type Keeper struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	timeout time.Duration
}

func NewKeeper(timeout time.Duration) *Keeper {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Keeper{
		entries: make(map[uuid.UUID]*entry),
		timeout: timeout,
	}
}

// Acquire blocks until the lease for id is free, the timeout elapses, or the
// context is cancelled. The returned release function must be called exactly
// once.
func (k *Keeper) Acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.release(id, e)
		}, nil
	case <-timer.C:
		k.release(id, e)
		return nil, ErrBusy
	case <-ctx.Done():
		k.release(id, e)
		return nil, ctx.Err()
	}
}

func (k *Keeper) release(id uuid.UUID, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()
}
