package registry

import (
	"context"
	"sync"
	"time"

	"github.com/akutz/gosync"

	"github.com/vfabric/privateip/manager/allocator/errors"
	"github.com/vfabric/privateip/manager/metrics"
)

// lockProvider hands out one lock per subnet id. Locks are created on demand
// and never removed.
//
// Waits are measured on the wall clock: context deadlines and the TryLock
// timer both run on it.
type lockProvider struct {
	mu    sync.Mutex
	locks map[string]gosync.TryLocker
}

func newLockProvider() *lockProvider {
	return &lockProvider{
		locks: map[string]gosync.TryLocker{},
	}
}

func (p *lockProvider) get(subnetID string) gosync.TryLocker {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock := p.locks[subnetID]
	if lock == nil {
		lock = &gosync.TryMutex{}
		p.locks[subnetID] = lock
	}
	return lock
}

// acquire locks the subnet, waiting at most timeout or until the deadline of
// ctx, whichever comes first.
func (p *lockProvider) acquire(ctx context.Context, subnetID string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout < 0 {
		timeout = 0
	}

	lock := p.get(subnetID)
	start := time.Now()
	acquired := lock.TryLock(timeout)
	metrics.LockWait(time.Since(start), acquired)
	if !acquired {
		return nil, errors.ErrSubnetBusy(subnetID)
	}
	return lock.Unlock, nil
}

// tryAcquire locks the subnet only if it is free right now. It does not wait
// and is not recorded in the lock metrics.
func (p *lockProvider) tryAcquire(subnetID string) (func(), bool) {
	lock := p.get(subnetID)
	if !lock.TryLock(0) {
		return nil, false
	}
	return lock.Unlock, true
}

// acquireAll locks every subnet in ids in order. ids must be sorted and
// free of duplicates. Either all locks are taken or none.
func (p *lockProvider) acquireAll(ctx context.Context, ids []string, timeout time.Duration) (func(), error) {
	unlocks := make([]func(), 0, len(ids))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, id := range ids {
		unlock, err := p.acquire(ctx, id, timeout)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}
