package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker serialises ids within a single process. It backs the memory
// store and single-instance deployments that run without Redis. An entry
// lives only while some caller holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*localSlot
	wait  time.Duration
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: make(map[uuid.UUID]*localSlot),
		wait:  wait,
	}
}

func (l *LocalLocker) retain(id uuid.UUID) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[id]
	if !ok {
		slot = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) release(id uuid.UUID, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	slot := l.retain(id)
	defer l.release(id, slot)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockNotAcquired
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

// tracked reports how many ids currently have an entry.
func (l *LocalLocker) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
