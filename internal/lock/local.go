package lock

import (
	"context"
	"sync"
	"time"
)

// grant is one lock acquisition: its lease expiry plus a generation number so
// a holder that outlived its lease can never release a successor's lock.
type grant struct {
	expiry time.Time
	gen    uint64
}

// Local is an in-process lock registry with the same wait/lease semantics as
// the Redis locker. Suitable for tests and single-process deployments.
type Local struct {
	mu    sync.Mutex
	rooms map[int64]grant // roomID -> current holder's grant
	next  uint64
	wait  time.Duration
	lease time.Duration
}

func NewLocal() *Local {
	return &Local{
		rooms: make(map[int64]grant),
		wait:  DefaultWait,
		lease: DefaultLease,
	}
}

func (l *Local) tryAcquire(roomID int64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, held := l.rooms[roomID]; held && time.Now().Before(g.expiry) {
		return 0, false
	}
	l.next++
	l.rooms[roomID] = grant{expiry: time.Now().Add(l.lease), gen: l.next}
	return l.next, true
}

// release frees the room only if it is still held by the given acquisition.
// The local counterpart of the Redis locker's token-guarded release script.
func (l *Local) release(roomID int64, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, held := l.rooms[roomID]; held && g.gen == gen {
		delete(l.rooms, roomID)
	}
}

func (l *Local) WithLock(ctx context.Context, roomID int64, fn func() error) error {
	deadline := time.Now().Add(l.wait)
	var gen uint64
	for {
		var ok bool
		if gen, ok = l.tryAcquire(roomID); ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	defer l.release(roomID, gen)
	return fn()
}
