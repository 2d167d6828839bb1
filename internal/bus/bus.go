// Package bus is the typed channel between background tasks and the runtime
// loop. Multi-producer, single-consumer: watch sessions, action tasks and the
// config watcher publish; only the Bubble Tea update loop drains.
package bus

import (
	"sync"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// DefaultCapacity bounds the pending event queue.
const DefaultCapacity = 1024

// Event is a message delivered to the runtime loop.
type Event interface{ busEvent() }

// WatchDelta carries one row change from a watch session.
type WatchDelta struct {
	Kind     kinds.Kind
	ScopeKey string
	Type     store.DeltaType
	Row      store.Row
}

// Resync replaces all rows for a (kind, scope) key after a full relist.
// A Resync supersedes any earlier pending delta for the same key.
type Resync struct {
	Kind     kinds.Kind
	ScopeKey string
	Scope    store.Scope
	Rows     []store.Row
	Version  string
}

// WatchError reports a persistent watch failure (already past backoff).
type WatchError struct {
	Kind     kinds.Kind
	ScopeKey string
	Err      error
}

// TaskOutput carries buffered lines from a background task (log tail, shell
// pane, devops tool).
type TaskOutput struct {
	TaskID int
	Lines  []string
}

// TaskExit reports background task termination.
type TaskExit struct {
	TaskID int
	Err    error
}

// PFTransition reports a port-forward session state change.
type PFTransition struct {
	ID     int
	State  string
	Reason string
}

// ConfigReloaded delivers a fresh config snapshot from the watcher.
type ConfigReloaded struct {
	Snapshot any
}

// Timer fires for scheduled work owned by the runtime loop.
type Timer struct {
	ID string
}

func (WatchDelta) busEvent()     {}
func (Resync) busEvent()         {}
func (WatchError) busEvent()     {}
func (TaskOutput) busEvent()     {}
func (TaskExit) busEvent()       {}
func (PFTransition) busEvent()   {}
func (ConfigReloaded) busEvent() {}
func (Timer) busEvent()          {}

// Bus is a bounded event queue. On overflow, watch deltas coalesce per
// (scope key, uid) keeping the latest; TaskOutput publishers block, which is
// the back-pressure the spec requires.
type Bus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	cap    int
	closed bool
	notify chan struct{}
}

// New creates a bus with the given capacity (DefaultCapacity when <= 0).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{cap: capacity, notify: make(chan struct{}, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish enqueues an event. Watch deltas never block: when the queue is
// full they coalesce against a pending delta for the same row, or evict the
// oldest delta for the same key. Other events block until space frees up.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if delta, ok := ev.(WatchDelta); ok {
		if b.coalesce(delta) {
			b.wake()
			return
		}
		b.queue = append(b.queue, ev)
		b.wake()
		return
	}

	for len(b.queue) >= b.cap && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	b.wake()
}

// coalesce replaces a pending delta for the same (scope key, uid) with the
// newer one. When the queue is full and no match exists, the new delta is
// appended anyway after dropping the oldest delta for the same key; resyncs
// are never dropped.
func (b *Bus) coalesce(delta WatchDelta) bool {
	for i := len(b.queue) - 1; i >= 0; i-- {
		// Never merge across a pending Resync for the key: the delta would
		// jump ahead of it and be overwritten by the older relist.
		if rs, ok := b.queue[i].(Resync); ok && rs.ScopeKey == delta.ScopeKey {
			break
		}
		if prev, ok := b.queue[i].(WatchDelta); ok &&
			prev.ScopeKey == delta.ScopeKey && prev.Row.UID == delta.Row.UID {
			b.queue[i] = delta
			return true
		}
	}
	if len(b.queue) < b.cap {
		return false
	}
	for i, ev := range b.queue {
		if prev, ok := ev.(WatchDelta); ok && prev.ScopeKey == delta.ScopeKey {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			break
		}
	}
	return false
}

// Drain removes up to max pending events. It never blocks; the runtime loop
// calls it once per tick with a bounded batch to prevent starvation.
func (b *Bus) Drain(max int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || max > len(b.queue) {
		max = len(b.queue)
	}
	out := make([]Event, max)
	copy(out, b.queue[:max])
	b.queue = append(b.queue[:0], b.queue[max:]...)
	b.cond.Broadcast()
	return out
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Wait returns a channel that receives a token whenever new events arrive.
// The runtime loop selects on it between ticks.
func (b *Bus) Wait() <-chan struct{} {
	return b.notify
}

// Close releases blocked publishers. Events already queued stay drainable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
