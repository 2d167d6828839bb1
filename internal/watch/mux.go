// Package watch multiplexes cluster watch streams. It keeps at most one live
// session per (kind, scope), reference-counted by the views that display the
// table, and turns stream events into bus messages for the runtime loop.
package watch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	apiwatch "k8s.io/apimachinery/pkg/watch"

	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/command"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/logging"
	"github.com/ASoldo/orca/internal/store"
)

const (
	backoffInitial   = 500 * time.Millisecond
	backoffFactor    = 2
	backoffCap       = 30 * time.Second
	backoffJitterPct = 0.20

	// idleGrace is how long a session without referencing views stays alive.
	idleGrace = 30 * time.Second

	// heartbeatIdle reconnects a watch stream that delivered nothing for too
	// long; the server may have silently dropped it.
	heartbeatIdle = 60 * time.Second

	// failuresBeforeSurface keeps transient errors internal until the session
	// has failed this many times in a row.
	failuresBeforeSurface = 3
)

type session struct {
	kind   kinds.Kind
	scope  store.Scope
	gvr    schema.GroupVersionResource
	key    string
	refs   int
	cancel context.CancelFunc
	idleAt time.Time // zero while referenced
}

// Multiplexer owns every watch session.
type Multiplexer struct {
	client       k8s.Client
	bus          *bus.Bus
	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	rootCtx  context.Context
	rootStop context.CancelFunc
}

// New creates a multiplexer. refreshMs drives the polling fallback interval
// (refresh × 4) for kinds without watch support.
func New(client k8s.Client, b *bus.Bus, refreshMs int) *Multiplexer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Multiplexer{
		client:       client,
		bus:          b,
		pollInterval: time.Duration(refreshMs) * time.Millisecond * 4,
		sessions:     map[string]*session{},
		rootCtx:      ctx,
		rootStop:     cancel,
	}
}

// Acquire references the (kind, scope) session, starting it when absent.
// gvr is only set for CRD instance views.
func (m *Multiplexer) Acquire(kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) {
	key := scope.Key(kind)
	if gvr.Resource != "" {
		key = key + "#" + gvr.String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.refs++
		s.idleAt = time.Time{}
		return
	}
	ctx, cancel := context.WithCancel(m.rootCtx)
	s := &session{kind: kind, scope: scope, gvr: gvr, key: key, refs: 1, cancel: cancel}
	m.sessions[key] = s
	go m.run(ctx, s)
}

// Release drops one reference. The session idles out after the grace period
// unless re-acquired; Sweep finalizes expired sessions.
func (m *Multiplexer) Release(kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) {
	key := scope.Key(kind)
	if gvr.Resource != "" {
		key = key + "#" + gvr.String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		s.refs = 0
		s.idleAt = time.Now()
	}
}

// Restart cancels and relaunches the session for an immediate relist,
// keeping its reference count. Used by :refresh.
func (m *Multiplexer) Restart(kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) {
	key := scope.Key(kind)
	if gvr.Resource != "" {
		key = key + "#" + gvr.String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return
	}
	s.cancel()
	ctx, cancel := context.WithCancel(m.rootCtx)
	fresh := &session{kind: kind, scope: scope, gvr: gvr, key: key, refs: s.refs, cancel: cancel}
	m.sessions[key] = fresh
	go m.run(ctx, fresh)
}

// Sweep cancels sessions that have been unreferenced past the idle grace.
// The runtime loop calls it on its timer.
func (m *Multiplexer) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		if s.refs == 0 && !s.idleAt.IsZero() && time.Since(s.idleAt) > idleGrace {
			s.cancel()
			delete(m.sessions, key)
		}
	}
}

// SessionCount reports live sessions, used by tests and the dashboard.
func (m *Multiplexer) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HasSession reports whether a live session exists for the key.
func (m *Multiplexer) HasSession(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok
}

// Shutdown cancels every session.
func (m *Multiplexer) Shutdown() {
	m.rootStop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = map[string]*session{}
}

// run is one session's lifecycle: list, resync, watch, reconnect with
// backoff, or poll for kinds without watch support.
func (m *Multiplexer) run(ctx context.Context, s *session) {
	failures := 0
	version := ""

	for {
		if ctx.Err() != nil {
			return
		}

		rows, listVersion, err := m.client.List(ctx, s.kind, s.scope, s.gvr)
		if err != nil {
			failures++
			logging.Warn("list failed", "kind", s.kind, "scope", s.scope.Label(), "error", err)
			if failures >= failuresBeforeSurface {
				m.bus.Publish(bus.WatchError{Kind: s.kind, ScopeKey: s.key, Err: err})
			}
			if !sleepCtx(ctx, backoff(failures)) {
				return
			}
			continue
		}
		failures = 0
		version = listVersion
		m.bus.Publish(bus.Resync{
			Kind: s.kind, ScopeKey: s.key, Scope: s.scope, Rows: rows, Version: version,
		})

		if !kinds.Caps(s.kind).Watchable {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
			continue
		}

		newVersion, err := m.consume(ctx, s, version)
		if err != nil {
			if command.IsVersionTooOld(err) {
				// The server aged out our version: full relist, Resync, keep
				// watching. The store replaces all rows for this key.
				version = ""
				continue
			}
			failures++
			logging.Warn("watch terminated", "kind", s.kind, "scope", s.scope.Label(), "error", err)
			if failures >= failuresBeforeSurface {
				m.bus.Publish(bus.WatchError{Kind: s.kind, ScopeKey: s.key, Err: err})
			}
			if !sleepCtx(ctx, backoff(failures)) {
				return
			}
			continue
		}
		failures = 0
		version = newVersion
	}
}

// consume drains one watch stream until it ends, returning the last seen
// resource version. Delta ordering is preserved from the stream into the bus.
func (m *Multiplexer) consume(ctx context.Context, s *session, fromVersion string) (string, error) {
	w, err := m.client.Watch(ctx, s.kind, s.scope, s.gvr, fromVersion)
	if err != nil {
		return fromVersion, err
	}
	defer w.Stop()

	version := fromVersion
	idle := time.NewTimer(heartbeatIdle)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return version, nil
		case <-idle.C:
			// Nothing arrived for the heartbeat window; reconnect.
			return version, nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return version, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(heartbeatIdle)

			switch ev.Type {
			case apiwatch.Bookmark:
				if obj, ok := ev.Object.(*unstructured.Unstructured); ok {
					version = obj.GetResourceVersion()
				}
			case apiwatch.Added, apiwatch.Modified, apiwatch.Deleted:
				obj, ok := ev.Object.(*unstructured.Unstructured)
				if !ok {
					continue
				}
				version = obj.GetResourceVersion()
				m.bus.Publish(bus.WatchDelta{
					Kind:     s.kind,
					ScopeKey: s.key,
					Type:     deltaType(ev.Type),
					Row:      k8s.RowFromObject(s.kind, obj),
				})
			case apiwatch.Error:
				return version, errFromStatus(ev)
			}
		}
	}
}

// errFromStatus converts a watch error event into a Go error so the version
// check and backoff logic can classify it.
func errFromStatus(ev apiwatch.Event) error {
	if status, ok := ev.Object.(*metav1.Status); ok {
		return apierrors.FromObject(status)
	}
	return fmt.Errorf("watch stream error: %v", ev.Object)
}

func deltaType(t apiwatch.EventType) store.DeltaType {
	switch t {
	case apiwatch.Added:
		return store.Added
	case apiwatch.Deleted:
		return store.Deleted
	}
	return store.Modified
}

// backoff computes the reconnect delay for the nth consecutive failure:
// 500 ms doubling to a 30 s cap, with ±20% jitter.
func backoff(failures int) time.Duration {
	d := backoffInitial
	for i := 1; i < failures; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	jitter := 1 + backoffJitterPct*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

// sleepCtx sleeps unless the context cancels first; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
