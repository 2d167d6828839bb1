package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	apiwatch "k8s.io/apimachinery/pkg/watch"

	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
	"github.com/ASoldo/orca/internal/testutil"
)

func podObject(uid, namespace, name, version string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata": map[string]any{
			"uid":               uid,
			"namespace":         namespace,
			"name":              name,
			"resourceVersion":   version,
			"creationTimestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"status": map[string]any{"phase": "Running"},
	}}
}

func collect(t *testing.T, b *bus.Bus, pred func([]bus.Event) bool) []bus.Event {
	t.Helper()
	seen := []bus.Event{}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		seen = append(seen, b.Drain(0)...)
		if pred(seen) {
			return seen
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached, saw %v", seen)
	return nil
}

func firstResync(events []bus.Event) (bus.Resync, bool) {
	for _, ev := range events {
		if rs, ok := ev.(bus.Resync); ok {
			return rs, true
		}
	}
	return bus.Resync{}, false
}

func TestAcquireStartsSessionAndResyncs(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	b := bus.New(256)
	m := New(client, b, 500)
	defer m.Shutdown()

	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})
	assert.Equal(t, 1, m.SessionCount())

	events := collect(t, b, func(seen []bus.Event) bool {
		_, ok := firstResync(seen)
		return ok
	})
	rs, _ := firstResync(events)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, "u1", rs.Rows[0].UID)
}

func TestAcquireDeduplicatesSessions(t *testing.T) {
	client := testutil.NewFakeClient()
	b := bus.New(256)
	m := New(client, b, 500)
	defer m.Shutdown()

	// Two view slots referencing the same (kind, scope) share one session.
	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})
	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})
	assert.Equal(t, 1, m.SessionCount())

	// Different scope keys get their own sessions.
	m.Acquire(kinds.Pods, store.ScopeNamespace("default"), schema.GroupVersionResource{})
	assert.Equal(t, 2, m.SessionCount())
}

func TestReleaseKeepsSessionUntilGrace(t *testing.T) {
	client := testutil.NewFakeClient()
	b := bus.New(256)
	m := New(client, b, 500)
	defer m.Shutdown()

	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})
	m.Release(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})

	// Within the grace window the session survives a sweep.
	m.Sweep()
	assert.Equal(t, 1, m.SessionCount())

	// Re-acquiring keeps it referenced.
	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})
	m.Sweep()
	assert.Equal(t, 1, m.SessionCount())
}

func TestWatchDeltasFlowToBus(t *testing.T) {
	client := testutil.NewFakeClient()
	b := bus.New(256)
	m := New(client, b, 500)
	defer m.Shutdown()

	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})

	// Wait for the session's watch stream to open, then feed it.
	var watchers []*apiwatch.FakeWatcher
	require.Eventually(t, func() bool {
		watchers = client.Watchers()
		return len(watchers) > 0
	}, 2*time.Second, 10*time.Millisecond)

	watchers[0].Add(podObject("u7", "default", "web-7", "5"))

	events := collect(t, b, func(seen []bus.Event) bool {
		for _, ev := range seen {
			if d, ok := ev.(bus.WatchDelta); ok && d.Row.UID == "u7" {
				return true
			}
		}
		return false
	})
	for _, ev := range events {
		if d, ok := ev.(bus.WatchDelta); ok && d.Row.UID == "u7" {
			assert.Equal(t, store.Added, d.Type)
			assert.Equal(t, "web-7", d.Row.Name)
		}
	}
}

func TestVersionTooOldTriggersRelist(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	b := bus.New(256)
	m := New(client, b, 500)
	defer m.Shutdown()

	m.Acquire(kinds.Pods, store.ScopeAll, schema.GroupVersionResource{})

	var watchers []*apiwatch.FakeWatcher
	require.Eventually(t, func() bool {
		watchers = client.Watchers()
		return len(watchers) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// The pod disappears during the gap, then the server expires our
	// resource version.
	client.SetRows(kinds.Pods, nil)
	watchers[0].Error(&metav1.Status{
		Code:    410,
		Reason:  metav1.StatusReasonExpired,
		Message: "too old resource version",
	})

	resyncs := 0
	collect(t, b, func(seen []bus.Event) bool {
		resyncs = 0
		for _, ev := range seen {
			if _, ok := ev.(bus.Resync); ok {
				resyncs++
			}
		}
		return resyncs >= 2
	})
	assert.GreaterOrEqual(t, resyncs, 2, "expired version forces a full relist and Resync")
}

func TestBackoffSchedule(t *testing.T) {
	// 500 ms doubling to the 30 s cap, with ±20% jitter.
	for failures, base := range map[int]time.Duration{
		1: 500 * time.Millisecond,
		2: time.Second,
		3: 2 * time.Second,
		7: 30 * time.Second,
		9: 30 * time.Second,
	} {
		for i := 0; i < 20; i++ {
			d := backoff(failures)
			low := time.Duration(float64(base) * 0.79)
			high := time.Duration(float64(base) * 1.21)
			assert.GreaterOrEqual(t, d, low, "failures=%d", failures)
			assert.LessOrEqual(t, d, high, "failures=%d", failures)
		}
	}
}
