package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/testutil"
)

// drainUntil keeps draining the bus until pred says stop or the deadline
// passes, returning everything seen.
func drainUntil(t *testing.T, b *bus.Bus, pred func([]bus.Event) bool) []bus.Event {
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
	t.Fatalf("condition not reached, saw %d events", len(seen))
	return nil
}

func hasExit(events []bus.Event) bool {
	for _, ev := range events {
		if _, ok := ev.(bus.TaskExit); ok {
			return true
		}
	}
	return false
}

func TestLogTailStreamsToBus(t *testing.T) {
	b := bus.New(64)
	sup := NewSupervisor(testutil.NewFakeClient(), b)

	taskID := sup.StartLogTail("default", "web-1", k8s.LogOptions{TailLines: 100})
	events := drainUntil(t, b, hasExit)

	lines := []string{}
	for _, ev := range events {
		if out, ok := ev.(bus.TaskOutput); ok {
			assert.Equal(t, taskID, out.TaskID)
			lines = append(lines, out.Lines...)
		}
	}
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestPortForwardTransitionsLiveThenClosed(t *testing.T) {
	b := bus.New(64)
	client := testutil.NewFakeClient()
	sup := NewSupervisor(client, b)
	reg := NewPFRegistry()

	session := reg.Insert(kinds.Pods, "x", "y", 18080, 80)
	sup.StartPortForward(session)

	events := drainUntil(t, b, func(seen []bus.Event) bool {
		for _, ev := range seen {
			if pf, ok := ev.(bus.PFTransition); ok && pf.State == PFLive.String() {
				return true
			}
		}
		return false
	})
	for _, ev := range events {
		if pf, ok := ev.(bus.PFTransition); ok {
			assert.Equal(t, session.ID, pf.ID)
		}
	}

	// Requested cancellation closes the forwarder.
	require.True(t, reg.Close(session.ID))
	drainUntil(t, b, func(seen []bus.Event) bool {
		for _, ev := range seen {
			if pf, ok := ev.(bus.PFTransition); ok && pf.State == PFClosed.String() {
				return true
			}
		}
		return false
	})
	assert.Equal(t, 1, client.PFStarted)
}

func TestCancelStopsLogTail(t *testing.T) {
	b := bus.New(64)
	sup := NewSupervisor(testutil.NewFakeClient(), b)

	taskID := sup.StartLogTail("default", "web-1", k8s.LogOptions{Follow: true})
	time.Sleep(20 * time.Millisecond)
	sup.Cancel(taskID)

	drainUntil(t, b, hasExit)
}

func TestShutdownDrains(t *testing.T) {
	b := bus.New(64)
	sup := NewSupervisor(testutil.NewFakeClient(), b)
	sup.StartLogTail("default", "web-1", k8s.LogOptions{Follow: true})

	done := make(chan struct{})
	go func() {
		sup.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return within the drain window")
	}
}
