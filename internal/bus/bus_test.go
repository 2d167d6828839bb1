package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

func delta(key, uid, name string) WatchDelta {
	return WatchDelta{
		Kind:     kinds.Pods,
		ScopeKey: key,
		Type:     store.Modified,
		Row:      store.Row{UID: uid, Kind: kinds.Pods, Name: name},
	}
}

func TestPublishAndDrainOrder(t *testing.T) {
	b := New(16)
	b.Publish(delta("pods", "u1", "a"))
	b.Publish(delta("pods", "u2", "b"))
	b.Publish(TaskExit{TaskID: 1})

	events := b.Drain(0)
	require.Len(t, events, 3)
	assert.Equal(t, "u1", events[0].(WatchDelta).Row.UID)
	assert.Equal(t, "u2", events[1].(WatchDelta).Row.UID)
	_, ok := events[2].(TaskExit)
	assert.True(t, ok)
}

func TestDrainBoundedBatch(t *testing.T) {
	b := New(64)
	for i := 0; i < 10; i++ {
		b.Publish(delta("pods", fmt.Sprintf("u%d", i), "p"))
	}
	first := b.Drain(4)
	assert.Len(t, first, 4)
	assert.Equal(t, 6, b.Pending())

	rest := b.Drain(100)
	assert.Len(t, rest, 6)
	assert.Equal(t, 0, b.Pending())
}

func TestWatchDeltaCoalescesPerUID(t *testing.T) {
	b := New(16)
	b.Publish(delta("pods", "u1", "first"))
	updated := delta("pods", "u1", "second")
	b.Publish(updated)

	events := b.Drain(0)
	require.Len(t, events, 1, "same (scope key, uid) coalesces to the latest delta")
	assert.Equal(t, "second", events[0].(WatchDelta).Row.Name)
}

func TestWatchDeltaDistinctUIDsDoNotCoalesce(t *testing.T) {
	b := New(16)
	b.Publish(delta("pods", "u1", "a"))
	b.Publish(delta("pods", "u2", "b"))
	assert.Equal(t, 2, b.Pending())
}

func TestWatchDeltaNeverBlocksAtCapacity(t *testing.T) {
	b := New(4)
	for i := 0; i < 20; i++ {
		done := make(chan struct{})
		go func(i int) {
			b.Publish(delta("pods", fmt.Sprintf("u%d", i), "p"))
			close(done)
		}(i)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("watch delta publish blocked on a full bus")
		}
	}
	assert.LessOrEqual(t, b.Pending(), 5)
}

func TestNonWatchPublishBlocksUntilDrain(t *testing.T) {
	b := New(2)
	b.Publish(TaskExit{TaskID: 1})
	b.Publish(TaskExit{TaskID: 2})

	released := make(chan struct{})
	go func() {
		b.Publish(TaskOutput{TaskID: 3, Lines: []string{"x"}}) // back-pressure
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("TaskOutput publish should block while the bus is full")
	case <-time.After(50 * time.Millisecond):
	}

	b.Drain(1)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("publisher was not released after drain")
	}
}

func TestWaitSignalsNewEvents(t *testing.T) {
	b := New(16)
	select {
	case <-b.Wait():
		t.Fatal("no signal expected on an empty bus")
	default:
	}
	b.Publish(TaskExit{TaskID: 1})
	select {
	case <-b.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected wake-up signal after publish")
	}
}

func TestCloseReleasesBlockedPublishers(t *testing.T) {
	b := New(1)
	b.Publish(TaskExit{TaskID: 1})

	released := make(chan struct{})
	go func() {
		b.Publish(TaskExit{TaskID: 2})
		close(released)
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Close must release blocked publishers")
	}
}
