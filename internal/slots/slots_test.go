package slots

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

func newManager() *Manager {
	return NewManager(kinds.Pods, store.ScopeAll)
}

func TestManagerStartsWithSlotOne(t *testing.T) {
	m := newManager()
	assert.Equal(t, 1, m.ActiveID())
	assert.Equal(t, []int{1}, m.IDs())
	assert.Equal(t, kinds.Pods, m.Active().Top().Kind)
}

func TestSwitchCreatesMissingSlot(t *testing.T) {
	m := newManager()
	s := m.Switch(4)
	require.NotNil(t, s)
	assert.Equal(t, 4, m.ActiveID())
	assert.Equal(t, []int{1, 4}, m.IDs())
	// Pre-initialized to the default top-level view.
	assert.Equal(t, kinds.Pods, s.Top().Kind)
	assert.True(t, s.Top().Scope.AllNamespaces)
}

func TestSlotStatePreservedAcrossSwitches(t *testing.T) {
	m := newManager()

	m.Switch(2)
	slot2 := m.Active()
	slot2.Top().Kind = kinds.Services
	slot2.Top().Filter = "lb"
	slot2.Top().SelectionUID = "u42"

	m.Switch(1)
	assert.Equal(t, kinds.Pods, m.Active().Top().Kind)
	assert.Empty(t, m.Active().Top().Filter)

	m.Switch(2)
	assert.Equal(t, kinds.Services, m.Active().Top().Kind)
	assert.Equal(t, "lb", m.Active().Top().Filter)
	assert.Equal(t, "u42", m.Active().Top().SelectionUID)
}

// Mutating one slot's state never changes what another slot observes.
func TestSlotIsolation(t *testing.T) {
	m := newManager()
	m.Switch(2)
	m.Active().Push(Frame{Kind: kinds.Deployments, Scope: store.ScopeAll, Filter: "api"})
	m.Active().Top().SelectionUID = "dep-1"

	m.Switch(1)
	one := m.Active()
	assert.Equal(t, 1, one.Depth())
	assert.Equal(t, kinds.Pods, one.Top().Kind)
	assert.Empty(t, one.Top().Filter)
	assert.Empty(t, one.Top().SelectionUID)
}

func TestDeleteLastSlotForbidden(t *testing.T) {
	m := newManager()
	assert.Nil(t, m.Delete(1), "the last slot cannot be deleted")
	assert.Equal(t, []int{1}, m.IDs())
}

func TestDeleteActiveSlotFallsBackToLowest(t *testing.T) {
	m := newManager()
	m.Switch(3)
	m.Switch(5)
	require.Equal(t, 5, m.ActiveID())

	victim := m.Delete(5)
	require.NotNil(t, victim)
	assert.Equal(t, 1, m.ActiveID(), "lowest surviving id becomes active")
	assert.Equal(t, []int{1, 3}, m.IDs())
}

func TestDrillStackRootNeverPops(t *testing.T) {
	s := NewSlot(1, kinds.Deployments, store.ScopeAll)
	assert.False(t, s.Pop(), "root frame is never popped")

	s.Push(Frame{Kind: kinds.Pods, Scope: store.ScopeNamespace("default")})
	assert.Equal(t, 2, s.Depth())
	assert.True(t, s.Pop())
	assert.False(t, s.Pop())
	assert.Equal(t, kinds.Deployments, s.Top().Kind)
}

func TestResetToRoot(t *testing.T) {
	s := NewSlot(1, kinds.Deployments, store.ScopeAll)
	s.Push(Frame{Kind: kinds.Pods})
	s.Push(Frame{Kind: kinds.Events})
	s.ResetToRoot()
	assert.Equal(t, 1, s.Depth())
	assert.Equal(t, kinds.Deployments, s.Top().Kind)
}

func TestOverlayLifecycle(t *testing.T) {
	s := NewSlot(1, kinds.Pods, store.ScopeAll)
	require.Nil(t, s.Overlay())

	buf := s.OpenOverlay(Overlay{Kind: OverlayLogs, BufferKey: "logs-1", TaskID: 7})
	require.NotNil(t, buf)
	require.NotNil(t, s.Overlay())

	buf.Append("one", "two")
	got, ok := s.BufferFor("logs-1")
	require.True(t, ok)
	assert.Equal(t, []string{"one", "two"}, got.Lines())

	// Closing returns the task id for cancellation and frees the buffer.
	taskID := s.CloseOverlay()
	assert.Equal(t, 7, taskID)
	assert.Nil(t, s.Overlay())
	_, ok = s.BufferFor("logs-1")
	assert.False(t, ok, "arena entry freed when the overlay closes")
}

func TestAtMostOneOverlayPerSlot(t *testing.T) {
	s := NewSlot(1, kinds.Pods, store.ScopeAll)
	s.OpenOverlay(Overlay{Kind: OverlayLogs, BufferKey: "logs-1", TaskID: 1})
	s.OpenOverlay(Overlay{Kind: OverlayDetails, BufferKey: "details"})

	assert.Equal(t, OverlayDetails, s.Overlay().Kind)
	_, ok := s.BufferFor("logs-1")
	assert.False(t, ok, "previous overlay's buffer is freed")
}

func TestBufferEvictsOldestBeyondCap(t *testing.T) {
	b := &Buffer{cap: 100}
	for i := 0; i < 150; i++ {
		b.Append(fmt.Sprintf("line-%d", i))
	}
	assert.Equal(t, 100, b.Len())
	assert.Equal(t, "line-50", b.Lines()[0], "oldest lines evicted first")
	assert.Equal(t, "line-149", b.Lines()[99])
}

func TestSetDefaultScopeSeedsNewSlots(t *testing.T) {
	m := newManager()
	m.SetDefaultScope(store.ScopeNamespace("prod"))
	s := m.Switch(7)
	assert.Equal(t, "prod", s.Top().Scope.Namespace)
}
