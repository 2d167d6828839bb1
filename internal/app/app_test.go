package app

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/actions"
	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/modes"
	"github.com/ASoldo/orca/internal/slots"
	"github.com/ASoldo/orca/internal/store"
	"github.com/ASoldo/orca/internal/testutil"
	"github.com/ASoldo/orca/internal/ui"
)

func newTestModel(t *testing.T, client *testutil.FakeClient, readonly bool) *Model {
	t.Helper()
	m := NewModel(Options{
		Client:        client,
		Theme:         ui.ThemeCharm(),
		RefreshMs:     500,
		AllNamespaces: true,
		ReadOnly:      readonly,
	})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Init()
	t.Cleanup(m.Teardown)
	return m
}

func tick(m *Model) {
	m.Update(tickMsg(time.Now()))
}

// pump ticks until cond holds or the deadline passes.
func pump(t *testing.T, m *Model, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		tick(m)
		return cond()
	}, 3*time.Second, 10*time.Millisecond)
}

func press(m *Model, keys string) {
	for _, r := range keys {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func pressEnter(m *Model) { m.Update(tea.KeyMsg{Type: tea.KeyEnter}) }
func pressEsc(m *Model)   { m.Update(tea.KeyMsg{Type: tea.KeyEsc}) }

func typeCommand(m *Model, cmd string) {
	press(m, ":")
	press(m, cmd)
	pressEnter(m)
}

// Scenario 1: launch with all namespaces, Pods auto-active; a watch Added
// appears after one tick and is selectable.
func TestWatchAddedRowAppearsAndIsSelectable(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	require.Equal(t, kinds.Pods, m.slots.Active().Top().Kind, "Pods tab auto-active")

	// Wait for the session's initial resync so the table exists.
	key := m.slots.Active().Top().Key()
	pump(t, m, func() bool {
		_, ok := m.store.Lookup(key)
		return ok
	})

	m.bus.Publish(bus.WatchDelta{
		Kind:     kinds.Pods,
		ScopeKey: m.slots.Active().Top().Key(),
		Type:     store.Added,
		Row:      testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	// The table needs an existing table entry for deltas; ensure the resync
	// from the session did not wipe it, then navigate.
	press(m, "j")
	row, ok := m.activeTable().Selected()
	require.True(t, ok)
	assert.Equal(t, "web-1", row.Name)
	assert.Contains(t, m.View(), "web-1")
}

// Scenario 2: :delete shows a confirm prompt naming the target; 'n' cancels
// without any API call and keeps the selection.
func TestDeleteConfirmCancelMakesNoCall(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	typeCommand(m, "delete")
	require.NotNil(t, m.gate.Pending(), "delete must park at the confirm gate")
	assert.Equal(t, modes.Confirm, m.interp.Mode())
	assert.Contains(t, m.View(), "default/web-1")

	// Navigation is disabled while confirming.
	press(m, "j")
	assert.Equal(t, modes.Confirm, m.interp.Mode())

	press(m, "n")
	assert.Nil(t, m.gate.Pending())
	assert.Empty(t, client.Deleted, "no API call after cancel")
	row, ok := m.activeTable().Selected()
	require.True(t, ok)
	assert.Equal(t, "u1", row.UID, "selection preserved")
}

func TestDeleteConfirmYesCallsCollaborator(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	typeCommand(m, "delete")
	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, cmd)
	msg := cmd() // run the mutation command synchronously
	m.Update(msg)

	require.Len(t, client.Deleted, 1)
	assert.Equal(t, "default/web-1", client.Deleted[0].String())
}

// Scenario 3: read-only start blocks :scale with no cluster call.
func TestReadOnlyBlocksScale(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Deployments, []store.Row{
		testutil.Row(kinds.Deployments, "d1", "default", "api", "2/2", "2", "2"),
	})
	m := newTestModel(t, client, true)

	typeCommand(m, "deploy")
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	typeCommand(m, "scale 3")
	assert.Empty(t, client.Scaled, "no scale call while read-only")
	assert.Contains(t, m.statusBar.Message(), "read-only")
	assert.Nil(t, m.gate.Pending())
}

func TestScaleExecutesImmediatelyByDefault(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Deployments, []store.Row{
		testutil.Row(kinds.Deployments, "d1", "default", "api", "2/2", "2", "2"),
	})
	m := newTestModel(t, client, false)

	typeCommand(m, "deploy")
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	press(m, ":")
	press(m, "scale 3")
	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd, "scale is immediate, no confirm gate")
	m.Update(cmd())

	assert.Equal(t, 3, client.Scaled["default/api"])
	assert.Nil(t, m.gate.Pending())
}

// Scenario 4: port-forward transitions to Live and populates the PF column;
// an unrelated confirmation does not touch it.
func TestPortForwardLifecycleAndPFColumn(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "x", "y", "Running"),
	})
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	typeCommand(m, "pf 8080:80")
	session, ok := m.pf.LookupTarget(kinds.Pods, "x", "y")
	require.True(t, ok)
	assert.Equal(t, actions.PFStarting, session.State)

	pump(t, m, func() bool {
		s, ok := m.pf.LookupTarget(kinds.Pods, "x", "y")
		return ok && s.State == actions.PFLive
	})
	assert.Contains(t, m.View(), "8080→80", "PF column populated for x/y")

	// An unrelated confirmation cancelled with 'n' leaves the forward alone.
	typeCommand(m, "delete")
	press(m, "n")
	s, ok := m.pf.LookupTarget(kinds.Pods, "x", "y")
	require.True(t, ok)
	assert.Equal(t, actions.PFLive, s.State)
}

// Scenario 5: a version-too-old resync replaces rows; a vanished selection
// snaps to the nearest surviving row.
func TestResyncReplacesRowsAndSnapsSelection(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)
	key := m.slots.Active().Top().Key()
	pump(t, m, func() bool {
		_, ok := m.store.Lookup(key)
		return ok
	})

	m.bus.Publish(bus.Resync{
		Kind: kinds.Pods, ScopeKey: key, Scope: store.ScopeAll,
		Rows: []store.Row{
			testutil.PodRow("u1", "default", "a", "Running"),
			testutil.PodRow("u2", "default", "b", "Running"),
			testutil.PodRow("u3", "default", "c", "Running"),
		},
	})
	pump(t, m, func() bool { return m.activeTable().Len() == 3 })
	m.selectIndex(1) // u2

	m.bus.Publish(bus.Resync{
		Kind: kinds.Pods, ScopeKey: key, Scope: store.ScopeAll,
		Rows: []store.Row{
			testutil.PodRow("u1", "default", "a", "Running"),
			testutil.PodRow("u3", "default", "c", "Running"),
		},
	})
	pump(t, m, func() bool { return m.activeTable().TotalLen() == 2 })

	for _, r := range m.activeTable().Rows() {
		assert.NotEqual(t, "u2", r.UID, "pod deleted during the gap is gone")
	}
	row, ok := m.activeTable().Selected()
	require.True(t, ok, "selection snapped to a surviving row")
	assert.Equal(t, "c", row.Name)
}

// Scenario 6: slot 2 keeps its tab and filter across switches.
func TestSlotStateSurvivesSwitching(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Services, []store.Row{
		testutil.Row(kinds.Services, "s1", "default", "lb-web", "LoadBalancer"),
		testutil.Row(kinds.Services, "s2", "default", "internal", "ClusterIP"),
	})
	m := newTestModel(t, client, false)

	press(m, "2") // create + switch to slot 2
	require.Equal(t, 2, m.slots.ActiveID())

	typeCommand(m, "svc")
	pump(t, m, func() bool { return m.activeTable().TotalLen() == 2 })
	press(m, "/")
	press(m, "lb")
	pressEnter(m)
	assert.Equal(t, 1, m.activeTable().Len())

	press(m, "1")
	assert.Equal(t, kinds.Pods, m.slots.Active().Top().Kind)
	assert.Empty(t, m.slots.Active().Top().Filter)

	press(m, "2")
	assert.Equal(t, kinds.Services, m.slots.Active().Top().Kind)
	assert.Equal(t, "lb", m.slots.Active().Top().Filter)
	assert.Equal(t, 1, m.activeTable().Len())
}

func TestSlotDeleteGuards(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	// The last slot cannot be deleted.
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1"), Alt: true})
	assert.Equal(t, []int{1}, m.slots.IDs())

	press(m, "3")
	require.Equal(t, []int{1, 3}, m.slots.IDs())

	// Deleting the active slot activates the lowest surviving id.
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3"), Alt: true})
	assert.Equal(t, []int{1}, m.slots.IDs())
	assert.Equal(t, 1, m.slots.ActiveID())
}

func TestUnknownCommandKeepsBuffer(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	press(m, ":")
	press(m, "frobnicate")
	pressEnter(m)

	assert.Equal(t, modes.Command, m.interp.Mode(), "error keeps the input mode")
	assert.Equal(t, "frobnicate", m.interp.Buffer(), "buffer preserved for editing")
	assert.NotEmpty(t, m.statusBar.Message())

	pressEsc(m)
	assert.Equal(t, modes.Normal, m.interp.Mode())
}

func TestNamespaceScopeCommands(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	typeCommand(m, "ns kube-system")
	assert.Equal(t, "kube-system", m.slots.Active().Top().Scope.Namespace)

	typeCommand(m, "all-ns")
	assert.True(t, m.slots.Active().Top().Scope.AllNamespaces)

	// ':ns' alone switches to the Namespaces tab.
	typeCommand(m, "ns")
	assert.Equal(t, kinds.Namespaces, m.slots.Active().Top().Kind)
}

func TestDrillDownAndEscRestores(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Deployments, []store.Row{
		testutil.Row(kinds.Deployments, "d1", "default", "api", "2/2", "2", "2"),
	})
	m := newTestModel(t, client, false)

	typeCommand(m, "deploy")
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	pressEnter(m) // drill into pods owned by the deployment
	top := m.slots.Active().Top()
	assert.Equal(t, kinds.Pods, top.Kind)
	assert.Equal(t, "api", top.Filter)
	assert.Equal(t, 2, m.slots.Active().Depth())

	pressEsc(m)
	assert.Equal(t, 1, m.slots.Active().Depth())
	assert.Equal(t, kinds.Deployments, m.slots.Active().Top().Kind)
}

func TestJumpResetsDrillStack(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Deployments, []store.Row{
		testutil.Row(kinds.Deployments, "d1", "default", "api", "2/2", "2", "2"),
	})
	m := newTestModel(t, client, false)

	typeCommand(m, "deploy")
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })
	pressEnter(m)
	require.Equal(t, 2, m.slots.Active().Depth())

	press(m, ">")
	press(m, "svc")
	pressEnter(m)
	assert.Equal(t, 1, m.slots.Active().Depth(), "jump resets the drill stack to root")
	assert.Equal(t, kinds.Services, m.slots.Active().Top().Kind)
}

func TestReadonlyToggleCommand(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	typeCommand(m, "readonly on")
	assert.True(t, m.guard.On())
	typeCommand(m, "readonly toggle")
	assert.False(t, m.guard.On())
}

func TestHelpOverlayOpensAndCloses(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	press(m, "?")
	require.NotNil(t, m.slots.Active().Overlay())
	assert.Equal(t, modes.Overlay, m.interp.Mode())
	assert.Contains(t, m.View(), "Navigation")

	pressEsc(m)
	assert.Nil(t, m.slots.Active().Overlay())
	assert.Equal(t, modes.Normal, m.interp.Mode())
}

func TestContainerPickerBeforeLogs(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	client.Containers["default/web-1"] = []string{"app", "sidecar"}
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	require.NotNil(t, cmd)
	m.Update(cmd()) // containersMsg

	overlay := m.slots.Active().Overlay()
	require.NotNil(t, overlay)
	assert.Equal(t, slots.OverlayContainerPicker, overlay.Kind)
	assert.Equal(t, modes.Overlay, m.interp.Mode())

	press(m, "j") // move to "sidecar"
	pressEnter(m)

	overlay = m.slots.Active().Overlay()
	require.NotNil(t, overlay, "picking a container opens the logs overlay")
	assert.Equal(t, slots.OverlayLogs, overlay.Kind)
	assert.Contains(t, overlay.Title, "default/web-1")

	pump(t, m, func() bool {
		buf, ok := m.slots.Active().BufferFor(overlay.BufferKey)
		return ok && buf.Len() >= 2
	})
}

func TestSingleContainerSkipsPicker(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	require.NotNil(t, cmd)
	m.Update(cmd())

	overlay := m.slots.Active().Overlay()
	require.NotNil(t, overlay)
	assert.Equal(t, slots.OverlayLogs, overlay.Kind)
}

func TestDetailsOverlayShowsDocument(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetRows(kinds.Pods, []store.Row{
		testutil.PodRow("u1", "default", "web-1", "Running"),
	})
	m := newTestModel(t, client, false)
	pump(t, m, func() bool { return m.activeTable().Len() == 1 })

	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	require.NotNil(t, cmd)
	m.Update(cmd())

	overlay := m.slots.Active().Overlay()
	require.NotNil(t, overlay)
	assert.Equal(t, slots.OverlayDetails, overlay.Kind)
	assert.Contains(t, m.View(), "web-1")
}

func TestQuitKey(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(t, client, false)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
