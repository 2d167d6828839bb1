package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ASoldo/orca/internal/actions"
	"github.com/ASoldo/orca/internal/command"
	"github.com/ASoldo/orca/internal/config"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/logging"
	"github.com/ASoldo/orca/internal/modes"
	"github.com/ASoldo/orca/internal/slots"
	"github.com/ASoldo/orca/internal/store"
	"github.com/ASoldo/orca/internal/ui"
)

// mutationTimeout bounds confirmed cluster mutations.
const mutationTimeout = 30 * time.Second

// handleKey routes one key event through the interpreter.
func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	act := m.interp.Handle(key)

	switch act.Kind {
	case modes.ActQuit:
		m.quitting = true
		return m, tea.Quit

	case modes.ActSlotSwitch:
		m.switchSlot(act.Slot)
		m.invalidate()
		return m, nil

	case modes.ActSlotDelete:
		return m, m.deleteSlot(act.Slot)

	case modes.ActMoveDown:
		m.moveSelection(1)
	case modes.ActMoveUp:
		m.moveSelection(-1)
	case modes.ActTop:
		m.selectIndex(0)
	case modes.ActBottom:
		m.selectIndex(m.activeTable().Len() - 1)
	case modes.ActHalfPageDown:
		m.moveSelection(m.bodyHeight() / 2)
	case modes.ActHalfPageUp:
		m.moveSelection(-m.bodyHeight() / 2)

	case modes.ActNextTab:
		m.cycleTab(1)
	case modes.ActPrevTab:
		m.cycleTab(-1)

	case modes.ActEnterRow:
		return m, m.drillDown()

	case modes.ActPopFrame:
		return m, m.popOrClear()

	case modes.ActRefresh:
		frame := m.slots.Active().Top()
		m.mux.Restart(frame.Kind, frame.Scope, frame.GVR)
		return m, m.infoStatus("refreshing %s", frame.Kind.Title())

	case modes.ActToggleHelp:
		m.openHelpOverlay()
	case modes.ActToggleDashboard:
		m.openDashboardOverlay()

	case modes.ActShowDetails:
		return m, m.openDetails()
	case modes.ActShowLogs:
		return m, m.prepareContainerAction("logs", nil)
	case modes.ActShowShell:
		return m, m.prepareContainerAction("shell", nil)
	case modes.ActEditResource:
		return m, m.startEdit()
	case modes.ActPortForwardPrompt:
		m.interp.StartCommand("pf ")
		m.seedCompletions()

	case modes.ActStartFilter:
		// The filter buffer starts empty; the frame's current query stays
		// applied until the buffer changes.
		m.seedCompletions()
	case modes.ActStartCommand, modes.ActStartJump:
		m.seedCompletions()

	case modes.ActBufferChanged:
		if act.Mode == modes.Filter {
			m.applyFilter(act.Buffer)
		}

	case modes.ActSubmit:
		return m.handleSubmit(act)

	case modes.ActCancelInput:
		if act.Mode == modes.Filter {
			m.applyFilter("")
		}

	case modes.ActConfirmYes:
		return m, m.confirmPending()
	case modes.ActConfirmNo:
		m.gate.Discard()
		return m, m.infoStatus("cancelled")

	case modes.ActHotkey:
		return m.runCommandString(act.Hotkey.Command, act.Hotkey.Jump)

	case modes.ActOverlayKey:
		return m, m.handleOverlayKey(act.Key)
	}
	return m, nil
}

// seedCompletions feeds the autocomplete set: builtin verbs, user aliases,
// kind aliases and the visible resource names.
func (m *Model) seedCompletions() {
	candidates := command.BuiltinVerbs()
	candidates = append(candidates, kinds.AllTokens()...)
	for alias := range m.cfg.Aliases {
		candidates = append(candidates, alias)
	}
	candidates = append(candidates, m.cfg.PluginNames()...)
	for _, r := range m.activeTable().Rows() {
		candidates = append(candidates, r.Name)
	}
	m.interp.SetCompletions(candidates)
}

// selection helpers

func (m *Model) moveSelection(delta int) {
	t := m.activeTable()
	t.Move(delta)
	m.afterSelection(t)
}

func (m *Model) selectIndex(i int) {
	t := m.activeTable()
	t.Select(i)
	m.afterSelection(t)
}

func (m *Model) afterSelection(t *store.Table) {
	m.slots.Active().Top().SelectionUID = t.SelectionUID()
	if idx := t.SelectionIndex(); idx >= 0 {
		m.grid.SetCursor(idx)
	}
}

func (m *Model) applyFilter(query string) {
	t := m.activeTable()
	t.SetFilter(query)
	m.slots.Active().Top().Filter = query
	m.invalidate()
}

func (m *Model) invalidate() {
	m.renderedKey = ""
}

// frame plumbing: every frame holds one watch reference for its table.

func (m *Model) setTopFrame(f slots.Frame) {
	slot := m.slots.Active()
	old := *slot.Top()
	if old.Key() != f.Key() {
		m.mux.Acquire(f.Kind, f.Scope, f.GVR)
		m.mux.Release(old.Kind, old.Scope, old.GVR)
	}
	*slot.Top() = f
	m.reapplyFrameFilter()
	m.invalidate()
}

func (m *Model) pushFrame(f slots.Frame) {
	m.mux.Acquire(f.Kind, f.Scope, f.GVR)
	m.slots.Active().Push(f)
	t := m.store.TableKeyed(f.Key(), f.Kind, f.Scope)
	t.SetFilter(f.Filter)
	m.invalidate()
}

func (m *Model) popFrame() bool {
	slot := m.slots.Active()
	old := *slot.Top()
	if !slot.Pop() {
		return false
	}
	m.mux.Release(old.Kind, old.Scope, old.GVR)
	m.invalidate()
	return true
}

func (m *Model) cycleTab(dir int) {
	frame := *m.slots.Active().Top()
	if frame.Kind == kinds.CRDInstances {
		return
	}
	idx := 0
	for i, k := range kinds.All {
		if k == frame.Kind {
			idx = i
			break
		}
	}
	// CRDInstances is not a cyclable tab; skip it.
	next := kinds.All[(idx+dir+len(kinds.All))%len(kinds.All)]
	if next == kinds.CRDInstances {
		next = kinds.All[(idx+2*dir+len(kinds.All))%len(kinds.All)]
	}
	frame.Kind = next
	frame.Filter = ""
	frame.GVR = schemaZero
	frame.Title = ""
	m.setTopFrame(frame)
}

// popOrClear implements Esc in normal mode: close overlay, else pop the
// drill stack, else clear the root frame's filter. The root never pops.
func (m *Model) popOrClear() tea.Cmd {
	slot := m.slots.Active()
	if slot.Overlay() != nil {
		m.closeActiveOverlay()
		return nil
	}
	if m.popFrame() {
		m.reapplyFrameFilter()
		return nil
	}
	if t := m.activeTable(); t.FilterQuery() != "" {
		m.applyFilter("")
	}
	return nil
}

// reapplyFrameFilter re-installs the active frame's filter on its shared
// table. Tables are keyed by (kind, scope) and shared across slots, so the
// incoming frame's filter wins when views disagree.
func (m *Model) reapplyFrameFilter() {
	frame := m.slots.Active().Top()
	t := m.activeTable()
	if t.FilterQuery() != frame.Filter {
		t.SetFilter(frame.Filter)
	}
}

// slot lifecycle

func (m *Model) switchSlot(id int) {
	if _, exists := m.slots.Get(id); !exists {
		created := m.slots.Switch(id)
		root := created.Top()
		m.mux.Acquire(root.Kind, root.Scope, root.GVR)
	} else {
		m.slots.Switch(id)
	}

	// The interpreter mode follows the incoming slot's overlay state, except
	// while a confirmation is pending.
	if m.interp.Mode() == modes.Confirm {
		return
	}
	slot := m.slots.Active()
	m.reapplyFrameFilter()
	if slot.Overlay() != nil {
		m.interp.EnterOverlay()
		m.resetOverlayViewport(slot)
	} else if m.interp.Mode() == modes.Overlay {
		m.interp.Reset()
	}
}

func (m *Model) deleteSlot(id int) tea.Cmd {
	victim, ok := m.slots.Get(id)
	if !ok {
		return nil
	}
	if len(m.slots.IDs()) == 1 {
		return m.errorStatus("cannot delete the last view slot")
	}
	// Cancel the overlay task and release every frame's watch reference.
	if taskID := victim.CloseOverlay(); taskID != 0 {
		m.sup.Cancel(taskID)
		delete(m.taskRoutes, taskID)
	}
	for victim.Depth() > 0 {
		f := *victim.Top()
		m.mux.Release(f.Kind, f.Scope, f.GVR)
		if !victim.Pop() {
			break
		}
	}
	delete(m.pickers, id)
	m.slots.Delete(id)
	m.invalidate()
	return nil
}

// drillDown pushes the workload→pod→container relationship frame for the
// selected row.
func (m *Model) drillDown() tea.Cmd {
	row, ok := m.activeTable().Selected()
	if !ok {
		return nil
	}
	frame := *m.slots.Active().Top()

	switch frame.Kind {
	case kinds.Deployments, kinds.ReplicaSets, kinds.ReplicationControllers,
		kinds.StatefulSets, kinds.DaemonSets, kinds.Jobs, kinds.CronJobs,
		kinds.Services:
		scope := frame.Scope
		if row.Namespace != "" {
			scope = store.ScopeNamespace(row.Namespace)
		}
		m.pushFrame(slots.Frame{Kind: kinds.Pods, Scope: scope, Filter: row.Name})
		return nil

	case kinds.Namespaces:
		m.pushFrame(slots.Frame{Kind: kinds.Pods, Scope: store.ScopeNamespace(row.Name)})
		return nil

	case kinds.Nodes:
		m.pushFrame(slots.Frame{Kind: kinds.Pods, Scope: store.ScopeAll, Filter: row.Name})
		return nil

	case kinds.CRDs:
		gvr := k8s.CRDInfo{
			Group:   row.Extra["group"],
			Version: row.Extra["version"],
			Plural:  row.Extra["plural"],
		}.GVR()
		if gvr.Resource == "" {
			return m.errorStatus("CRD %s has no served version", row.Name)
		}
		m.pushFrame(slots.Frame{
			Kind: kinds.CRDInstances, Scope: frame.Scope, GVR: gvr, Title: row.Name,
		})
		return nil

	case kinds.Pods:
		return m.prepareContainerAction("logs", nil)
	}

	return m.openDetails()
}

// handleSubmit dispatches a completed input buffer.
func (m *Model) handleSubmit(act modes.Action) (tea.Model, tea.Cmd) {
	switch act.Mode {
	case modes.Filter:
		m.applyFilter(act.Buffer)
		return m, nil
	case modes.Command:
		return m.runCommandString(act.Buffer, false)
	case modes.Jump:
		return m.runCommandString(act.Buffer, true)
	}
	return m, nil
}

// runCommandString parses and executes a ':' or '>' buffer. On parse error
// the input mode is restored with the buffer preserved.
func (m *Model) runCommandString(input string, jump bool) (tea.Model, tea.Cmd) {
	var cmd command.Command
	var perr *command.Error
	if jump {
		cmd, perr = m.parser.ParseJump(input)
	} else {
		cmd, perr = m.parser.Parse(input)
	}
	if perr != nil {
		mode := modes.Command
		if jump {
			mode = modes.Jump
		}
		m.interp.KeepBuffer(mode)
		logging.Warn("command rejected", "input", input, "error", perr)
		return m, m.errorStatus("%s", perr.Error())
	}

	// Jump commands reset the drill stack to root before executing.
	if jump {
		for m.popFrame() {
		}
	}
	return m, m.execute(cmd)
}

var schemaZero = schema.GroupVersionResource{}

// execute performs one parsed command.
func (m *Model) execute(cmd command.Command) tea.Cmd {
	switch cmd.Op {
	case command.OpQuit:
		m.quitting = true
		return tea.Quit

	case command.OpRefresh:
		frame := m.slots.Active().Top()
		m.mux.Restart(frame.Kind, frame.Scope, frame.GVR)
		return m.infoStatus("refreshing %s", frame.Kind.Title())

	case command.OpReloadConfig:
		snap, err := config.Load(config.DiscoverPath())
		if err != nil {
			return m.errorStatus("config reload failed: %v", err)
		}
		m.applyConfig(snap)
		return m.successStatus("config reloaded")

	case command.OpSwitchTab:
		return m.switchTab(cmd)

	case command.OpSetNamespace:
		frame := *m.slots.Active().Top()
		frame.Scope = store.ScopeNamespace(cmd.Namespace)
		m.setTopFrame(frame)
		m.slots.SetDefaultScope(frame.Scope)
		return nil

	case command.OpAllNamespaces:
		frame := *m.slots.Active().Top()
		frame.Scope = store.ScopeAll
		m.setTopFrame(frame)
		m.slots.SetDefaultScope(store.ScopeAll)
		return nil

	case command.OpFilter:
		m.applyFilter(cmd.Filter)
		return nil
	case command.OpClearFilter:
		m.applyFilter("")
		return nil

	case command.OpLogs:
		return m.prepareContainerAction("logs", nil)
	case command.OpShell:
		return m.prepareContainerAction("shell", nil)
	case command.OpExec:
		return m.prepareContainerAction("exec", cmd.Args)
	case command.OpEdit:
		return m.startEdit()

	case command.OpDelete, command.OpRestart:
		return m.requestMutation(cmd.Op, 0)
	case command.OpScale:
		return m.requestScale(cmd.Replicas)

	case command.OpPortForward:
		return m.startPortForward(cmd.LocalPort, cmd.RemotePort)
	case command.OpClosePF:
		return m.closePortForward(cmd.PFID)

	case command.OpCRDCatalog:
		frame := *m.slots.Active().Top()
		frame.Kind = kinds.CRDs
		frame.Filter = ""
		frame.GVR = schemaZero
		frame.Title = ""
		m.setTopFrame(frame)
		return nil

	case command.OpCRDRefresh:
		frame := m.slots.Active().Top()
		if frame.Kind == kinds.CRDs {
			m.mux.Restart(frame.Kind, frame.Scope, frame.GVR)
		}
		return m.infoStatus("rediscovering CRDs")

	case command.OpHelp:
		m.openHelpOverlay()
		return nil

	case command.OpTabCycle:
		m.cycleTab(1)
		return nil

	case command.OpReadonly:
		m.guard.Set(cmd.ReadonlyMode)
		m.header.SetReadonly(m.guard.On())
		if m.guard.On() {
			return m.infoStatus("read-only mode on")
		}
		return m.infoStatus("read-only mode off")

	case command.OpConfigInfo:
		if m.cfg.Source == "" {
			return m.infoStatus("no config file loaded")
		}
		return m.infoStatus("config: %s (%d aliases, %d plugins, %d hotkeys)",
			m.cfg.Source, len(m.cfg.Aliases), len(m.cfg.Plugins), len(m.cfg.Hotkeys))

	case command.OpContexts:
		return m.openCatalog(slots.OverlayCatalogContexts)
	case command.OpClusters:
		return m.openCatalog(slots.OverlayCatalogClusters)
	case command.OpUsers:
		return m.openCatalog(slots.OverlayCatalogUsers)

	case command.OpAlerts:
		frame := *m.slots.Active().Top()
		frame.Kind = kinds.Events
		frame.Filter = "warning"
		frame.GVR = schemaZero
		frame.Title = ""
		m.setTopFrame(frame)
		m.applyFilter("warning")
		return nil

	case command.OpPulses, command.OpXray:
		m.openDashboardOverlay()
		return nil

	case command.OpDevOps:
		return m.startDevOpsTool(cmd.Tool, cmd.Args)

	case command.OpPlugin:
		return m.startPlugin(cmd.Tool, cmd.Args)

	case command.OpCopy:
		row, ok := m.activeTable().Selected()
		if !ok {
			return m.errorStatus("no selection")
		}
		if err := clipboard.WriteAll(row.Ref()); err != nil {
			return m.errorStatus("clipboard: %v", err)
		}
		return m.successStatus("copied %s", row.Ref())

	case command.OpNone:
		if cmd.FuzzyQuery != "" {
			return m.fuzzyJump(cmd.FuzzyQuery)
		}
	}
	return nil
}

// switchTab handles ':<resource> [filter | ns/name]'.
func (m *Model) switchTab(cmd command.Command) tea.Cmd {
	frame := *m.slots.Active().Top()
	frame.Kind = cmd.Kind
	frame.Filter = cmd.Filter
	frame.GVR = schemaZero
	frame.Title = ""
	m.setTopFrame(frame)

	t := m.activeTable()
	t.SetFilter(cmd.Filter)
	if cmd.Name != "" {
		if !t.SelectByRef(cmd.Namespace, cmd.Name) {
			return m.infoStatus("%s/%s not visible yet", cmd.Namespace, cmd.Name)
		}
		m.afterSelection(t)
	}
	return nil
}

// fuzzyJump selects the best fuzzy name match across the current scope.
func (m *Model) fuzzyJump(query string) tea.Cmd {
	t := m.activeTable()
	rows := t.Rows()
	haystack := make([]string, len(rows))
	for i, r := range rows {
		haystack[i] = r.Ref()
	}
	matches := fuzzy.Find(query, haystack)
	if len(matches) == 0 {
		return m.errorStatus("no match for %q", query)
	}
	t.SelectUID(rows[matches[0].Index].UID)
	m.afterSelection(t)
	return nil
}

// requireSelection fetches the selected row or classifies the failure.
func (m *Model) requireSelection() (store.Row, *command.Error) {
	row, ok := m.activeTable().Selected()
	if !ok {
		return store.Row{}, command.Errf(command.KindNoSelection, "no row selected")
	}
	return row, nil
}

func (m *Model) refForRow(row store.Row) k8s.Ref {
	frame := m.slots.Active().Top()
	return k8s.Ref{Kind: row.Kind, Namespace: row.Namespace, Name: row.Name, GVR: frame.GVR}
}

// requestMutation parks delete/restart at the confirmation gate.
func (m *Model) requestMutation(op command.Op, replicas int) tea.Cmd {
	if err := m.guard.Check(op); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	row, err := m.requireSelection()
	if err != nil {
		return m.errorStatus("%s", err.Error())
	}
	if op == command.OpRestart && !kinds.Caps(row.Kind).SupportsRestart {
		return m.errorStatus("%s does not support restart", row.Kind.Title())
	}
	m.gate.Request(op, m.refForRow(row), replicas)
	m.interp.EnterConfirm()
	return nil
}

// requestScale executes immediately unless confirm_scale is set.
func (m *Model) requestScale(replicas int) tea.Cmd {
	if err := m.guard.Check(command.OpScale); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	row, err := m.requireSelection()
	if err != nil {
		return m.errorStatus("%s", err.Error())
	}
	if !kinds.Caps(row.Kind).SupportsScale {
		return m.errorStatus("%s does not support scale", row.Kind.Title())
	}
	if m.confirmScale {
		m.gate.Request(command.OpScale, m.refForRow(row), replicas)
		m.interp.EnterConfirm()
		return nil
	}
	return m.performMutation(&actions.Pending{
		Op: command.OpScale, Ref: m.refForRow(row), Replicas: replicas,
	})
}

// confirmPending executes the gated action on y.
func (m *Model) confirmPending() tea.Cmd {
	pending := m.gate.Pending()
	if pending == nil {
		return nil
	}
	p := m.gate.Confirm(pending.ID)
	if p == nil {
		return nil
	}
	return m.performMutation(p)
}

// performMutation runs a confirmed (or exempt) mutation off the loop.
func (m *Model) performMutation(p *actions.Pending) tea.Cmd {
	client := m.client
	desc := ""
	switch p.Op {
	case command.OpDelete:
		desc = fmt.Sprintf("delete %s", p.Ref)
	case command.OpRestart:
		desc = fmt.Sprintf("restart %s", p.Ref)
	case command.OpScale:
		desc = fmt.Sprintf("scale %s to %d", p.Ref, p.Replicas)
	}
	logging.Info("mutation", "action", desc, "target", p.Ref.String())

	op, ref, replicas := p.Op, p.Ref, p.Replicas
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		var err error
		switch op {
		case command.OpDelete:
			err = client.Delete(ctx, ref)
		case command.OpRestart:
			err = client.RestartRollout(ctx, ref)
		case command.OpScale:
			err = client.Scale(ctx, ref, replicas)
		}
		return mutationDoneMsg{desc: desc, err: err}
	}
}

// prepareContainerAction resolves the container before logs/shell/exec:
// pods with several containers go through the picker overlay.
func (m *Model) prepareContainerAction(intent string, args []string) tea.Cmd {
	op := command.OpLogs
	switch intent {
	case "shell":
		op = command.OpShell
	case "exec":
		op = command.OpExec
	}
	if op != command.OpLogs {
		if err := m.guard.Check(op); err != nil {
			return m.errorStatus("%s", err.Error())
		}
	}
	row, err := m.requireSelection()
	if err != nil {
		return m.errorStatus("%s", err.Error())
	}
	if row.Kind != kinds.Pods {
		return m.errorStatus("%s works on pods only", intent)
	}

	ref := m.refForRow(row)
	slotID := m.slots.ActiveID()
	client := m.client
	return func() tea.Msg {
		names, cerr := client.PodContainers(context.Background(), ref.Namespace, ref.Name)
		return containersMsg{slotID: slotID, ref: ref, intent: intent, args: args, names: names, err: cerr}
	}
}

func (m *Model) handleContainers(msg containersMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, m.errorStatus("cannot list containers: %v", msg.err)
	}
	if len(msg.names) > 1 {
		m.pickers[msg.slotID] = &pickerState{
			ref: msg.ref, containers: msg.names, intent: msg.intent, execArgs: msg.args,
		}
		slot := m.slots.Active()
		slot.OpenOverlay(slots.Overlay{
			Kind:  slots.OverlayContainerPicker,
			Title: "container: " + msg.ref.String(),
		})
		m.interp.EnterOverlay()
		return m, nil
	}
	container := ""
	if len(msg.names) == 1 {
		container = msg.names[0]
	}
	return m, m.runContainerIntent(msg.ref, container, msg.intent, msg.args)
}

func (m *Model) runContainerIntent(ref k8s.Ref, container, intent string, args []string) tea.Cmd {
	switch intent {
	case "logs":
		return m.openLogs(ref, container)
	case "shell":
		argv := []string{"kubectl", "exec", "-it", "-n", ref.Namespace, ref.Name}
		if container != "" {
			argv = append(argv, "-c", container)
		}
		argv = append(argv, "--", "sh", "-c", "command -v bash >/dev/null && exec bash || exec sh")
		return m.startForeground(argv)
	case "exec":
		argv := []string{"kubectl", "exec", "-it", "-n", ref.Namespace, ref.Name}
		if container != "" {
			argv = append(argv, "-c", container)
		}
		argv = append(argv, "--")
		argv = append(argv, args...)
		return m.startForeground(argv)
	}
	return nil
}

// openLogs starts a follow tail into a slot-owned buffer overlay.
func (m *Model) openLogs(ref k8s.Ref, container string) tea.Cmd {
	taskID := m.sup.StartLogTail(ref.Namespace, ref.Name, k8s.LogOptions{
		Container: container,
		Follow:    true,
		TailLines: 200,
	})
	slot := m.slots.Active()
	bufferKey := fmt.Sprintf("logs-%d", taskID)
	slot.OpenOverlay(slots.Overlay{
		Kind:      slots.OverlayLogs,
		Title:     "logs " + ref.String(),
		BufferKey: bufferKey,
		TaskID:    taskID,
	})
	m.taskRoutes[taskID] = taskRoute{slotID: slot.ID, bufferKey: bufferKey}
	m.interp.EnterOverlay()
	m.resetOverlayViewport(slot)
	return nil
}

// startForeground hands the terminal to a child process. One at a time.
func (m *Model) startForeground(argv []string) tea.Cmd {
	if err := m.sup.AcquireForeground(); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	logging.Info("foreground action", "argv", strings.Join(argv, " "))
	c := exec.Command(argv[0], argv[1:]...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return fgDoneMsg{err: err}
	})
}

// startEdit fetches the document, hands it to $KUBE_EDITOR and applies the
// result.
func (m *Model) startEdit() tea.Cmd {
	if err := m.guard.Check(command.OpEdit); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	row, rerr := m.requireSelection()
	if rerr != nil {
		return m.errorStatus("%s", rerr.Error())
	}
	if err := m.sup.AcquireForeground(); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	ref := m.refForRow(row)
	client := m.client
	return func() tea.Msg {
		doc, err := client.Get(context.Background(), ref)
		if err != nil {
			return editorLaunchMsg{ref: ref, err: err}
		}
		tmp, err := os.CreateTemp("", "orca-edit-*.yaml")
		if err != nil {
			return editorLaunchMsg{ref: ref, err: err}
		}
		if _, err := tmp.Write(doc); err != nil {
			tmp.Close()
			return editorLaunchMsg{ref: ref, err: err}
		}
		tmp.Close()
		return editorLaunchMsg{ref: ref, path: tmp.Name()}
	}
}

func (m *Model) handleEditorLaunch(msg editorLaunchMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.sup.ReleaseForeground()
		return m, m.errorStatus("edit failed: %v", msg.err)
	}
	editor := os.Getenv("KUBE_EDITOR")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	parts = append(parts, msg.path)
	c := exec.Command(parts[0], parts[1:]...)
	ref, path := msg.ref, msg.path
	return m, tea.ExecProcess(c, func(err error) tea.Msg {
		return editorDoneMsg{ref: ref, path: path, err: err}
	})
}

func (m *Model) handleEditorDone(msg editorDoneMsg) (tea.Model, tea.Cmd) {
	m.sup.ReleaseForeground()
	defer os.Remove(msg.path)
	if msg.err != nil {
		return m, m.errorStatus("editor failed: %v", msg.err)
	}
	doc, err := os.ReadFile(msg.path)
	if err != nil {
		return m, m.errorStatus("cannot read edited file: %v", err)
	}
	ref := msg.ref
	client := m.client
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		return mutationDoneMsg{
			desc: fmt.Sprintf("edit %s", ref),
			err:  client.Apply(ctx, ref, doc),
		}
	}
}

// startPortForward registers the session and launches the forwarder.
func (m *Model) startPortForward(localPort, remotePort int) tea.Cmd {
	if err := m.guard.Check(command.OpPortForward); err != nil {
		return m.errorStatus("%s", err.Error())
	}
	row, err := m.requireSelection()
	if err != nil {
		return m.errorStatus("%s", err.Error())
	}
	if row.Kind != kinds.Pods && row.Kind != kinds.Services {
		return m.errorStatus("port-forward targets pods or services")
	}
	session := m.pf.Insert(row.Kind, row.Namespace, row.Name, localPort, remotePort)
	m.sup.StartPortForward(session)
	m.pfDirty = true
	return m.infoStatus("port-forward %s %d→%d starting", session.Target(), localPort, remotePort)
}

func (m *Model) closePortForward(id int) tea.Cmd {
	if id < 0 {
		row, err := m.requireSelection()
		if err != nil {
			return m.errorStatus("%s", err.Error())
		}
		s, ok := m.pf.LookupTarget(row.Kind, row.Namespace, row.Name)
		if !ok {
			return m.errorStatus("no port-forward for %s", row.Ref())
		}
		id = s.ID
	}
	if !m.pf.Close(id) {
		return m.errorStatus("no such port-forward: %d", id)
	}
	m.pfDirty = true
	return m.infoStatus("port-forward %d closed", id)
}

// devops tools and plugins render into a DevOpsTool overlay buffer.

func (m *Model) startDevOpsTool(tool string, args []string) tea.Cmd {
	taskID := m.sup.StartDevOpsTool(tool, args)
	m.openTaskOverlay(slots.OverlayDevOpsTool, tool, taskID)
	return nil
}

func (m *Model) startPlugin(name string, args []string) tea.Cmd {
	def, ok := m.cfg.PluginByName(name)
	if !ok {
		return m.errorStatus("unknown plugin: %s", name)
	}
	if err := m.guard.CheckPlugin(def.Mutating); err != nil {
		return m.errorStatus("%s", err.Error())
	}

	ctx := config.PlaceholderContext{
		Context: m.client.CurrentContext(),
		Scope:   m.slots.Active().Top().Scope.Label(),
		Args:    args,
	}
	frame := m.slots.Active().Top()
	ctx.AllNamespaces = frame.Scope.AllNamespaces
	ctx.Resource = string(frame.Kind)
	if row, ok := m.activeTable().Selected(); ok {
		ctx.Name = row.Name
		ctx.Namespace = row.Namespace
	}
	for _, entry := range m.contexts {
		if entry.Current {
			ctx.Cluster = entry.Cluster
			ctx.User = entry.User
		}
	}

	argv := append([]string{def.Command}, def.Args...)
	expanded, perr := config.ExpandPlaceholders(argv, ctx)
	if perr != nil {
		return m.errorStatus("%s", perr.Error())
	}
	expanded = append(expanded, args...)

	taskID := m.sup.StartPlugin(def.Name, expanded,
		time.Duration(def.TimeoutSecs)*time.Second, def.Retries)
	m.openTaskOverlay(slots.OverlayDevOpsTool, def.Name, taskID)
	return nil
}

func (m *Model) openTaskOverlay(kind slots.OverlayKind, title string, taskID int) {
	slot := m.slots.Active()
	bufferKey := fmt.Sprintf("task-%d", taskID)
	slot.OpenOverlay(slots.Overlay{
		Kind:      kind,
		Title:     title,
		BufferKey: bufferKey,
		TaskID:    taskID,
	})
	m.taskRoutes[taskID] = taskRoute{slotID: slot.ID, bufferKey: bufferKey}
	m.interp.EnterOverlay()
	m.resetOverlayViewport(slot)
}

// openDetails fetches the document and shows it as YAML.
func (m *Model) openDetails() tea.Cmd {
	row, err := m.requireSelection()
	if err != nil {
		return m.errorStatus("%s", err.Error())
	}
	ref := m.refForRow(row)
	slotID := m.slots.ActiveID()
	client := m.client
	return func() tea.Msg {
		doc, gerr := client.Get(context.Background(), ref)
		return detailsMsg{slotID: slotID, title: ref.String(), content: string(doc), err: gerr}
	}
}

func (m *Model) handleDetails(msg detailsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, m.errorStatus("details failed: %v", msg.err)
	}
	slot, ok := m.slots.Get(msg.slotID)
	if !ok {
		return m, nil
	}
	buf := slot.OpenOverlay(slots.Overlay{
		Kind:      slots.OverlayDetails,
		Title:     msg.title,
		BufferKey: "details",
	})
	buf.Append(strings.Split(msg.content, "\n")...)
	if msg.slotID == m.slots.ActiveID() {
		m.interp.EnterOverlay()
		m.resetOverlayViewport(slot)
	}
	return m, nil
}

// openCatalog loads contexts/clusters/users into a catalog overlay.
func (m *Model) openCatalog(kind slots.OverlayKind) tea.Cmd {
	slotID := m.slots.ActiveID()
	client := m.client
	return func() tea.Msg {
		entries, err := client.Contexts()
		return catalogMsg{slotID: slotID, overlay: kind, entries: entries, err: err}
	}
}

func (m *Model) handleCatalog(msg catalogMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, m.errorStatus("catalog failed: %v", msg.err)
	}
	m.contexts = msg.entries

	title := "contexts"
	lines := []string{}
	switch msg.overlay {
	case slots.OverlayCatalogContexts:
		for _, e := range msg.entries {
			marker := "  "
			if e.Current {
				marker = "* "
			}
			lines = append(lines, fmt.Sprintf("%s%s  (cluster: %s, user: %s)", marker, e.Name, e.Cluster, e.User))
		}
	case slots.OverlayCatalogClusters:
		title = "clusters"
		seen := map[string]bool{}
		for _, e := range msg.entries {
			if !seen[e.Cluster] {
				seen[e.Cluster] = true
				lines = append(lines, e.Cluster)
			}
		}
	case slots.OverlayCatalogUsers:
		title = "users"
		seen := map[string]bool{}
		for _, e := range msg.entries {
			if !seen[e.User] {
				seen[e.User] = true
				lines = append(lines, e.User)
			}
		}
	}

	slot, ok := m.slots.Get(msg.slotID)
	if !ok {
		return m, nil
	}
	buf := slot.OpenOverlay(slots.Overlay{
		Kind:      msg.overlay,
		Title:     title,
		BufferKey: "catalog",
	})
	buf.Append(lines...)
	if msg.slotID == m.slots.ActiveID() {
		m.interp.EnterOverlay()
		m.resetOverlayViewport(slot)
	}
	return m, nil
}

func (m *Model) openHelpOverlay() {
	slot := m.slots.Active()
	buf := slot.OpenOverlay(slots.Overlay{
		Kind:      slots.OverlayHelp,
		Title:     "help",
		BufferKey: "help",
	})
	buf.Append(ui.HelpLines()...)
	m.interp.EnterOverlay()
	m.resetOverlayViewport(slot)
}

func (m *Model) openDashboardOverlay() {
	slot := m.slots.Active()
	buf := slot.OpenOverlay(slots.Overlay{
		Kind:      slots.OverlayDashboard,
		Title:     "dashboard",
		BufferKey: "dashboard",
	})

	lines := []string{"Resources"}
	counts := m.store.Counts()
	for _, k := range kinds.All {
		if n, ok := counts[k]; ok && n > 0 {
			lines = append(lines, fmt.Sprintf("  %-28s %d", k.Title(), n))
		}
	}
	lines = append(lines, "", fmt.Sprintf("Watch sessions: %d", m.mux.SessionCount()), "", "Port-forwards")
	forwards := m.pf.List()
	if len(forwards) == 0 {
		lines = append(lines, "  none")
	}
	for _, s := range forwards {
		lines = append(lines, fmt.Sprintf("  [%d] %s %s  %s %s", s.ID, s.Target(), s.Label(), s.State, s.Reason))
	}
	buf.Append(lines...)
	m.interp.EnterOverlay()
	m.resetOverlayViewport(slot)
}

// closeActiveOverlay cancels the owning task and frees the buffer.
func (m *Model) closeActiveOverlay() {
	slot := m.slots.Active()
	if taskID := slot.CloseOverlay(); taskID != 0 {
		m.sup.Cancel(taskID)
		delete(m.taskRoutes, taskID)
	}
	delete(m.pickers, slot.ID)
	m.interp.Reset()
	m.invalidate()
}

// handleOverlayKey drives the overlay: viewport scroll, picker navigation.
func (m *Model) handleOverlayKey(key tea.KeyMsg) tea.Cmd {
	slot := m.slots.Active()
	overlay := slot.Overlay()
	if overlay == nil {
		m.interp.Reset()
		return nil
	}

	if overlay.Kind == slots.OverlayContainerPicker {
		return m.handlePickerKey(key, slot, overlay)
	}

	switch key.String() {
	case "esc", "q":
		m.closeActiveOverlay()
	case "j", "down":
		m.overlayVP.ScrollDown(1)
	case "k", "up":
		m.overlayVP.ScrollUp(1)
	case "g":
		m.overlayVP.GotoTop()
	case "G":
		m.overlayVP.GotoBottom()
	case "ctrl+d", "pgdown":
		m.overlayVP.HalfPageDown()
	case "ctrl+u", "pgup":
		m.overlayVP.HalfPageUp()
	}
	overlay.Scroll = m.overlayVP.YOffset
	return nil
}

func (m *Model) handlePickerKey(key tea.KeyMsg, slot *slots.Slot, overlay *slots.Overlay) tea.Cmd {
	picker := m.pickers[slot.ID]
	if picker == nil {
		m.closeActiveOverlay()
		return nil
	}
	switch key.String() {
	case "esc", "q":
		m.closeActiveOverlay()
	case "j", "down":
		if overlay.PickIndex < len(picker.containers)-1 {
			overlay.PickIndex++
		}
	case "k", "up":
		if overlay.PickIndex > 0 {
			overlay.PickIndex--
		}
	case "enter":
		container := picker.containers[overlay.PickIndex]
		intent, args, ref := picker.intent, picker.execArgs, picker.ref
		m.closeActiveOverlay()
		return m.runContainerIntent(ref, container, intent, args)
	}
	return nil
}
