// Package app wires the runtime loop: one Bubble Tea model that drains the
// event bus, routes keys through the mode interpreter, dispatches commands
// and actions, and renders the active view slot.
package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ASoldo/orca/internal/actions"
	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/command"
	"github.com/ASoldo/orca/internal/config"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/logging"
	"github.com/ASoldo/orca/internal/modes"
	"github.com/ASoldo/orca/internal/slots"
	"github.com/ASoldo/orca/internal/store"
	"github.com/ASoldo/orca/internal/ui"
	"github.com/ASoldo/orca/internal/watch"
)

const (
	// activeTick is the cadence while events or input are pending.
	activeTick = 33 * time.Millisecond
	// maxEventsPerTick bounds the bus batch so a hot watch cannot starve
	// input handling.
	maxEventsPerTick = 256
	// statusDisplay is how long a status message stays up.
	statusDisplay = 5 * time.Second
	// configPollEvery is the config watcher cadence.
	configPollEvery = 2 * time.Second
)

// Options configures the app model at startup.
type Options struct {
	Client        k8s.Client
	Theme         *ui.Theme
	RefreshMs     int
	Namespace     string
	AllNamespaces bool
	ReadOnly      bool
	ConfigPath    string
}

// taskRoute maps a background task to the slot buffer consuming its output.
type taskRoute struct {
	slotID    int
	bufferKey string
}

// pickerState is a pending container choice before logs/shell/exec.
type pickerState struct {
	ref        k8s.Ref
	containers []string
	intent     string // logs | shell | exec
	execArgs   []string
}

// Model is the root Bubble Tea model.
type Model struct {
	theme  *ui.Theme
	client k8s.Client

	store  *store.Store
	bus    *bus.Bus
	mux    *watch.Multiplexer
	sup    *actions.Supervisor
	pf     *actions.PFRegistry
	guard  *actions.Guard
	gate   *actions.Gate
	interp *modes.Interpreter
	parser *command.Parser
	slots  *slots.Manager

	cfg      *config.Snapshot
	cfgWatch *config.Watcher
	lastPoll time.Time

	header    *ui.Header
	statusBar *ui.StatusBar
	grid      table.Model
	overlayVP viewport.Model

	width  int
	height int

	refreshMs    int
	confirmScale bool
	quitting     bool

	// render cache invalidation
	renderedKey string
	renderedRev uint64
	pfDirty     bool
	sizeDirty   bool

	statusSeq  int
	taskRoutes map[int]taskRoute
	pickers    map[int]*pickerState

	contexts []k8s.ContextEntry
}

// internal messages

type tickMsg time.Time

type statusClearMsg struct{ seq int }

type detailsMsg struct {
	slotID  int
	title   string
	content string
	err     error
}

type containersMsg struct {
	slotID int
	ref    k8s.Ref
	intent string
	args   []string
	names  []string
	err    error
}

type editorLaunchMsg struct {
	ref  k8s.Ref
	path string
	err  error
}

type editorDoneMsg struct {
	ref  k8s.Ref
	path string
	err  error
}

type fgDoneMsg struct{ err error }

type mutationDoneMsg struct {
	desc string
	err  error
}

type catalogMsg struct {
	slotID  int
	overlay slots.OverlayKind
	entries []k8s.ContextEntry
	err     error
}

// NewModel builds the app from its collaborators.
func NewModel(opts Options) *Model {
	scope := store.ScopeAll
	if !opts.AllNamespaces && opts.Namespace != "" {
		scope = store.ScopeNamespace(opts.Namespace)
	}

	b := bus.New(bus.DefaultCapacity)
	m := &Model{
		theme:      opts.Theme,
		client:     opts.Client,
		store:      store.New(),
		bus:        b,
		mux:        watch.New(opts.Client, b, opts.RefreshMs),
		sup:        actions.NewSupervisor(opts.Client, b),
		pf:         actions.NewPFRegistry(),
		guard:      actions.NewGuard(opts.ReadOnly),
		gate:       actions.NewGate(),
		interp:     modes.New(),
		parser:     command.NewParser(),
		slots:      slots.NewManager(kinds.Pods, scope),
		header:     ui.NewHeader(opts.Theme, "orca"),
		statusBar:  ui.NewStatusBar(opts.Theme),
		refreshMs:  opts.RefreshMs,
		taskRoutes: map[int]taskRoute{},
		pickers:    map[int]*pickerState{},
		width:      80,
		height:     24,
	}

	m.grid = table.New(table.WithHeight(10))
	m.grid.SetStyles(opts.Theme.ToTableStyles())
	m.overlayVP = viewport.New(80, 20)

	m.cfgWatch = config.NewWatcher(opts.ConfigPath)
	if snap, err := config.Load(opts.ConfigPath); err != nil {
		logging.Warn("config load failed", "error", err)
		m.cfg = &config.Snapshot{Aliases: map[string]string{}}
	} else {
		m.cfg = snap
	}
	m.applyConfig(m.cfg)

	m.header.SetContext(opts.Client.CurrentContext())
	m.header.SetReadonly(opts.ReadOnly)

	return m
}

// applyConfig installs a snapshot into the parser and interpreter.
func (m *Model) applyConfig(snap *config.Snapshot) {
	m.cfg = snap
	m.parser.SetAliases(snap.Aliases)
	m.parser.SetPlugins(snap.PluginNames())
	m.confirmScale = snap.ConfirmScale

	bindings := make([]modes.HotkeyBinding, 0, len(snap.Hotkeys))
	for _, hk := range snap.Hotkeys {
		bindings = append(bindings, modes.HotkeyBinding{
			Key: hk.Key, Command: hk.Command, Jump: hk.Jump,
		})
	}
	m.interp.SetHotkeys(bindings)
}

// Init starts the first watch session and the tick cycle.
func (m *Model) Init() tea.Cmd {
	frame := m.slots.Active().Top()
	m.mux.Acquire(frame.Kind, frame.Scope, frame.GVR)
	return m.scheduleTick(activeTick)
}

func (m *Model) scheduleTick(after time.Duration) tea.Cmd {
	return tea.Tick(after, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update is the runtime loop body.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.header.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.overlayVP.Width = msg.Width - 4
		m.overlayVP.Height = m.bodyHeight() - 2
		m.sizeDirty = true
		return m, nil

	case tickMsg:
		return m.handleTick()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.statusBar.ClearMessage()
		}
		return m, nil

	case detailsMsg:
		return m.handleDetails(msg)
	case containersMsg:
		return m.handleContainers(msg)
	case editorLaunchMsg:
		return m.handleEditorLaunch(msg)
	case editorDoneMsg:
		return m.handleEditorDone(msg)
	case fgDoneMsg:
		m.sup.ReleaseForeground()
		if msg.err != nil {
			return m, m.errorStatus("command failed: %v", msg.err)
		}
		return m, nil
	case mutationDoneMsg:
		if msg.err != nil {
			logging.Error("action failed", "action", msg.desc, "error", msg.err)
			return m, m.errorStatus("%s failed: %v", msg.desc, command.KindOf(msg.err))
		}
		return m, m.successStatus("%s done", msg.desc)
	case catalogMsg:
		return m.handleCatalog(msg)
	}
	return m, nil
}

// handleTick drains the bus with a bounded batch, polls the config watcher,
// sweeps idle watch sessions and refreshes the render model.
func (m *Model) handleTick() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}

	events := m.bus.Drain(maxEventsPerTick)
	for _, ev := range events {
		m.integrate(ev)
	}

	if time.Since(m.lastPoll) > configPollEvery {
		m.lastPoll = time.Now()
		m.mux.Sweep()
		if snap, err := m.cfgWatch.Poll(); err != nil {
			logging.Warn("config reload failed", "error", err)
		} else if snap != nil {
			// Route through the bus like every other background result; off
			// the loop so a full queue can never stall the tick.
			go m.bus.Publish(bus.ConfigReloaded{Snapshot: snap})
		}
	}

	m.syncRenderModel()

	// Idle up to the refresh interval when nothing is pending.
	next := activeTick
	if len(events) == 0 && m.bus.Pending() == 0 {
		next = time.Duration(m.refreshMs) * time.Millisecond
	}
	return m, m.scheduleTick(next)
}

// integrate applies one bus event to the store, registries and buffers.
// Store updates apply in arrival order per key.
func (m *Model) integrate(ev bus.Event) {
	switch ev := ev.(type) {
	case bus.Resync:
		t := m.store.TableKeyed(ev.ScopeKey, ev.Kind, ev.Scope)
		t.Resync(ev.Rows)
	case bus.WatchDelta:
		if t, ok := m.store.Lookup(ev.ScopeKey); ok {
			t.Apply(ev.Type, ev.Row)
		}
	case bus.WatchError:
		m.setStatus("watch for "+ev.Kind.Title()+" keeps failing: "+ev.Err.Error(), ui.MessageError)
	case bus.PFTransition:
		m.pf.Apply(ev.ID, pfStateFromString(ev.State), ev.Reason)
		m.pfDirty = true
		if ev.State == actions.PFFailed.String() {
			m.setStatus("port-forward failed: "+ev.Reason, ui.MessageError)
		}
	case bus.TaskOutput:
		if route, ok := m.taskRoutes[ev.TaskID]; ok {
			m.appendToSlotBuffer(route, ev.Lines)
		}
	case bus.TaskExit:
		if route, ok := m.taskRoutes[ev.TaskID]; ok {
			if ev.Err != nil {
				m.appendToSlotBuffer(route, []string{"", "✗ " + ev.Err.Error()})
			}
			delete(m.taskRoutes, ev.TaskID)
		}
	case bus.ConfigReloaded:
		if snap, ok := ev.Snapshot.(*config.Snapshot); ok {
			m.applyConfig(snap)
			m.setStatus("config reloaded", ui.MessageInfo)
		}
	}
}

func pfStateFromString(s string) actions.PFState {
	switch s {
	case actions.PFLive.String():
		return actions.PFLive
	case actions.PFFailed.String():
		return actions.PFFailed
	case actions.PFClosed.String():
		return actions.PFClosed
	}
	return actions.PFStarting
}

// appendToSlotBuffer feeds task output into the owning slot's arena buffer,
// wherever that slot is; only the active slot refreshes its viewport.
func (m *Model) appendToSlotBuffer(route taskRoute, lines []string) {
	slot, ok := m.slots.Get(route.slotID)
	if !ok {
		return
	}
	buf, ok := slot.BufferFor(route.bufferKey)
	if !ok {
		return
	}
	buf.Append(lines...)
	if route.slotID == m.slots.ActiveID() {
		m.refreshOverlayViewport(slot)
	}
}

// activeTable returns the table backing the active slot's top frame.
func (m *Model) activeTable() *store.Table {
	frame := m.slots.Active().Top()
	return m.store.TableKeyed(frame.Key(), frame.Kind, frame.Scope)
}

// syncRenderModel rebuilds the grid when the active table changed.
func (m *Model) syncRenderModel() {
	frame := m.slots.Active().Top()
	t := m.activeTable()

	key := frame.Key()
	if key == m.renderedKey && t.Revision() == m.renderedRev && !m.pfDirty && !m.sizeDirty {
		return
	}
	m.renderedKey = key
	m.renderedRev = t.Revision()
	m.pfDirty = false
	m.sizeDirty = false

	cols := ui.TableColumns(frame.Kind, frame.Scope, m.width)
	rows := ui.TableRows(frame.Kind, frame.Scope, t.Rows(), cols, m.pfLabelFor)
	m.grid.SetColumns(cols)
	m.grid.SetRows(rows)
	m.grid.SetWidth(m.width)
	m.grid.SetHeight(m.bodyHeight())
	if idx := t.SelectionIndex(); idx >= 0 {
		m.grid.SetCursor(idx)
	}

	title := frame.Kind.Title()
	if frame.Title != "" {
		title = frame.Title
	}
	m.header.SetTab(title)
	m.header.SetScope(frame.Scope.Label())
	m.header.SetItemCount(t.Len(), t.TotalLen())
	m.header.SetSlots(m.slots.IDs(), m.slots.ActiveID())
	m.header.SetReadonly(m.guard.On())
}

func (m *Model) pfLabelFor(r store.Row) string {
	if s, ok := m.pf.LookupTarget(r.Kind, r.Namespace, r.Name); ok {
		if s.State == actions.PFStarting {
			return "…" + s.Label()
		}
		return s.Label()
	}
	return ""
}

func (m *Model) bodyHeight() int {
	// header + status bar + input line
	h := m.height - 3
	if h < 3 {
		h = 3
	}
	return h
}

// status helpers

func (m *Model) setStatus(text string, level ui.MessageType) {
	m.statusBar.SetMessage(text, level)
	m.statusSeq++
}

func (m *Model) statusCmd() tea.Cmd {
	seq := m.statusSeq
	return tea.Tick(statusDisplay, func(time.Time) tea.Msg { return statusClearMsg{seq: seq} })
}

func (m *Model) errorStatus(format string, args ...any) tea.Cmd {
	m.setStatus(fmt.Sprintf(format, args...), ui.MessageError)
	return m.statusCmd()
}

func (m *Model) successStatus(format string, args ...any) tea.Cmd {
	m.setStatus(fmt.Sprintf(format, args...), ui.MessageSuccess)
	return m.statusCmd()
}

func (m *Model) infoStatus(format string, args ...any) tea.Cmd {
	m.setStatus(fmt.Sprintf(format, args...), ui.MessageInfo)
	return m.statusCmd()
}

// Teardown cancels background work and stops the forwarders. main calls it
// after the program exits, once the terminal is restored.
func (m *Model) Teardown() {
	m.pf.CloseAll()
	m.mux.Shutdown()
	m.sup.Shutdown()
	m.bus.Close()
}
