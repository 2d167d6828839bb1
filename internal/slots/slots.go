// Package slots manages the independent view slots (1..9). Each slot keeps
// its own drill stack, overlay and buffers; slots hold table references by
// key plus a selection uid, never row data.
package slots

import (
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// MaxSlots is the highest slot id.
const MaxSlots = 9

// DefaultBufferCap caps overlay buffers (log tails, shell scrollback) in
// lines; the oldest lines are evicted first.
const DefaultBufferCap = 10000

// OverlayKind discriminates the per-slot overlay.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayDashboard
	OverlayDetails
	OverlayLogs
	OverlayShell
	OverlayContainerPicker
	OverlayCatalogContexts
	OverlayCatalogClusters
	OverlayCatalogUsers
	OverlayCatalogCRDs
	OverlayConfirm
	OverlayDevOpsTool
	OverlayHelp
)

// Frame is one drill-down level: a (kind, scope, filter) view plus the last
// selection in it.
type Frame struct {
	Kind         kinds.Kind
	Scope        store.Scope
	Filter       string
	SelectionUID string
	// CRDInstance frames carry the instance resource of the owning CRD.
	GVR schema.GroupVersionResource
	// Title overrides the kind title, e.g. the CRD name.
	Title string
}

// Key is the store/multiplexer key for the frame's table.
func (f Frame) Key() string {
	key := f.Scope.Key(f.Kind)
	if f.GVR.Resource != "" {
		key += "#" + f.GVR.String()
	}
	return key
}

// Overlay is the active overlay with its buffer key and scroll offset.
type Overlay struct {
	Kind      OverlayKind
	Title     string
	BufferKey string
	Scroll    int
	TaskID    int // background task feeding the buffer, 0 when none
	PickIndex int // container picker cursor
}

// Buffer is a capped line buffer held in the slot's arena. Overlays refer to
// buffers by key only; destruction drops the key and frees the arena entry.
type Buffer struct {
	lines []string
	cap   int
}

// Append adds lines, evicting the oldest beyond the cap.
func (b *Buffer) Append(lines ...string) {
	b.lines = append(b.lines, lines...)
	if over := len(b.lines) - b.cap; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

// Lines returns the buffered lines.
func (b *Buffer) Lines() []string { return b.lines }

// Len returns the buffered line count.
func (b *Buffer) Len() int { return len(b.lines) }

// Slot is one independent view state.
type Slot struct {
	ID      int
	stack   []Frame
	overlay *Overlay
	arena   map[string]*Buffer
	bufCap  int
}

// NewSlot creates a slot rooted at (kind, scope).
func NewSlot(id int, kind kinds.Kind, scope store.Scope) *Slot {
	return &Slot{
		ID:     id,
		stack:  []Frame{{Kind: kind, Scope: scope}},
		arena:  map[string]*Buffer{},
		bufCap: DefaultBufferCap,
	}
}

// Top returns the active drill frame. The root frame always exists.
func (s *Slot) Top() *Frame {
	return &s.stack[len(s.stack)-1]
}

// Depth returns the drill stack depth.
func (s *Slot) Depth() int { return len(s.stack) }

// Push enters a new drill frame.
func (s *Slot) Push(f Frame) {
	s.stack = append(s.stack, f)
}

// Pop leaves the current frame. The root frame is never popped; Pop reports
// whether a frame was removed.
func (s *Slot) Pop() bool {
	if len(s.stack) <= 1 {
		return false
	}
	s.stack = s.stack[:len(s.stack)-1]
	return true
}

// ResetToRoot drops every frame above the root, used before a jump.
func (s *Slot) ResetToRoot() {
	s.stack = s.stack[:1]
}

// Overlay returns the active overlay, or nil.
func (s *Slot) Overlay() *Overlay { return s.overlay }

// OpenOverlay activates an overlay, allocating its buffer in the arena.
// At most one overlay is active per slot; any previous one closes first.
func (s *Slot) OpenOverlay(o Overlay) *Buffer {
	s.CloseOverlay()
	s.overlay = &o
	if o.BufferKey == "" {
		return nil
	}
	buf := &Buffer{cap: s.bufCap}
	s.arena[o.BufferKey] = buf
	return buf
}

// CloseOverlay deactivates the overlay and frees its buffer. It returns the
// task id that was feeding the buffer so the caller can cancel it.
func (s *Slot) CloseOverlay() int {
	if s.overlay == nil {
		return 0
	}
	taskID := s.overlay.TaskID
	if s.overlay.BufferKey != "" {
		delete(s.arena, s.overlay.BufferKey)
	}
	s.overlay = nil
	return taskID
}

// BufferFor returns the arena buffer for a key.
func (s *Slot) BufferFor(key string) (*Buffer, bool) {
	b, ok := s.arena[key]
	return b, ok
}

// Manager owns the slots and the active slot id.
type Manager struct {
	slots    map[int]*Slot
	activeID int

	defaultKind  kinds.Kind
	defaultScope store.Scope
}

// NewManager creates the manager with slot 1 active.
func NewManager(kind kinds.Kind, scope store.Scope) *Manager {
	m := &Manager{
		slots:        map[int]*Slot{},
		activeID:     1,
		defaultKind:  kind,
		defaultScope: scope,
	}
	m.slots[1] = NewSlot(1, kind, scope)
	return m
}

// Active returns the active slot.
func (m *Manager) Active() *Slot {
	return m.slots[m.activeID]
}

// ActiveID returns the active slot id.
func (m *Manager) ActiveID() int { return m.activeID }

// Get returns slot id without creating or activating it.
func (m *Manager) Get(id int) (*Slot, bool) {
	s, ok := m.slots[id]
	return s, ok
}

// IDs returns the existing slot ids in ascending order.
func (m *Manager) IDs() []int {
	out := []int{}
	for id := 1; id <= MaxSlots; id++ {
		if _, ok := m.slots[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Switch activates slot id, creating it pre-initialized to the default
// top-level view when missing. Switching is O(1) and preserves all state of
// the slot being left.
func (m *Manager) Switch(id int) *Slot {
	if id < 1 || id > MaxSlots {
		return m.Active()
	}
	if _, ok := m.slots[id]; !ok {
		m.slots[id] = NewSlot(id, m.defaultKind, m.defaultScope)
	}
	m.activeID = id
	return m.slots[id]
}

// Delete removes slot id. The last remaining slot cannot be deleted; when
// the active slot is deleted the lowest surviving id becomes active.
// Returns the deleted slot (for task cancellation) or nil.
func (m *Manager) Delete(id int) *Slot {
	victim, ok := m.slots[id]
	if !ok || len(m.slots) <= 1 {
		return nil
	}
	delete(m.slots, id)
	if m.activeID == id {
		m.activeID = m.IDs()[0]
	}
	return victim
}

// SetDefaultScope updates the scope used to seed newly created slots.
func (m *Manager) SetDefaultScope(scope store.Scope) {
	m.defaultScope = scope
}
