// Package store owns the in-memory resource tables. Tables are keyed by
// (kind, scope) and are only mutated from the runtime loop; watch tasks hand
// their deltas over through the event bus.
package store

import (
	"sort"
	"strings"
	"time"

	"github.com/ASoldo/orca/internal/kinds"
)

// Scope is the namespace filter applied to a resource listing.
type Scope struct {
	AllNamespaces bool
	Namespace     string
}

// ScopeAll covers every namespace.
var ScopeAll = Scope{AllNamespaces: true}

// ScopeNamespace restricts the listing to a single namespace.
func ScopeNamespace(name string) Scope {
	return Scope{Namespace: name}
}

// Key returns the scope's cache key fragment. Cluster-scoped kinds collapse
// to a single key regardless of namespace selection.
func (s Scope) Key(kind kinds.Kind) string {
	if !kind.Namespaced() || s.AllNamespaces {
		return string(kind)
	}
	return string(kind) + "@" + s.Namespace
}

// Label renders the scope for the header line.
func (s Scope) Label() string {
	if s.AllNamespaces {
		return "all"
	}
	return s.Namespace
}

// Row is one displayable resource. Rows are keyed by (kind, uid).
type Row struct {
	UID        string
	Kind       kinds.Kind
	Namespace  string
	Name       string
	Columns    []string
	Age        time.Duration
	StatusHint string
	Extra      map[string]string
}

// Ref returns the namespace/name reference for the row.
func (r Row) Ref() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// matches reports whether the row survives a case-insensitive substring
// filter over name, namespace and displayable columns.
func (r Row) matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.Name), query) {
		return true
	}
	if strings.Contains(strings.ToLower(r.Namespace), query) {
		return true
	}
	for _, c := range r.Columns {
		if strings.Contains(strings.ToLower(c), query) {
			return true
		}
	}
	return false
}

// DeltaType classifies a watch delta.
type DeltaType int

const (
	Added DeltaType = iota
	Modified
	Deleted
)

// Table holds the rows for one (kind, scope) pair plus the filter index and
// selection state layered on top.
type Table struct {
	Kind  kinds.Kind
	Scope Scope

	rows          []Row // ordered by (namespace, name)
	byUID         map[string]int
	filterQuery   string
	filteredIndex []int // indices into rows
	selectionUID  string
	revision      uint64
}

// NewTable creates an empty table for a (kind, scope) pair.
func NewTable(kind kinds.Kind, scope Scope) *Table {
	return &Table{
		Kind:  kind,
		Scope: scope,
		byUID: map[string]int{},
	}
}

// Revision increments on every row or filter change; readers use it to detect
// staleness of derived render state.
func (t *Table) Revision() uint64 { return t.revision }

// Len returns the number of rows after filtering.
func (t *Table) Len() int { return len(t.filteredIndex) }

// TotalLen returns the number of rows before filtering.
func (t *Table) TotalLen() int { return len(t.rows) }

// FilterQuery returns the active filter.
func (t *Table) FilterQuery() string { return t.filterQuery }

// RowAt returns the filtered row at position i.
func (t *Table) RowAt(i int) (Row, bool) {
	if i < 0 || i >= len(t.filteredIndex) {
		return Row{}, false
	}
	return t.rows[t.filteredIndex[i]], true
}

// Rows returns the filtered rows in display order.
func (t *Table) Rows() []Row {
	out := make([]Row, 0, len(t.filteredIndex))
	for _, idx := range t.filteredIndex {
		out = append(out, t.rows[idx])
	}
	return out
}

// Apply integrates one watch delta. Ordering per (kind, scope) is preserved
// by the caller; duplicate UIDs collapse into updates.
func (t *Table) Apply(typ DeltaType, row Row) {
	priorPos := t.SelectionIndex()
	switch typ {
	case Deleted:
		idx, ok := t.byUID[row.UID]
		if !ok {
			return
		}
		t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
		t.reindex()
	default:
		if idx, ok := t.byUID[row.UID]; ok {
			t.rows[idx] = row
			t.resort()
		} else {
			t.rows = append(t.rows, row)
			t.resort()
		}
	}
	t.refilter()
	t.snapSelection(priorPos)
	t.revision++
}

// Resync replaces the entire row set, e.g. after a version-too-old relist.
// Selection is preserved when the uid survives, otherwise snapped to the
// nearest row by the prior filtered position.
func (t *Table) Resync(rows []Row) {
	priorPos := t.SelectionIndex()
	t.rows = append([]Row(nil), rows...)
	t.resort()
	t.refilter()
	if _, ok := t.byUID[t.selectionUID]; !ok || !t.selectionVisible() {
		t.snapToNearest(priorPos)
	}
	t.revision++
}

// SetFilter replaces the filter query and fully recomputes the index.
func (t *Table) SetFilter(query string) {
	priorPos := t.SelectionIndex()
	t.filterQuery = query
	t.refilter()
	t.snapSelection(priorPos)
	t.revision++
}

// SelectionUID returns the selected row's uid, or "".
func (t *Table) SelectionUID() string { return t.selectionUID }

// SelectionIndex returns the selected row's position in the filtered index,
// or -1 when nothing is selected.
func (t *Table) SelectionIndex() int {
	if t.selectionUID == "" {
		return -1
	}
	for pos, idx := range t.filteredIndex {
		if t.rows[idx].UID == t.selectionUID {
			return pos
		}
	}
	return -1
}

// Selected returns the selected row.
func (t *Table) Selected() (Row, bool) {
	pos := t.SelectionIndex()
	if pos < 0 {
		return Row{}, false
	}
	return t.rows[t.filteredIndex[pos]], true
}

// Select sets the selection to the filtered position i, clamped to range.
func (t *Table) Select(i int) {
	if len(t.filteredIndex) == 0 {
		t.selectionUID = ""
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(t.filteredIndex) {
		i = len(t.filteredIndex) - 1
	}
	t.selectionUID = t.rows[t.filteredIndex[i]].UID
}

// SelectUID selects the row with the given uid if it is visible.
func (t *Table) SelectUID(uid string) bool {
	for _, idx := range t.filteredIndex {
		if t.rows[idx].UID == uid {
			t.selectionUID = uid
			return true
		}
	}
	return false
}

// Move shifts the selection by delta within the filtered index.
func (t *Table) Move(delta int) {
	pos := t.SelectionIndex()
	if pos < 0 {
		t.Select(0)
		return
	}
	t.Select(pos + delta)
}

// SelectByRef selects the first visible row matching namespace/name.
func (t *Table) SelectByRef(namespace, name string) bool {
	for _, idx := range t.filteredIndex {
		r := t.rows[idx]
		if r.Name == name && (namespace == "" || r.Namespace == namespace) {
			t.selectionUID = r.UID
			return true
		}
	}
	return false
}

func (t *Table) resort() {
	sort.SliceStable(t.rows, func(i, j int) bool {
		if t.rows[i].Namespace != t.rows[j].Namespace {
			return t.rows[i].Namespace < t.rows[j].Namespace
		}
		return t.rows[i].Name < t.rows[j].Name
	})
	t.reindex()
}

func (t *Table) reindex() {
	t.byUID = make(map[string]int, len(t.rows))
	for i, r := range t.rows {
		t.byUID[r.UID] = i
	}
}

func (t *Table) refilter() {
	t.filteredIndex = t.filteredIndex[:0]
	for i, r := range t.rows {
		if r.matches(t.filterQuery) {
			t.filteredIndex = append(t.filteredIndex, i)
		}
	}
}

func (t *Table) selectionVisible() bool {
	return t.SelectionIndex() >= 0
}

// snapSelection keeps the invariant that selectionUID, when set, is present
// in the filtered index.
func (t *Table) snapSelection(priorPos int) {
	if t.selectionUID == "" {
		if len(t.filteredIndex) > 0 {
			t.Select(0)
		}
		return
	}
	if t.selectionVisible() {
		return
	}
	t.snapToNearest(priorPos)
}

func (t *Table) snapToNearest(priorPos int) {
	if len(t.filteredIndex) == 0 {
		t.selectionUID = ""
		return
	}
	t.Select(priorPos)
}

// Store owns every table, keyed by (kind, scope key).
type Store struct {
	tables map[string]*Table
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: map[string]*Table{}}
}

// Table returns the table for (kind, scope), creating it on first use.
func (s *Store) Table(kind kinds.Kind, scope Scope) *Table {
	key := scope.Key(kind)
	t, ok := s.tables[key]
	if !ok {
		t = NewTable(kind, scope)
		s.tables[key] = t
	}
	return t
}

// TableKeyed returns the table for an explicit key, creating it on first
// use. CRD instance views use this: their key carries the instance resource
// on top of the (kind, scope) pair.
func (s *Store) TableKeyed(key string, kind kinds.Kind, scope Scope) *Table {
	t, ok := s.tables[key]
	if !ok {
		t = NewTable(kind, scope)
		s.tables[key] = t
	}
	return t
}

// Lookup returns the table for a precomputed key without creating it.
func (s *Store) Lookup(key string) (*Table, bool) {
	t, ok := s.tables[key]
	return t, ok
}

// DropKey removes the table for an explicit key.
func (s *Store) DropKey(key string) {
	delete(s.tables, key)
}

// Drop removes the table for (kind, scope), e.g. after idle-stop.
func (s *Store) Drop(kind kinds.Kind, scope Scope) {
	delete(s.tables, scope.Key(kind))
}

// Counts returns total row counts per kind for the dashboard overlay.
func (s *Store) Counts() map[kinds.Kind]int {
	out := map[kinds.Kind]int{}
	for _, t := range s.tables {
		out[t.Kind] += t.TotalLen()
	}
	return out
}
