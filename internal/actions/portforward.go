package actions

import (
	"fmt"
	"sort"
	"time"

	"github.com/ASoldo/orca/internal/kinds"
)

// PFState is a port-forward session state.
type PFState int

const (
	PFStarting PFState = iota
	PFLive
	PFFailed
	PFClosed
)

func (s PFState) String() string {
	switch s {
	case PFStarting:
		return "Starting"
	case PFLive:
		return "Live"
	case PFFailed:
		return "Failed"
	case PFClosed:
		return "Closed"
	}
	return "Unknown"
}

// PFSession is one registered forwarder.
type PFSession struct {
	ID         int
	Kind       kinds.Kind // Pod or Service
	Namespace  string
	Name       string
	LocalPort  int
	RemotePort int
	StartedAt  time.Time
	State      PFState
	Reason     string

	stop chan struct{}
}

// Target renders the forwarding target for the status bar.
func (s *PFSession) Target() string {
	return fmt.Sprintf("%s/%s", s.Namespace, s.Name)
}

// Label renders the compact PF column indicator.
func (s *PFSession) Label() string {
	return fmt.Sprintf("%d→%d", s.LocalPort, s.RemotePort)
}

// PFRegistry is the process-wide port-forward table. It is owned by the
// runtime loop; forward tasks only post state transitions over the bus, and
// the loop applies them here.
type PFRegistry struct {
	nextID   int
	sessions map[int]*PFSession
}

// NewPFRegistry creates an empty registry.
func NewPFRegistry() *PFRegistry {
	return &PFRegistry{sessions: map[int]*PFSession{}}
}

// Insert registers a new session in Starting state and returns it.
func (r *PFRegistry) Insert(kind kinds.Kind, namespace, name string, localPort, remotePort int) *PFSession {
	r.nextID++
	s := &PFSession{
		ID:         r.nextID,
		Kind:       kind,
		Namespace:  namespace,
		Name:       name,
		LocalPort:  localPort,
		RemotePort: remotePort,
		StartedAt:  time.Now(),
		State:      PFStarting,
		stop:       make(chan struct{}),
	}
	r.sessions[s.ID] = s
	return s
}

// Apply records a state transition posted over the bus. Closed and Failed
// sessions stay listed until removed so the user can read the reason.
func (r *PFRegistry) Apply(id int, state PFState, reason string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	// A session closed by request must not flip back to Failed when the
	// forwarder's exit races the transition.
	if s.State == PFClosed && state == PFFailed {
		return
	}
	s.State = state
	s.Reason = reason
}

// Get returns a session by id.
func (r *PFRegistry) Get(id int) (*PFSession, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Close requests cancellation of a session's forwarder.
func (r *PFRegistry) Close(id int) bool {
	s, ok := r.sessions[id]
	if !ok || s.State == PFClosed {
		return false
	}
	s.State = PFClosed
	close(s.stop)
	return true
}

// CloseAll stops every live forwarder, used at teardown.
func (r *PFRegistry) CloseAll() {
	for id := range r.sessions {
		r.Close(id)
	}
}

// Remove drops a session from the registry.
func (r *PFRegistry) Remove(id int) {
	delete(r.sessions, id)
}

// LookupTarget finds the active session for (kind, namespace, name); the PF
// table column renders from it.
func (r *PFRegistry) LookupTarget(kind kinds.Kind, namespace, name string) (*PFSession, bool) {
	for _, s := range r.sessions {
		if s.Kind == kind && s.Namespace == namespace && s.Name == name &&
			(s.State == PFStarting || s.State == PFLive) {
			return s, true
		}
	}
	return nil, false
}

// List returns sessions ordered by id.
func (r *PFRegistry) List() []*PFSession {
	out := make([]*PFSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
