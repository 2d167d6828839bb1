package actions

import (
	"fmt"

	"github.com/ASoldo/orca/internal/command"
	"github.com/ASoldo/orca/internal/k8s"
)

// Pending is one mutating action waiting at the confirmation gate. It is
// created by the dispatcher and destroyed on y (execute) or n/Esc (discard).
type Pending struct {
	ID       int
	Op       command.Op
	Ref      k8s.Ref
	Replicas int
	Prompt   string
}

// Gate holds at most one pending action. No confirmed mutation reaches the
// cluster without passing through Confirm with a matching id.
type Gate struct {
	nextID  int
	pending *Pending
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Request parks a new pending action, replacing any previous one.
func (g *Gate) Request(op command.Op, ref k8s.Ref, replicas int) *Pending {
	g.nextID++
	p := &Pending{
		ID:       g.nextID,
		Op:       op,
		Ref:      ref,
		Replicas: replicas,
		Prompt:   promptFor(op, ref, replicas),
	}
	g.pending = p
	return p
}

// Pending returns the parked action, or nil.
func (g *Gate) Pending() *Pending { return g.pending }

// Confirm consumes the pending action when the id matches; the caller then
// executes it. A mismatched or absent id returns nil.
func (g *Gate) Confirm(id int) *Pending {
	if g.pending == nil || g.pending.ID != id {
		return nil
	}
	p := g.pending
	g.pending = nil
	return p
}

// Discard drops the pending action without executing.
func (g *Gate) Discard() {
	g.pending = nil
}

func promptFor(op command.Op, ref k8s.Ref, replicas int) string {
	switch op {
	case command.OpDelete:
		return fmt.Sprintf("Delete %s %s? (y/n)", ref.Kind.Title(), ref)
	case command.OpRestart:
		return fmt.Sprintf("Restart %s %s? (y/n)", ref.Kind.Title(), ref)
	case command.OpScale:
		return fmt.Sprintf("Scale %s %s to %d replicas? (y/n)", ref.Kind.Title(), ref, replicas)
	}
	return fmt.Sprintf("Confirm action on %s? (y/n)", ref)
}
