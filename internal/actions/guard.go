// Package actions supervises everything that leaves the process: cluster
// mutations behind the confirmation gate, foreground editor/exec handoffs,
// background port-forwards, log tails and external devops tools.
package actions

import (
	"github.com/ASoldo/orca/internal/command"
)

// mutatingOps is the action set the read-only guard blocks.
var mutatingOps = map[command.Op]bool{
	command.OpDelete:      true,
	command.OpRestart:     true,
	command.OpScale:       true,
	command.OpEdit:        true,
	command.OpExec:        true,
	command.OpShell:       true,
	command.OpPortForward: true,
}

// Guard enforces the read-only policy. It starts from ORCA_READONLY=1 and is
// toggled by :readonly on|off|toggle.
type Guard struct {
	on bool
}

// NewGuard creates a guard with the given initial state.
func NewGuard(on bool) *Guard {
	return &Guard{on: on}
}

// On reports whether the guard is active.
func (g *Guard) On() bool { return g.on }

// Set switches the guard by mode string (on|off|toggle).
func (g *Guard) Set(mode string) {
	switch mode {
	case "on":
		g.on = true
	case "off":
		g.on = false
	case "toggle":
		g.on = !g.on
	}
}

// Check rejects mutating operations while the guard is on. Plugins pass
// their own mutating flag through CheckPlugin.
func (g *Guard) Check(op command.Op) *command.Error {
	if g.on && mutatingOps[op] {
		return command.Errf(command.KindReadOnlyBlocked, "read-only mode is on")
	}
	return nil
}

// CheckPlugin rejects mutating plugins while the guard is on.
func (g *Guard) CheckPlugin(mutating bool) *command.Error {
	if g.on && mutating {
		return command.Errf(command.KindReadOnlyBlocked, "read-only mode is on")
	}
	return nil
}
