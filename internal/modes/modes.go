// Package modes is the keyboard state machine. It maps raw key events to
// actions under the current mode; the app turns actions into store, slot and
// supervisor effects.
package modes

import (
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// Mode is the active input mode.
type Mode int

const (
	Normal Mode = iota
	Filter      // '/' buffer
	Command     // ':' buffer
	Jump        // '>' buffer
	Confirm     // pending action gate: only y/n
	Overlay     // an overlay owns navigation keys
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Filter:
		return "filter"
	case Command:
		return "command"
	case Jump:
		return "jump"
	case Confirm:
		return "confirm"
	case Overlay:
		return "overlay"
	}
	return "unknown"
}

// ActionKind discriminates interpreter results.
type ActionKind int

const (
	ActNone ActionKind = iota
	ActQuit
	ActMoveDown
	ActMoveUp
	ActTop
	ActBottom
	ActHalfPageDown
	ActHalfPageUp
	ActNextTab
	ActPrevTab
	ActEnterRow    // drill down
	ActPopFrame    // esc in normal mode
	ActRefresh
	ActToggleHelp
	ActToggleDashboard
	ActShowDetails
	ActShowLogs
	ActShowShell
	ActEditResource
	ActPortForwardPrompt
	ActStartFilter
	ActStartCommand
	ActStartJump
	ActBufferChanged // live filter echo
	ActSubmit        // Enter in an input mode
	ActCancelInput   // Esc in an input mode
	ActConfirmYes
	ActConfirmNo
	ActSlotSwitch // Ctrl+1..9 (create when missing)
	ActSlotDelete // Ctrl+Alt+0..9
	ActOverlayKey // forwarded to active overlay
	ActHotkey     // user-defined hotkey fired
)

// Action is one interpreted key event.
type Action struct {
	Kind   ActionKind
	Mode   Mode   // mode the buffer belongs to, for ActSubmit/ActBufferChanged
	Buffer string // submitted or live buffer text
	Slot   int    // ActSlotSwitch / ActSlotDelete
	Key    tea.KeyMsg
	Hotkey HotkeyBinding
}

// HotkeyBinding is a user-defined key-to-command binding from the config
// registry. Jump bindings go through the '>' grammar.
type HotkeyBinding struct {
	Key     string
	Command string
	Jump    bool
}

// Interpreter holds the mode, the input buffer and the autocomplete cursor.
type Interpreter struct {
	mode    Mode
	buffer  string
	hotkeys map[string]HotkeyBinding

	completions   []string
	completeBase  string
	completeIndex int
}

// New creates an interpreter in Normal mode.
func New() *Interpreter {
	return &Interpreter{hotkeys: map[string]HotkeyBinding{}, completeIndex: -1}
}

// Mode returns the current mode.
func (it *Interpreter) Mode() Mode { return it.mode }

// Buffer returns the current input buffer (without prefix).
func (it *Interpreter) Buffer() string { return it.buffer }

// SetHotkeys replaces the user hotkey table from a config snapshot.
func (it *Interpreter) SetHotkeys(bindings []HotkeyBinding) {
	it.hotkeys = map[string]HotkeyBinding{}
	for _, b := range bindings {
		it.hotkeys[b.Key] = b
	}
}

// StartCommand enters Command mode with a prefilled buffer, used by the
// port-forward prompt and hotkeys that want editing before submit.
func (it *Interpreter) StartCommand(prefill string) {
	it.mode = Command
	it.buffer = prefill
	it.resetCompletion()
}

// EnterConfirm switches to the confirmation gate.
func (it *Interpreter) EnterConfirm() { it.mode = Confirm }

// EnterOverlay hands navigation to an overlay.
func (it *Interpreter) EnterOverlay() { it.mode = Overlay }

// Reset returns to Normal mode with an empty buffer.
func (it *Interpreter) Reset() {
	it.mode = Normal
	it.buffer = ""
	it.resetCompletion()
}

// KeepBuffer returns to the input mode with the buffer preserved, used when
// the parser rejects a submission.
func (it *Interpreter) KeepBuffer(mode Mode) {
	it.mode = mode
}

// SetCompletions replaces the autocomplete candidate set. Candidates come
// from the alias registry, the active table's resource names and the builtin
// verb vocabulary.
func (it *Interpreter) SetCompletions(candidates []string) {
	it.completions = candidates
	it.resetCompletion()
}

// Handle interprets one key event under the current mode.
// Slot keys are allowed in any mode.
func (it *Interpreter) Handle(key tea.KeyMsg) Action {
	if act, ok := slotAction(key); ok {
		return act
	}

	switch it.mode {
	case Normal:
		return it.handleNormal(key)
	case Filter, Command, Jump:
		return it.handleInput(key)
	case Confirm:
		return it.handleConfirm(key)
	case Overlay:
		return it.handleOverlay(key)
	}
	return Action{Kind: ActNone, Key: key}
}

func (it *Interpreter) handleNormal(key tea.KeyMsg) Action {
	s := key.String()

	// User hotkeys resolve before the builtin modal map.
	if hk, ok := it.hotkeys[s]; ok {
		return Action{Kind: ActHotkey, Hotkey: hk, Key: key}
	}

	// Plain digits switch slots in normal mode, like the Ctrl chords.
	if len(s) == 1 && s >= "1" && s <= "9" {
		return Action{Kind: ActSlotSwitch, Slot: int(s[0] - '0'), Key: key}
	}

	switch s {
	case "ctrl+c":
		return Action{Kind: ActQuit, Key: key}
	case "j", "down":
		return Action{Kind: ActMoveDown, Key: key}
	case "k", "up":
		return Action{Kind: ActMoveUp, Key: key}
	case "g", "home":
		return Action{Kind: ActTop, Key: key}
	case "G", "end":
		return Action{Kind: ActBottom, Key: key}
	case "ctrl+d", "pgdown":
		return Action{Kind: ActHalfPageDown, Key: key}
	case "ctrl+u", "pgup":
		return Action{Kind: ActHalfPageUp, Key: key}
	case "left", "[":
		return Action{Kind: ActPrevTab, Key: key}
	case "right", "]":
		return Action{Kind: ActNextTab, Key: key}
	case "enter":
		return Action{Kind: ActEnterRow, Key: key}
	case "esc":
		return Action{Kind: ActPopFrame, Key: key}
	case "r", "f5":
		return Action{Kind: ActRefresh, Key: key}
	case "?":
		return Action{Kind: ActToggleHelp, Key: key}
	case "o":
		return Action{Kind: ActToggleDashboard, Key: key}
	case "d":
		return Action{Kind: ActShowDetails, Key: key}
	case "l":
		return Action{Kind: ActShowLogs, Key: key}
	case "s":
		return Action{Kind: ActShowShell, Key: key}
	case "e":
		return Action{Kind: ActEditResource, Key: key}
	case "p":
		return Action{Kind: ActPortForwardPrompt, Key: key}
	case "/":
		it.mode = Filter
		it.buffer = ""
		it.resetCompletion()
		return Action{Kind: ActStartFilter, Key: key}
	case ":":
		it.mode = Command
		it.buffer = ""
		it.resetCompletion()
		return Action{Kind: ActStartCommand, Key: key}
	case ">":
		it.mode = Jump
		it.buffer = ""
		it.resetCompletion()
		return Action{Kind: ActStartJump, Key: key}
	}
	return Action{Kind: ActNone, Key: key}
}

func (it *Interpreter) handleInput(key tea.KeyMsg) Action {
	mode := it.mode
	switch key.Type {
	case tea.KeyEsc:
		it.Reset()
		return Action{Kind: ActCancelInput, Mode: mode, Key: key}
	case tea.KeyEnter:
		buf := it.buffer
		// Mode resets optimistically; the app calls KeepBuffer on parse
		// errors to restore the input with the buffer intact.
		submitted := Action{Kind: ActSubmit, Mode: mode, Buffer: buf, Key: key}
		it.mode = Normal
		it.resetCompletion()
		return submitted
	case tea.KeyTab:
		it.advanceCompletion()
		return Action{Kind: ActBufferChanged, Mode: mode, Buffer: it.buffer, Key: key}
	case tea.KeyBackspace:
		if it.buffer == "" {
			it.Reset()
			return Action{Kind: ActCancelInput, Mode: mode, Key: key}
		}
		it.buffer = it.buffer[:len(it.buffer)-1]
		it.resetCompletion()
		return Action{Kind: ActBufferChanged, Mode: mode, Buffer: it.buffer, Key: key}
	case tea.KeySpace:
		it.buffer += " "
		it.resetCompletion()
		return Action{Kind: ActBufferChanged, Mode: mode, Buffer: it.buffer, Key: key}
	case tea.KeyRunes:
		it.buffer += string(key.Runes)
		it.resetCompletion()
		return Action{Kind: ActBufferChanged, Mode: mode, Buffer: it.buffer, Key: key}
	}
	return Action{Kind: ActNone, Mode: mode, Key: key}
}

// handleConfirm accepts only y/Enter and n/Esc; everything else is ignored
// while a pending action waits.
func (it *Interpreter) handleConfirm(key tea.KeyMsg) Action {
	switch key.String() {
	case "y", "Y", "enter":
		it.mode = Normal
		return Action{Kind: ActConfirmYes, Key: key}
	case "n", "N", "esc":
		it.mode = Normal
		return Action{Kind: ActConfirmNo, Key: key}
	}
	return Action{Kind: ActNone, Key: key}
}

func (it *Interpreter) handleOverlay(key tea.KeyMsg) Action {
	switch key.String() {
	case ":":
		it.mode = Command
		it.buffer = ""
		it.resetCompletion()
		return Action{Kind: ActStartCommand, Key: key}
	case "ctrl+c":
		return Action{Kind: ActQuit, Key: key}
	}
	return Action{Kind: ActOverlayKey, Key: key}
}

// slotAction decodes the view-slot chords, which work in every mode.
// Terminals that cannot deliver ctrl+digit distinctly still reach the slots
// through plain digits in normal mode (handled in handleNormal) and
// alt+digit for deletion.
func slotAction(key tea.KeyMsg) (Action, bool) {
	s := key.String()
	for _, prefix := range []string{"ctrl+alt+", "alt+"} {
		if n, ok := strings.CutPrefix(s, prefix); ok && len(n) == 1 && n >= "0" && n <= "9" {
			return Action{Kind: ActSlotDelete, Slot: int(n[0] - '0'), Key: key}, true
		}
	}
	for _, prefix := range []string{"ctrl+shift+", "ctrl+"} {
		if n, ok := strings.CutPrefix(s, prefix); ok && len(n) == 1 && n >= "1" && n <= "9" {
			return Action{Kind: ActSlotSwitch, Slot: int(n[0] - '0'), Key: key}, true
		}
	}
	return Action{}, false
}

// advanceCompletion cycles the last token of the buffer through ranked
// candidates. The first Tab snapshots the typed prefix as the match base.
func (it *Interpreter) advanceCompletion() {
	if len(it.completions) == 0 {
		return
	}
	if it.completeIndex < 0 {
		it.completeBase = lastToken(it.buffer)
	}

	matches := rankCompletions(it.completeBase, it.completions)
	if len(matches) == 0 {
		return
	}
	it.completeIndex = (it.completeIndex + 1) % len(matches)
	it.buffer = replaceLastToken(it.buffer, matches[it.completeIndex])
}

func (it *Interpreter) resetCompletion() {
	it.completeIndex = -1
	it.completeBase = ""
}

// rankCompletions orders candidates by fuzzy match quality; an empty base
// returns all candidates sorted.
func rankCompletions(base string, candidates []string) []string {
	if base == "" {
		out := append([]string(nil), candidates...)
		sort.Strings(out)
		return out
	}
	matches := fuzzy.Find(base, candidates)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = candidates[m.Index]
	}
	return out
}

func lastToken(s string) string {
	if idx := strings.LastIndex(s, " "); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func replaceLastToken(s, token string) string {
	if idx := strings.LastIndex(s, " "); idx >= 0 {
		return s[:idx+1] + token
	}
	return token
}
