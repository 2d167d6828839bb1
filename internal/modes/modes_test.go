package modes

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeString(it *Interpreter, s string) {
	for _, r := range s {
		it.Handle(runes(string(r)))
	}
}

func TestModePrefixesEnterInputModes(t *testing.T) {
	tests := []struct {
		key  string
		want Mode
		act  ActionKind
	}{
		{"/", Filter, ActStartFilter},
		{":", Command, ActStartCommand},
		{">", Jump, ActStartJump},
	}
	for _, tt := range tests {
		it := New()
		act := it.Handle(runes(tt.key))
		assert.Equal(t, tt.act, act.Kind)
		assert.Equal(t, tt.want, it.Mode())
		assert.Empty(t, it.Buffer(), "buffer starts empty")
	}
}

func TestInputSubmitReturnsBuffer(t *testing.T) {
	it := New()
	it.Handle(runes(":"))
	typeString(it, "po")

	act := it.Handle(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ActSubmit, act.Kind)
	assert.Equal(t, Command, act.Mode)
	assert.Equal(t, "po", act.Buffer)
	assert.Equal(t, Normal, it.Mode())
}

func TestInputEscDiscardsBuffer(t *testing.T) {
	it := New()
	it.Handle(runes("/"))
	typeString(it, "web")

	act := it.Handle(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ActCancelInput, act.Kind)
	assert.Equal(t, Normal, it.Mode())
	assert.Empty(t, it.Buffer())
}

func TestKeepBufferRestoresInputMode(t *testing.T) {
	it := New()
	it.Handle(runes(":"))
	typeString(it, "scal")
	it.Handle(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, Normal, it.Mode())

	// Parser rejected the submission: mode restores, buffer preserved.
	it.KeepBuffer(Command)
	assert.Equal(t, Command, it.Mode())
	assert.Equal(t, "scal", it.Buffer())
}

func TestBackspaceOnEmptyBufferCancels(t *testing.T) {
	it := New()
	it.Handle(runes(":"))
	act := it.Handle(tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, ActCancelInput, act.Kind)
	assert.Equal(t, Normal, it.Mode())
}

func TestNormalModeNavigation(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want ActionKind
	}{
		{runes("j"), ActMoveDown},
		{runes("k"), ActMoveUp},
		{tea.KeyMsg{Type: tea.KeyDown}, ActMoveDown},
		{tea.KeyMsg{Type: tea.KeyUp}, ActMoveUp},
		{runes("g"), ActTop},
		{runes("G"), ActBottom},
		{tea.KeyMsg{Type: tea.KeyCtrlD}, ActHalfPageDown},
		{tea.KeyMsg{Type: tea.KeyCtrlU}, ActHalfPageUp},
		{tea.KeyMsg{Type: tea.KeyEnter}, ActEnterRow},
		{tea.KeyMsg{Type: tea.KeyEsc}, ActPopFrame},
		{runes("r"), ActRefresh},
		{runes("?"), ActToggleHelp},
		{runes("o"), ActToggleDashboard},
		{runes("d"), ActShowDetails},
		{runes("l"), ActShowLogs},
		{runes("e"), ActEditResource},
		{runes("p"), ActPortForwardPrompt},
	}
	for _, tt := range tests {
		it := New()
		act := it.Handle(tt.key)
		assert.Equal(t, tt.want, act.Kind, "key %s", tt.key.String())
	}
}

func TestNavigationKeysInactiveInInputModes(t *testing.T) {
	it := New()
	it.Handle(runes("/"))
	act := it.Handle(runes("j"))
	// 'j' types into the buffer instead of moving the selection.
	assert.Equal(t, ActBufferChanged, act.Kind)
	assert.Equal(t, "j", it.Buffer())
}

func TestConfirmModeAcceptsOnlyYesNo(t *testing.T) {
	it := New()
	it.EnterConfirm()

	// Everything but y/n/enter/esc is ignored.
	for _, k := range []string{"j", "k", "x", "5", "/", ":"} {
		act := it.Handle(runes(k))
		assert.Equal(t, ActNone, act.Kind, "key %q must be ignored in confirm mode", k)
		assert.Equal(t, Confirm, it.Mode())
	}

	act := it.Handle(runes("y"))
	assert.Equal(t, ActConfirmYes, act.Kind)
	assert.Equal(t, Normal, it.Mode())

	it.EnterConfirm()
	act = it.Handle(runes("n"))
	assert.Equal(t, ActConfirmNo, act.Kind)

	it.EnterConfirm()
	act = it.Handle(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ActConfirmYes, act.Kind)

	it.EnterConfirm()
	act = it.Handle(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ActConfirmNo, act.Kind)
}

func TestSlotDeleteChordWorksInEveryMode(t *testing.T) {
	altDigit := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2"), Alt: true} // "alt+2"

	prepare := map[string]func(*Interpreter){
		"normal":  func(*Interpreter) {},
		"filter":  func(it *Interpreter) { it.Handle(runes("/")) },
		"command": func(it *Interpreter) { it.Handle(runes(":")) },
		"confirm": func(it *Interpreter) { it.EnterConfirm() },
		"overlay": func(it *Interpreter) { it.EnterOverlay() },
	}
	for name, setup := range prepare {
		t.Run(name, func(t *testing.T) {
			it := New()
			setup(it)
			act := it.Handle(altDigit)
			assert.Equal(t, ActSlotDelete, act.Kind)
			assert.Equal(t, 2, act.Slot)
		})
	}
}

func TestDigitSwitchesSlotInNormalMode(t *testing.T) {
	it := New()
	act := it.Handle(runes("3"))
	assert.Equal(t, ActSlotSwitch, act.Kind)
	assert.Equal(t, 3, act.Slot)

	// In an input mode the digit types into the buffer instead.
	it.Handle(runes("/"))
	act = it.Handle(runes("3"))
	assert.Equal(t, ActBufferChanged, act.Kind)
	assert.Equal(t, "3", it.Buffer())
}

func TestOverlayModeForwardsKeys(t *testing.T) {
	it := New()
	it.EnterOverlay()

	act := it.Handle(runes("j"))
	assert.Equal(t, ActOverlayKey, act.Kind)

	// ':' still opens the command line from an overlay.
	act = it.Handle(runes(":"))
	assert.Equal(t, ActStartCommand, act.Kind)
	assert.Equal(t, Command, it.Mode())
}

func TestHotkeyResolvesBeforeBuiltins(t *testing.T) {
	it := New()
	it.SetHotkeys([]HotkeyBinding{{Key: "l", Command: "helm", Jump: false}})

	act := it.Handle(runes("l"))
	require.Equal(t, ActHotkey, act.Kind, "user hotkey wins over the builtin map")
	assert.Equal(t, "helm", act.Hotkey.Command)

	// Unbound keys still hit the builtin map.
	act = it.Handle(runes("d"))
	assert.Equal(t, ActShowDetails, act.Kind)
}

func TestTabCyclesCompletions(t *testing.T) {
	it := New()
	it.SetCompletions([]string{"pods", "podtemplates", "deployments"})
	it.Handle(runes(":"))
	typeString(it, "pod")

	it.Handle(tea.KeyMsg{Type: tea.KeyTab})
	first := it.Buffer()
	assert.Contains(t, []string{"pods", "podtemplates"}, first)

	it.Handle(tea.KeyMsg{Type: tea.KeyTab})
	second := it.Buffer()
	assert.NotEqual(t, first, second, "tab advances the completion cursor")

	// Typing resets the completion cycle.
	typeString(it, "x")
	assert.Contains(t, it.Buffer(), "x")
}

func TestCompletionReplacesLastTokenOnly(t *testing.T) {
	it := New()
	it.SetCompletions([]string{"web-prod"})
	it.Handle(runes(":"))
	typeString(it, "deploy web")

	it.Handle(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "deploy web-prod", it.Buffer())
}
