package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// MessageType classifies a status bar message.
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageError
)

// StatusBar displays one-line status messages. Errors other than transient
// watch failures surface here; nothing modal except the confirm gate.
type StatusBar struct {
	message     string
	messageType MessageType
	width       int
	theme       *Theme
}

// NewStatusBar creates a new status bar
func NewStatusBar(theme *Theme) *StatusBar {
	return &StatusBar{theme: theme}
}

// SetMessage sets the status message with type
func (sb *StatusBar) SetMessage(msg string, msgType MessageType) {
	sb.message = msg
	sb.messageType = msgType
}

// ClearMessage clears the status message
func (sb *StatusBar) ClearMessage() {
	sb.message = ""
	sb.messageType = MessageInfo
}

// Message returns the current message text.
func (sb *StatusBar) Message() string { return sb.message }

// SetWidth sets the status bar width
func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// View renders the status bar; the line is always reserved.
func (sb *StatusBar) View() string {
	baseStyle := lipgloss.NewStyle().
		Width(sb.width).
		Padding(0, 1)

	if sb.message == "" {
		return baseStyle.Render("")
	}

	var color lipgloss.AdaptiveColor
	switch sb.messageType {
	case MessageSuccess:
		color = sb.theme.Success
	case MessageError:
		color = sb.theme.Error
	default:
		color = sb.theme.Secondary
	}
	return baseStyle.Foreground(color).Render("⏺ " + sb.message)
}
