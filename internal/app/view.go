package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ASoldo/orca/internal/modes"
	"github.com/ASoldo/orca/internal/slots"
	"github.com/ASoldo/orca/internal/ui"
)

// View renders one frame: header, body (table or overlay), the input or
// confirm line, and the status bar.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	header := m.header.View()
	body := m.bodyView()
	input := m.inputLine()
	status := m.statusBar.View()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

func (m *Model) bodyView() string {
	slot := m.slots.Active()
	if overlay := slot.Overlay(); overlay != nil {
		return m.overlayView(slot, overlay)
	}
	return m.grid.View()
}

func (m *Model) overlayView(slot *slots.Slot, overlay *slots.Overlay) string {
	if overlay.Kind == slots.OverlayContainerPicker {
		return m.pickerView(slot, overlay)
	}
	return ui.RenderOverlayFrame(m.theme, overlay.Title, m.overlayVP.View(), m.width, m.bodyHeight())
}

func (m *Model) pickerView(slot *slots.Slot, overlay *slots.Overlay) string {
	picker := m.pickers[slot.ID]
	if picker == nil {
		return ""
	}
	lines := make([]string, 0, len(picker.containers))
	for i, name := range picker.containers {
		if i == overlay.PickIndex {
			lines = append(lines, m.theme.SelectedRow.Render("▸ "+name))
		} else {
			lines = append(lines, "  "+name)
		}
	}
	content := strings.Join(lines, "\n")
	return ui.RenderOverlayFrame(m.theme, overlay.Title, content, m.width/2, len(picker.containers)+4)
}

// inputLine renders the active buffer, the confirm prompt, or the hint line.
func (m *Model) inputLine() string {
	style := lipgloss.NewStyle().Width(m.width).Padding(0, 1)

	if pending := m.gate.Pending(); pending != nil && m.interp.Mode() == modes.Confirm {
		warn := lipgloss.NewStyle().Foreground(m.theme.Warning).Bold(true)
		return style.Render(warn.Render(pending.Prompt))
	}

	switch m.interp.Mode() {
	case modes.Filter:
		return style.Render("/" + m.interp.Buffer() + "█")
	case modes.Command:
		return style.Render(":" + m.interp.Buffer() + "█")
	case modes.Jump:
		return style.Render(">" + m.interp.Buffer() + "█")
	}

	hint := lipgloss.NewStyle().Foreground(m.theme.Dimmed)
	frame := m.slots.Active().Top()
	if frame.Filter != "" {
		return style.Render(hint.Render("filter: " + frame.Filter + "  (esc clears)"))
	}
	return style.Render(hint.Render("[: command  > jump  / filter  ? help]"))
}

// resetOverlayViewport fills the viewport from the overlay buffer after it
// opens or the slot switches back in.
func (m *Model) resetOverlayViewport(slot *slots.Slot) {
	overlay := slot.Overlay()
	if overlay == nil || overlay.BufferKey == "" {
		return
	}
	buf, ok := slot.BufferFor(overlay.BufferKey)
	if !ok {
		return
	}
	m.overlayVP.Width = m.width - 4
	m.overlayVP.Height = m.bodyHeight() - 2
	m.overlayVP.SetContent(strings.Join(buf.Lines(), "\n"))
	m.overlayVP.SetYOffset(overlay.Scroll)
}

// refreshOverlayViewport re-renders a live buffer (log tail) and follows the
// bottom unless the user scrolled up.
func (m *Model) refreshOverlayViewport(slot *slots.Slot) {
	overlay := slot.Overlay()
	if overlay == nil || overlay.BufferKey == "" {
		return
	}
	buf, ok := slot.BufferFor(overlay.BufferKey)
	if !ok {
		return
	}
	follow := m.overlayVP.AtBottom()
	m.overlayVP.SetContent(strings.Join(buf.Lines(), "\n"))
	if follow {
		m.overlayVP.GotoBottom()
	}
	overlay.Scroll = m.overlayVP.YOffset
}
