package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HelpLines is the content of the help overlay, grouped the way the keys are
// grouped in the interpreter.
func HelpLines() []string {
	sections := []struct {
		title string
		keys  [][2]string
	}{
		{"Navigation", [][2]string{
			{"j/k ↓/↑", "move selection"},
			{"g/G", "top / bottom"},
			{"ctrl+d/ctrl+u", "half page down / up"},
			{"←/→ [ ]", "previous / next tab"},
			{"enter", "drill into selection"},
			{"esc", "back / close overlay"},
		}},
		{"Modes", [][2]string{
			{"/", "filter rows"},
			{":", "command"},
			{">", "jump"},
			{"tab", "autocomplete in input modes"},
		}},
		{"Actions", [][2]string{
			{"d", "details (YAML)"},
			{"l", "logs"},
			{"s", "shell"},
			{"e", "edit"},
			{"p", "port-forward prompt"},
			{"o", "dashboard"},
			{"r", "refresh"},
		}},
		{"View slots", [][2]string{
			{"ctrl+1..9", "switch / create slot"},
			{"ctrl+alt+0..9", "delete slot"},
		}},
		{"Commands", [][2]string{
			{":po :deploy :svc ...", "switch resource tab"},
			{":ns <name>  :all-ns", "set scope"},
			{":scale N :restart :delete", "mutate selection"},
			{":pf L:R", "port-forward selection"},
			{":readonly on|off|toggle", "read-only guard"},
			{":argocd :helm :tf ...", "devops tools"},
			{":q", "quit"},
		}},
	}

	lines := []string{}
	for _, section := range sections {
		lines = append(lines, section.title)
		for _, kv := range section.keys {
			lines = append(lines, "  "+padRight(kv[0], 26)+kv[1])
		}
		lines = append(lines, "")
	}
	return lines
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderOverlayFrame wraps overlay content in the bordered box every overlay
// shares.
func RenderOverlayFrame(theme *Theme, title, content string, width, height int) string {
	if width < 10 {
		width = 10
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(width - 2).
		Height(height - 2)

	titleLine := theme.Header.Render(" " + title + " ")
	return lipgloss.JoinVertical(lipgloss.Left, titleLine, box.Render(content))
}
