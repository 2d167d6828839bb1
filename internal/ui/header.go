package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the top line: app title, active tab, scope, slot strip,
// context name and the read-only badge.
type Header struct {
	appName  string
	tabTitle string
	scope    string
	context  string
	slots    []int
	active   int
	itemUsed int
	itemAll  int
	readonly bool
	width    int
	theme    *Theme
}

// NewHeader creates a header.
func NewHeader(theme *Theme, appName string) *Header {
	return &Header{appName: appName, theme: theme}
}

func (h *Header) SetTab(title string)    { h.tabTitle = title }
func (h *Header) SetScope(scope string)  { h.scope = scope }
func (h *Header) SetContext(name string) { h.context = name }
func (h *Header) SetReadonly(on bool)    { h.readonly = on }
func (h *Header) SetWidth(width int)     { h.width = width }
func (h *Header) SetSlots(ids []int, active int) {
	h.slots = ids
	h.active = active
}

// SetItemCount records filtered vs total row counts.
func (h *Header) SetItemCount(shown, total int) {
	h.itemUsed = shown
	h.itemAll = total
}

// View renders the header line.
func (h *Header) View() string {
	left := []string{h.theme.AppTitle.Render(" " + h.appName + " ")}
	if h.tabTitle != "" {
		left = append(left, h.theme.Header.Render(h.tabTitle))
	}
	if h.scope != "" {
		left = append(left, h.theme.StatusBar.Render("ns: "+h.scope))
	}
	if h.itemAll > 0 || h.itemUsed > 0 {
		left = append(left, h.theme.StatusBar.Render(fmt.Sprintf("%d/%d", h.itemUsed, h.itemAll)))
	}
	if h.readonly {
		badge := lipgloss.NewStyle().Foreground(h.theme.Warning).Bold(true)
		left = append(left, badge.Render("[RO]"))
	}
	leftText := strings.Join(left, " • ")

	right := []string{}
	if len(h.slots) > 0 {
		parts := make([]string, 0, len(h.slots))
		for _, id := range h.slots {
			label := fmt.Sprintf("%d", id)
			if id == h.active {
				parts = append(parts, h.theme.Header.Render("["+label+"]"))
			} else {
				parts = append(parts, h.theme.StatusBar.Render(label))
			}
		}
		right = append(right, strings.Join(parts, " "))
	}
	if h.context != "" {
		right = append(right, h.theme.StatusBar.Render(h.context))
	}
	rightText := strings.Join(right, "  ")

	spacing := h.width - lipgloss.Width(leftText) - lipgloss.Width(rightText)
	if spacing < 1 {
		spacing = 1
	}
	return leftText + strings.Repeat(" ", spacing) + rightText
}
