package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/mattn/go-runewidth"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// ToTableStyles converts the theme to bubbles table styles.
func (t *Theme) ToTableStyles() table.Styles {
	return table.Styles{
		Header:   t.TableHeader,
		Cell:     t.TableCell,
		Selected: t.SelectedRow,
	}
}

// hasPFColumn reports whether the kind renders a port-forward indicator.
func hasPFColumn(kind kinds.Kind) bool {
	return kind == kinds.Pods || kind == kinds.Services
}

// TableColumns builds the column layout for a kind. The Name column absorbs
// whatever width the fixed columns leave over.
func TableColumns(kind kinds.Kind, scope store.Scope, width int) []table.Column {
	caps := kinds.Caps(kind)
	cols := []table.Column{}
	fixed := 0

	withNamespace := caps.Namespaced && scope.AllNamespaces
	if withNamespace {
		cols = append(cols, table.Column{Title: "Namespace", Width: 20})
		fixed += 20
	}
	nameIdx := len(cols)
	cols = append(cols, table.Column{Title: "Name", Width: 0})

	for _, title := range caps.Columns {
		w := columnWidth(title)
		cols = append(cols, table.Column{Title: title, Width: w})
		fixed += w
	}
	if hasPFColumn(kind) {
		cols = append(cols, table.Column{Title: "PF", Width: 10})
		fixed += 10
	}
	cols = append(cols, table.Column{Title: "Age", Width: 7})
	fixed += 7

	nameWidth := width - fixed - len(cols)*2
	if nameWidth < 20 {
		nameWidth = 20
	}
	cols[nameIdx].Width = nameWidth
	return cols
}

func columnWidth(title string) int {
	switch title {
	case "Message", "Hosts":
		return 40
	case "Node", "Object", "Claim", "Volume":
		return 24
	case "Cluster-IP", "External-IP", "IP", "Version", "Ports", "Schedule":
		return 15
	case "Status", "Reason", "Group", "Kind":
		return 14
	default:
		return 10
	}
}

// TableRows converts store rows into display rows matching TableColumns.
// pfLabel supplies the PF column text for a row ("" when no forward).
func TableRows(kind kinds.Kind, scope store.Scope, rows []store.Row, cols []table.Column, pfLabel func(store.Row) string) []table.Row {
	caps := kinds.Caps(kind)
	withNamespace := caps.Namespaced && scope.AllNamespaces

	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		cells := []string{}
		if withNamespace {
			cells = append(cells, r.Namespace)
		}
		cells = append(cells, r.Name)
		for i := range caps.Columns {
			if i < len(r.Columns) {
				cells = append(cells, r.Columns[i])
			} else {
				cells = append(cells, "")
			}
		}
		if hasPFColumn(kind) {
			cells = append(cells, pfLabel(r))
		}
		cells = append(cells, FormatAge(r.Age))

		for i := range cells {
			if i < len(cols) {
				cells[i] = runewidth.Truncate(cells[i], cols[i].Width, "…")
			}
		}
		out = append(out, table.Row(cells))
	}
	return out
}

// FormatAge renders a duration the way kubectl does.
func FormatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
