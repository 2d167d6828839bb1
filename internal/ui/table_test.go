package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAge(tt.d))
	}
}

func TestTableColumnsIncludeNamespaceOnlyForAllNamespaces(t *testing.T) {
	all := TableColumns(kinds.Pods, store.ScopeAll, 120)
	require.Equal(t, "Namespace", all[0].Title)

	scoped := TableColumns(kinds.Pods, store.ScopeNamespace("default"), 120)
	assert.Equal(t, "Name", scoped[0].Title)
}

func TestTableColumnsPFColumn(t *testing.T) {
	titles := func(kind kinds.Kind) []string {
		out := []string{}
		for _, c := range TableColumns(kind, store.ScopeAll, 120) {
			out = append(out, c.Title)
		}
		return out
	}

	assert.Contains(t, titles(kinds.Pods), "PF")
	assert.Contains(t, titles(kinds.Services), "PF")
	assert.NotContains(t, titles(kinds.ConfigMaps), "PF")
}

func TestTableRowsRenderPFAndAge(t *testing.T) {
	rows := []store.Row{
		{
			UID: "u1", Kind: kinds.Pods, Namespace: "x", Name: "y",
			Columns: []string{"1/1", "Running", "0", "node-a", "10.0.0.1"},
			Age:     2 * time.Hour,
		},
	}
	cols := TableColumns(kinds.Pods, store.ScopeAll, 160)
	out := TableRows(kinds.Pods, store.ScopeAll, rows, cols, func(r store.Row) string {
		return "8080→80"
	})

	require.Len(t, out, 1)
	cells := out[0]
	assert.Equal(t, "x", cells[0])
	assert.Equal(t, "y", cells[1])
	assert.Contains(t, cells, "8080→80")
	assert.Equal(t, "2h", cells[len(cells)-1])
}

func TestTableRowsPadMissingColumns(t *testing.T) {
	rows := []store.Row{{UID: "u1", Kind: kinds.Pods, Namespace: "x", Name: "y"}}
	cols := TableColumns(kinds.Pods, store.ScopeAll, 160)
	out := TableRows(kinds.Pods, store.ScopeAll, rows, cols, func(store.Row) string { return "" })
	require.Len(t, out, 1)
	assert.Len(t, out[0], len(cols))
}

func TestGetTheme(t *testing.T) {
	assert.Equal(t, "charm", GetTheme("unknown").Name)
	assert.Equal(t, "dracula", GetTheme("dracula").Name)
	assert.Equal(t, "nord", GetTheme("nord").Name)
}
