package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASoldo/orca/internal/command"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
aliases:
  dwp: deploy web-prod
  wp: po web
plugins:
  - name: Flamegraph
    command: flamegraph.sh
    args: ["{namespace}", "{name}"]
    description: profile the selected pod
    timeout_secs: 30
  - name: cleanup
    command: cleanup.sh
    mutating: true
hotkeys:
  - key: F2
    command: "deploy"
  - key: F3
    command: "web"
    jump: true
confirm_scale: true
`)

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, snap.Source)
	assert.Equal(t, "deploy web-prod", snap.Aliases["dwp"])
	assert.True(t, snap.ConfirmScale)

	require.Len(t, snap.Plugins, 2)
	// Names normalize to lower case, default timeout fills in.
	assert.Equal(t, "flamegraph", snap.Plugins[0].Name)
	assert.Equal(t, 30, snap.Plugins[0].TimeoutSecs)
	assert.Equal(t, 20, snap.Plugins[1].TimeoutSecs)
	assert.True(t, snap.Plugins[1].Mutating)

	require.Len(t, snap.Hotkeys, 2)
	assert.True(t, snap.Hotkeys[1].Jump)
}

func TestLoadEmptyPath(t *testing.T) {
	snap, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, snap.Source)
	assert.Empty(t, snap.Aliases)
}

func TestValidateRejectsBuiltinRebind(t *testing.T) {
	path := writeConfig(t, `
aliases:
  delete: po
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebinds a builtin")
}

func TestValidateRejectsAliasCycles(t *testing.T) {
	path := writeConfig(t, `
aliases:
  a: b extra
  b: c
  c: a
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateAcceptsAliasChains(t *testing.T) {
	path := writeConfig(t, `
aliases:
  a: b
  b: deploy
`)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestValidateRejectsPluginWithoutCommand(t *testing.T) {
	path := writeConfig(t, `
plugins:
  - name: broken
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")
}

func TestExpandPlaceholders(t *testing.T) {
	ctx := PlaceholderContext{
		Name:      "web-1",
		Namespace: "default",
		Resource:  "pods",
		Context:   "prod-cluster",
		Cluster:   "prod",
		User:      "admin",
		Scope:     "default",
		Args:      []string{"-v"},
	}

	out, err := ExpandPlaceholders(
		[]string{"tool", "{namespace}/{name}", "--ctx={context}", "{target}", "{args}"}, ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"tool", "default/web-1", "--ctx=prod-cluster", "default/web-1", "-v"}, out)
}

func TestExpandPlaceholdersMissingSelection(t *testing.T) {
	_, err := ExpandPlaceholders([]string{"{name}"}, PlaceholderContext{})
	require.NotNil(t, err)
	assert.Equal(t, command.KindMissingArg, err.Kind)
}

func TestExpandPlaceholdersAllNamespaces(t *testing.T) {
	out, err := ExpandPlaceholders([]string{"{all_namespaces}"}, PlaceholderContext{AllNamespaces: true})
	require.Nil(t, err)
	assert.Equal(t, []string{"true"}, out)
}

func TestWatcherDetectsChange(t *testing.T) {
	path := writeConfig(t, "aliases:\n  x: po\n")
	w := NewWatcher(path)

	snap, err := w.Poll()
	require.NoError(t, err)
	assert.Nil(t, snap, "unchanged file yields no snapshot")

	// Backdate then rewrite so the mtime definitely moves.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	_, err = w.Poll() // absorb the backdated mtime
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  y: svc\n"), 0o644))

	snap, err = w.Poll()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "svc", snap.Aliases["y"])
}

func TestWatcherSurvivesBrokenReload(t *testing.T) {
	path := writeConfig(t, "aliases:\n  x: po\n")
	w := NewWatcher(path)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	_, err := w.Poll()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  delete: po\n"), 0o644))

	snap, err := w.Poll()
	assert.Error(t, err, "invalid config reports the error")
	assert.Nil(t, snap, "previous snapshot stays in effect")
}
