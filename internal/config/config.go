// Package config loads the orca runtime configuration: user aliases, plugin
// commands and hotkeys. The file is YAML, discovered from ORCA_CONFIG, the
// working directory, then the home directory, and hot-reloaded on change.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ASoldo/orca/internal/command"
)

// PluginDef is one user-defined plugin command.
type PluginDef struct {
	Name        string   `yaml:"name"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	Description string   `yaml:"description"`
	Mutating    bool     `yaml:"mutating"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Retries     int      `yaml:"retries"`
}

// HotkeyDef binds a key to a command string; jump bindings go through the
// '>' grammar instead of ':'.
type HotkeyDef struct {
	Key         string `yaml:"key"`
	Command     string `yaml:"command"`
	Description string `yaml:"description"`
	Jump        bool   `yaml:"jump"`
}

// Snapshot is one validated configuration state.
type Snapshot struct {
	Source       string
	Aliases      map[string]string
	Plugins      []PluginDef
	Hotkeys      []HotkeyDef
	ConfirmScale bool
}

type fileSchema struct {
	Aliases      map[string]string `yaml:"aliases"`
	Plugins      []PluginDef       `yaml:"plugins"`
	Hotkeys      []HotkeyDef       `yaml:"hotkeys"`
	ConfirmScale bool              `yaml:"confirm_scale"`
}

const defaultPluginTimeoutSecs = 20

// DiscoverPath finds the config file. ORCA_CONFIG wins; then the working
// directory; then the user's home.
func DiscoverPath() string {
	if path := strings.TrimSpace(os.Getenv("ORCA_CONFIG")); path != "" {
		return path
	}
	for _, candidate := range []string{"orca.yaml", "orca.yml", ".orca.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, candidate := range []string{
		filepath.Join(home, ".config", "orca", "config.yaml"),
		filepath.Join(home, ".config", "orca", "config.yml"),
		filepath.Join(home, ".orca.yaml"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load reads and validates the config file at path. An empty path returns an
// empty snapshot.
func Load(path string) (*Snapshot, error) {
	snap := &Snapshot{Aliases: map[string]string{}}
	if path == "" {
		return snap, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var parsed fileSchema
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	snap.Source = path
	snap.ConfirmScale = parsed.ConfirmScale
	for name, expansion := range parsed.Aliases {
		snap.Aliases[strings.ToLower(name)] = expansion
	}
	snap.Plugins = parsed.Plugins
	for i := range snap.Plugins {
		if snap.Plugins[i].TimeoutSecs <= 0 {
			snap.Plugins[i].TimeoutSecs = defaultPluginTimeoutSecs
		}
		snap.Plugins[i].Name = strings.ToLower(snap.Plugins[i].Name)
	}
	snap.Hotkeys = parsed.Hotkeys

	if err := Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate rejects alias tables that rebind a builtin verb or contain
// cycles, and plugins without a command.
func Validate(snap *Snapshot) error {
	for name := range snap.Aliases {
		if command.IsBuiltin(name) {
			return fmt.Errorf("alias %q rebinds a builtin verb", name)
		}
	}
	if err := checkAliasCycles(snap.Aliases); err != nil {
		return err
	}
	for _, p := range snap.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugin with empty name")
		}
		if p.Command == "" {
			return fmt.Errorf("plugin %q has no command", p.Name)
		}
	}
	for _, hk := range snap.Hotkeys {
		if hk.Key == "" || hk.Command == "" {
			return fmt.Errorf("hotkey needs both key and command")
		}
	}
	return nil
}

// checkAliasCycles walks each alias's first token through the table.
// Aliases expand only once at dispatch time, but a cyclic table is always a
// user mistake, so it is rejected at load.
func checkAliasCycles(aliases map[string]string) error {
	for start := range aliases {
		seen := map[string]bool{start: true}
		current := firstToken(aliases[start])
		for {
			if _, ok := aliases[current]; !ok {
				break
			}
			if seen[current] {
				return fmt.Errorf("alias cycle detected through %q", start)
			}
			seen[current] = true
			current = firstToken(aliases[current])
		}
	}
	return nil
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// PluginByName finds a plugin definition.
func (s *Snapshot) PluginByName(name string) (PluginDef, bool) {
	name = strings.ToLower(name)
	for _, p := range s.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginDef{}, false
}

// PluginNames lists plugin names for the parser's verb resolution.
func (s *Snapshot) PluginNames() []string {
	out := make([]string, 0, len(s.Plugins))
	for _, p := range s.Plugins {
		out = append(out, p.Name)
	}
	return out
}

// PlaceholderContext carries the values plugin placeholders resolve from.
type PlaceholderContext struct {
	Name          string
	Namespace     string
	Resource      string
	Context       string
	Cluster       string
	User          string
	Scope         string
	AllNamespaces bool
	Args          []string
	Extra         string
}

// ExpandPlaceholders substitutes {name}, {namespace}, {target}, {resource},
// {context}, {cluster}, {user}, {scope}, {all_namespaces}, {args} and
// {extra} in plugin argument lists. An unresolvable placeholder (e.g.
// {name} with no selection) yields a MissingArg error.
func ExpandPlaceholders(args []string, ctx PlaceholderContext) ([]string, *command.Error) {
	target := ctx.Name
	if ctx.Namespace != "" && ctx.Name != "" {
		target = ctx.Namespace + "/" + ctx.Name
	}
	values := map[string]string{
		"{name}":           ctx.Name,
		"{namespace}":      ctx.Namespace,
		"{target}":         target,
		"{resource}":       ctx.Resource,
		"{context}":        ctx.Context,
		"{cluster}":        ctx.Cluster,
		"{user}":           ctx.User,
		"{scope}":          ctx.Scope,
		"{all_namespaces}": fmt.Sprintf("%t", ctx.AllNamespaces),
		"{args}":           strings.Join(ctx.Args, " "),
		"{extra}":          ctx.Extra,
	}

	out := make([]string, 0, len(args))
	for _, arg := range args {
		expanded := arg
		for placeholder, value := range values {
			if !strings.Contains(expanded, placeholder) {
				continue
			}
			if value == "" && placeholder != "{args}" && placeholder != "{extra}" {
				return nil, command.Errf(command.KindMissingArg,
					"plugin placeholder %s cannot be resolved", placeholder)
			}
			expanded = strings.ReplaceAll(expanded, placeholder, value)
		}
		out = append(out, expanded)
	}
	return out, nil
}

// Watcher hot-reloads the config by polling the file's mtime.
type Watcher struct {
	path     string
	modified time.Time
}

// NewWatcher creates a watcher for the discovered path.
func NewWatcher(path string) *Watcher {
	w := &Watcher{path: path}
	if info, err := os.Stat(path); err == nil {
		w.modified = info.ModTime()
	}
	return w
}

// Poll returns a fresh snapshot when the file changed since the last poll,
// nil otherwise. Load errors are returned so the app can surface them
// without dropping the previous snapshot.
func (w *Watcher) Poll() (*Snapshot, error) {
	if w.path == "" {
		if path := DiscoverPath(); path != "" {
			w.path = path
		} else {
			return nil, nil
		}
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, nil
	}
	if info.ModTime().Equal(w.modified) {
		return nil, nil
	}
	w.modified = info.ModTime()
	return Load(w.path)
}
