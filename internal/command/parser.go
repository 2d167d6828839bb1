// Package command parses the strings submitted from the ':' and '>' buffers
// into typed commands and classifies everything that can go wrong with them.
package command

import (
	"strconv"
	"strings"

	"github.com/ASoldo/orca/internal/kinds"
)

// Op identifies what a parsed command asks the dispatcher to do.
type Op int

const (
	OpNone Op = iota
	OpQuit
	OpRefresh
	OpReloadConfig
	OpSwitchTab
	OpSetNamespace
	OpAllNamespaces
	OpFilter
	OpClearFilter
	OpLogs
	OpEdit
	OpDelete
	OpRestart
	OpScale
	OpExec
	OpShell
	OpPortForward
	OpClosePF
	OpCRDCatalog
	OpCRDRefresh
	OpHelp
	OpTabCycle
	OpReadonly
	OpConfigInfo
	OpContexts
	OpClusters
	OpUsers
	OpAlerts
	OpPulses
	OpXray
	OpDevOps
	OpPlugin
	OpCopy
)

// Command is one parsed instruction.
type Command struct {
	Op   Op
	Kind kinds.Kind // tab for OpSwitchTab, jump target kind

	Filter    string // trailing filter for resource switch / OpFilter
	Namespace string // jump target namespace / OpSetNamespace argument
	Name      string // jump target name

	Replicas   int // OpScale
	PFID       int // OpClosePF; -1 means the selection's forward
	LocalPort  int // OpPortForward
	RemotePort int

	Args []string // exec argv, devops/plugin arguments
	Tool string   // devops tool or plugin name

	ReadonlyMode string // on | off | toggle
	Jump         bool   // parsed from the '>' buffer
	FuzzyQuery   string // jump with no alias prefix: fuzzy name match
}

// builtins is the verb vocabulary. A token matches builtins before user
// aliases, and user aliases before resource aliases.
var builtins = map[string]Op{
	"q": OpQuit, "quit": OpQuit, "exit": OpQuit,
	"refresh": OpRefresh, "r": OpRefresh,
	"reload":  OpReloadConfig,
	"ctx":     OpContexts,
	"cluster": OpClusters,
	"user":    OpUsers,
	"ns":      OpSetNamespace,
	"all-ns":  OpAllNamespaces,
	"filter":  OpFilter,
	"clear":   OpClearFilter,
	"logs":    OpLogs,
	"edit":    OpEdit,
	"delete":  OpDelete, "del": OpDelete,
	"restart": OpRestart,
	"scale":   OpScale,
	"exec":    OpExec,
	"shell":   OpShell, "ssh": OpShell, "bash": OpShell,
	"pf": OpPortForward, "port-forward": OpPortForward,
	"close":       OpClosePF,
	"crd":         OpCRDCatalog,
	"crd-refresh": OpCRDRefresh,
	"help":        OpHelp,
	"tab":         OpTabCycle,
	"readonly":    OpReadonly, "ro": OpReadonly,
	"config": OpConfigInfo,
	"alerts": OpAlerts,
	"pulses": OpPulses,
	"xray":   OpXray,
	"copy":   OpCopy,
	"argocd": OpDevOps, "helm": OpDevOps, "tf": OpDevOps, "terraform": OpDevOps,
	"ansible": OpDevOps, "docker": OpDevOps, "rbac": OpDevOps,
	"oc": OpDevOps, "openshift": OpDevOps, "kustomize": OpDevOps,
	"plugin": OpPlugin,
}

// IsBuiltin reports whether a verb is reserved. The config registry uses it
// to reject alias definitions that would shadow a builtin.
func IsBuiltin(verb string) bool {
	_, ok := builtins[strings.ToLower(verb)]
	return ok
}

// BuiltinVerbs returns the builtin vocabulary for autocomplete.
func BuiltinVerbs() []string {
	out := make([]string, 0, len(builtins))
	for v := range builtins {
		out = append(out, v)
	}
	return out
}

// Parser resolves verbs against builtins, user aliases and resource aliases.
type Parser struct {
	userAliases map[string]string
	plugins     map[string]bool
}

// NewParser creates a parser with no user aliases.
func NewParser() *Parser {
	return &Parser{userAliases: map[string]string{}, plugins: map[string]bool{}}
}

// SetAliases replaces the user alias table (from a config snapshot).
func (p *Parser) SetAliases(aliases map[string]string) {
	p.userAliases = map[string]string{}
	for k, v := range aliases {
		p.userAliases[strings.ToLower(k)] = v
	}
}

// SetPlugins replaces the known plugin names.
func (p *Parser) SetPlugins(names []string) {
	p.plugins = map[string]bool{}
	for _, n := range names {
		p.plugins[strings.ToLower(n)] = true
	}
}

// Parse turns a ':' buffer string into a command. The leading prefix has
// already been stripped by the mode interpreter.
func (p *Parser) Parse(input string) (Command, *Error) {
	return p.parse(input, false)
}

// ParseJump parses a '>' buffer string. Jump permits a bare fuzzy name when
// the first token is not a known verb or alias.
func (p *Parser) ParseJump(input string) (Command, *Error) {
	return p.parse(input, true)
}

func (p *Parser) parse(input string, jump bool) (Command, *Error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, Errf(KindMissingArg, "empty command")
	}

	verb := strings.ToLower(fields[0])

	// Builtins win over user aliases; user aliases expand once and the
	// expansion is resolved without further alias lookups, so recursion
	// cannot occur.
	if _, isBuiltin := builtins[verb]; !isBuiltin {
		if expansion, ok := p.userAliases[verb]; ok {
			rest := append(strings.Fields(expansion), fields[1:]...)
			return p.parseResolved(rest, jump)
		}
	}

	return p.parseResolved(fields, jump)
}

func (p *Parser) parseResolved(fields []string, jump bool) (Command, *Error) {
	if len(fields) == 0 {
		return Command{}, Errf(KindMissingArg, "empty command")
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	if op, ok := builtins[verb]; ok {
		return p.parseBuiltin(op, verb, args, jump)
	}
	if kind, ok := kinds.FromToken(verb); ok {
		return parseResourceSwitch(kind, args, jump)
	}
	if p.plugins[verb] {
		return Command{Op: OpPlugin, Tool: verb, Args: args, Jump: jump}, nil
	}
	if jump {
		// Fuzzy name match across the current scope.
		return Command{Op: OpNone, Jump: true, FuzzyQuery: strings.Join(fields, " ")}, nil
	}
	return Command{}, Errf(KindUnknownVerb, "unknown command: %s", verb)
}

func (p *Parser) parseBuiltin(op Op, verb string, args []string, jump bool) (Command, *Error) {
	cmd := Command{Op: op, Jump: jump}
	switch op {
	case OpSetNamespace:
		// ':ns' alone switches to the Namespaces tab.
		if len(args) == 0 {
			return Command{Op: OpSwitchTab, Kind: kinds.Namespaces, Jump: jump}, nil
		}
		cmd.Namespace = args[0]
	case OpFilter:
		if len(args) == 0 {
			return Command{}, Errf(KindMissingArg, "filter: missing query")
		}
		cmd.Filter = strings.Join(args, " ")
	case OpScale:
		if len(args) == 0 {
			return Command{}, Errf(KindMissingArg, "scale: missing replica count")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return Command{}, Errf(KindBadArg, "scale: bad replica count %q", args[0])
		}
		cmd.Replicas = n
	case OpExec:
		if len(args) == 0 {
			return Command{}, Errf(KindMissingArg, "exec: missing command")
		}
		cmd.Args = args
	case OpPortForward:
		if len(args) == 0 {
			return Command{}, Errf(KindMissingArg, "port-forward: missing local:remote ports")
		}
		local, remote, perr := ParsePortPair(args[0])
		if perr != nil {
			return Command{}, perr
		}
		cmd.LocalPort, cmd.RemotePort = local, remote
	case OpClosePF:
		if len(args) > 0 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return Command{}, Errf(KindBadArg, "close: bad port-forward id %q", args[0])
			}
			cmd.PFID = id
		} else {
			cmd.PFID = -1
		}
	case OpReadonly:
		mode := "toggle"
		if len(args) > 0 {
			mode = strings.ToLower(args[0])
		}
		switch mode {
		case "on", "off", "toggle":
			cmd.ReadonlyMode = mode
		default:
			return Command{}, Errf(KindBadArg, "readonly: want on|off|toggle, got %q", args[0])
		}
	case OpDevOps:
		cmd.Tool = verb
		if verb == "terraform" {
			cmd.Tool = "tf"
		}
		if verb == "openshift" {
			cmd.Tool = "oc"
		}
		cmd.Args = args
	case OpPlugin:
		if len(args) == 0 {
			return Command{}, Errf(KindMissingArg, "plugin: missing plugin name")
		}
		cmd.Tool = strings.ToLower(args[0])
		cmd.Args = args[1:]
	case OpShell:
		cmd.Args = args
	case OpLogs:
		if len(args) > 0 {
			cmd.Name = args[0] // container override
		}
	}
	return cmd, nil
}

// parseResourceSwitch handles ':<resource> [filter | ns/name]'.
func parseResourceSwitch(kind kinds.Kind, args []string, jump bool) (Command, *Error) {
	cmd := Command{Op: OpSwitchTab, Kind: kind, Jump: jump}
	if len(args) == 0 {
		return cmd, nil
	}
	if len(args) == 1 && strings.Contains(args[0], "/") {
		ns, name, ok := strings.Cut(args[0], "/")
		if !ok || name == "" {
			return Command{}, Errf(KindBadArg, "bad target %q, want namespace/name", args[0])
		}
		cmd.Namespace, cmd.Name = ns, name
		return cmd, nil
	}
	cmd.Filter = strings.Join(args, " ")
	return cmd, nil
}

// ParsePortPair parses "local:remote" with both ports in 1..65535.
func ParsePortPair(s string) (int, int, *Error) {
	localStr, remoteStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, Errf(KindBadArg, "bad port pair %q, want local:remote", s)
	}
	local, err := strconv.Atoi(localStr)
	if err != nil || local < 1 || local > 65535 {
		return 0, 0, Errf(KindBadArg, "bad local port %q", localStr)
	}
	remote, err := strconv.Atoi(remoteStr)
	if err != nil || remote < 1 || remote > 65535 {
		return 0, 0, Errf(KindBadArg, "bad remote port %q", remoteStr)
	}
	return local, remote, nil
}
