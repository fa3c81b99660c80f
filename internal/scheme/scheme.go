// Package scheme is the boundary to the externally defined command
// grammar. The dispatch loop consumes only Resolver; the TOML loader
// and the static set exist so the shell and its tests have a concrete
// grammar to resolve against.
package scheme

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("scheme: unknown command")
	ErrSyntax   = errors.New("scheme: syntax error")
)

// ConfigOp is the configuration effect template of a command. Arg
// references $1..$9 and $* are expanded from the invocation arguments.
type ConfigOp struct {
	Op    string `toml:"op"`
	Path  string `toml:"path"`
	Value string `toml:"value"`
}

// CommandDef is one command definition from the loaded grammar.
type CommandDef struct {
	Name       string    `toml:"name"`
	View       string    `toml:"view"`
	NextView   string    `toml:"next_view"`
	Action     string    `toml:"action"`
	Privileged bool      `toml:"privileged"`
	Config     *ConfigOp `toml:"config"`
}

func (d CommandDef) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("scheme: command missing name")
	}
	if d.Config != nil {
		if strings.TrimSpace(d.Config.Op) == "" {
			return fmt.Errorf("scheme: command %q config missing op", d.Name)
		}
		if strings.TrimSpace(d.Config.Path) == "" {
			return fmt.Errorf("scheme: command %q config missing path", d.Name)
		}
	}
	return nil
}

// Invocation is one resolved command line.
type Invocation struct {
	Def  *CommandDef
	Args []string
	Line string
}

// ConfigDelta expands the definition's config template against the
// invocation arguments. Returns ok=false for local-only commands.
func (inv Invocation) ConfigDelta() (op, path, value string, ok bool) {
	if inv.Def == nil || inv.Def.Config == nil {
		return "", "", "", false
	}
	c := inv.Def.Config
	return c.Op, expandArgs(c.Path, inv.Args), expandArgs(c.Value, inv.Args), true
}

// Script expands the action body against the invocation arguments.
func (inv Invocation) Script() string {
	if inv.Def == nil {
		return ""
	}
	return expandArgs(inv.Def.Action, inv.Args)
}

// Resolver resolves one raw line within the current view.
type Resolver interface {
	Resolve(line, view string) (*Invocation, error)
}

// Static is a map-backed resolver over a fixed definition list.
type Static struct {
	defs []CommandDef
}

func NewStatic(defs []CommandDef) (*Static, error) {
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &Static{defs: defs}, nil
}

// Resolve tokenizes the line and matches the longest command name
// visible from the view (global commands have an empty view). The
// words past the matched name become arguments.
func (s *Static) Resolve(line, view string) (*Invocation, error) {
	words, err := SplitLine(line)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSyntax)
	}

	var best *CommandDef
	bestLen := 0
	for i := range s.defs {
		def := &s.defs[i]
		if def.View != "" && def.View != view {
			continue
		}
		nameWords := strings.Fields(def.Name)
		if len(nameWords) > len(words) || len(nameWords) <= bestLen {
			continue
		}
		match := true
		for j, w := range nameWords {
			if words[j] != w {
				match = false
				break
			}
		}
		if match {
			best = def
			bestLen = len(nameWords)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, words[0])
	}
	return &Invocation{Def: best, Args: words[bestLen:], Line: line}, nil
}

// SplitLine splits a command line into words, honoring single and
// double quotes. An unterminated quote is a syntax error.
func SplitLine(line string) ([]string, error) {
	words := make([]string, 0)
	var cur strings.Builder
	inWord := false
	var quote rune
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote", ErrSyntax)
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

func expandArgs(template string, args []string) string {
	if template == "" || !strings.Contains(template, "$") {
		return template
	}
	out := strings.ReplaceAll(template, "$*", strings.Join(args, " "))
	n := len(args)
	if n > 9 {
		n = 9
	}
	for i := n; i >= 1; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i), args[i-1])
	}
	return out
}
