// Package hooks defines the pluggable access/script/config callbacks
// invoked per command by the dispatch loop.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"confsh/internal/protocol/wire"
	"confsh/internal/scheme"
	"confsh/internal/session"
)

var (
	ErrAccessDenied   = errors.New("hooks: access denied")
	ErrConfigRejected = errors.New("hooks: config rejected by daemon")
)

// ScriptError reports a failed script stage with its exit status.
type ScriptError struct {
	ExitCode int
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("hooks: script failed with exit code %d: %v", e.ExitCode, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Hooks is the per-command callback contract. Every stage returning
// nil means success; a missing capability is expressed by embedding
// Base, whose stages are no-op successes.
type Hooks interface {
	Access(ctx context.Context, inv *scheme.Invocation) error
	Script(ctx context.Context, inv *scheme.Invocation) error
	Config(ctx context.Context, inv *scheme.Invocation) error
}

// Base implements every stage as a no-op success.
type Base struct{}

func (Base) Access(context.Context, *scheme.Invocation) error { return nil }
func (Base) Script(context.Context, *scheme.Invocation) error { return nil }
func (Base) Config(context.Context, *scheme.Invocation) error { return nil }

// Shell is the production hook set: privilege-checked access, action
// bodies run through /bin/sh, and config deltas committed through the
// daemon session.
type Shell struct {
	Sess *session.Session
	Out  io.Writer
	Err  io.Writer
}

func (h *Shell) Access(_ context.Context, inv *scheme.Invocation) error {
	if inv.Def != nil && inv.Def.Privileged && os.Geteuid() != 0 {
		return fmt.Errorf("%w: %s requires root", ErrAccessDenied, inv.Def.Name)
	}
	return nil
}

func (h *Shell) Script(ctx context.Context, inv *scheme.Invocation) error {
	body := inv.Script()
	if body == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", body)
	cmd.Stdout = h.Out
	cmd.Stderr = h.Err
	if err := cmd.Run(); err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ScriptError{ExitCode: exitCode, Err: err}
	}
	return nil
}

func (h *Shell) Config(_ context.Context, inv *scheme.Invocation) error {
	op, path, value, ok := inv.ConfigDelta()
	if !ok {
		return nil
	}
	view := ""
	if inv.Def != nil {
		view = inv.Def.View
	}
	ack, err := h.Sess.Commit(wire.Delta{Op: op, Path: path, Value: value, View: view})
	if err != nil {
		return err
	}
	if !ack.Accepted() {
		return fmt.Errorf("%w: code=%d %s", ErrConfigRejected, ack.Code, ack.Message)
	}
	return nil
}

// dryRun suppresses the side-effecting stages while leaving access
// checks intact, so a run still validates syntax and permissions but
// mutates nothing locally or in the daemon.
type dryRun struct {
	inner Hooks
}

// DryRun wraps hooks for dry-run mode. Selected once before the loop
// starts; there is no runtime toggling.
func DryRun(inner Hooks) Hooks {
	return &dryRun{inner: inner}
}

func (d *dryRun) Access(ctx context.Context, inv *scheme.Invocation) error {
	return d.inner.Access(ctx, inv)
}

func (d *dryRun) Script(context.Context, *scheme.Invocation) error { return nil }

func (d *dryRun) Config(context.Context, *scheme.Invocation) error { return nil }
