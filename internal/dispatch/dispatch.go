// Package dispatch drives the shell's command pipeline: it pulls lines
// off the input source stack, resolves them against the command
// grammar, and runs the access, script and config hooks in order with
// per-source stopping semantics.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"confsh/internal/hooks"
	"confsh/internal/scheme"
	"confsh/internal/session"
	"confsh/internal/source"
)

// Status is the tri-state outcome of one command.
type Status int

const (
	// Success means every stage passed.
	Success Status = iota
	// Failure is recoverable; whether it stops the current source is
	// the source's stop-on-error policy.
	Failure
	// Fatal unconditionally stops the whole run. Only a broken daemon
	// channel produces it: once ordering against the daemon cannot be
	// guaranteed, continuing would apply local-only changes.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one dispatched command line.
type Result struct {
	Status Status
	Err    error
}

var ErrRunFailed = errors.New("dispatch: run failed")

// Loop executes command lines end to end, one at a time.
type Loop struct {
	Resolver scheme.Resolver
	Hooks    hooks.Hooks

	// Echo receives consumed lines; quiet mode points it at
	// io.Discard and changes nothing else.
	Echo io.Writer
	// Report receives user-visible failure diagnostics.
	Report io.Writer

	// View is the current grammar view; successful commands may
	// switch it.
	View string
}

// Dispatch runs one line through resolve -> access -> script -> config.
func (l *Loop) Dispatch(ctx context.Context, line string) Result {
	inv, err := l.Resolver.Resolve(line, l.View)
	if err != nil {
		return Result{Status: Failure, Err: err}
	}
	if err := l.Hooks.Access(ctx, inv); err != nil {
		return Result{Status: Failure, Err: err}
	}
	if err := l.Hooks.Script(ctx, inv); err != nil {
		return Result{Status: Failure, Err: err}
	}
	if err := l.Hooks.Config(ctx, inv); err != nil {
		if errors.Is(err, session.ErrConnectionLost) || errors.Is(err, session.ErrNotConnected) {
			return Result{Status: Fatal, Err: err}
		}
		return Result{Status: Failure, Err: err}
	}
	if inv.Def.NextView != "" {
		l.View = inv.Def.NextView
	}
	return Result{Status: Success}
}

// Run consumes the whole stack. It returns nil when every command
// succeeded and ErrRunFailed (wrapping the first fatal error, if any)
// otherwise; the caller turns that into the process exit disposition.
func (l *Loop) Run(ctx context.Context, st *source.Stack) error {
	echo := l.Echo
	if echo == nil {
		echo = io.Discard
	}
	report := l.Report
	if report == nil {
		report = io.Discard
	}

	ok := true
	var fatalErr error

loop:
	for st.Len() > 0 {
		if ctx.Err() != nil {
			st.Close()
			return fmt.Errorf("%w: %v", ErrRunFailed, ctx.Err())
		}
		src := st.Current()
		line, err := src.ReadLine()
		if errors.Is(err, io.EOF) {
			if popErr := st.Pop(); popErr != nil {
				log.Warn().Str("source", src.Name()).Err(popErr).Msg("close source")
			}
			continue
		}
		if err != nil {
			ok = false
			fmt.Fprintf(report, "%s: read error: %v\n", src.Name(), err)
			_ = st.Pop()
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fmt.Fprintln(echo, line)

		res := l.Dispatch(ctx, trimmed)
		log.Debug().
			Str("source", src.Name()).
			Int("line", src.Line()).
			Str("status", res.Status.String()).
			Msg("command dispatched")

		switch res.Status {
		case Fatal:
			ok = false
			fatalErr = res.Err
			fmt.Fprintf(report, "%s:%d: fatal: %v\n", src.Name(), src.Line(), res.Err)
			st.Close()
			break loop
		case Failure:
			ok = false
			fmt.Fprintf(report, "%s:%d: %v\n", src.Name(), src.Line(), res.Err)
			if src.StopOnError() {
				_ = st.Pop()
			}
		}
	}

	if ok {
		return nil
	}
	if fatalErr != nil {
		return fmt.Errorf("%w: %v", ErrRunFailed, fatalErr)
	}
	return ErrRunFailed
}
