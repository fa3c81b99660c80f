package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"

	"confsh/internal/config"
	"confsh/internal/dispatch"
	"confsh/internal/hooks"
	"confsh/internal/locker"
	"confsh/internal/logging"
	"confsh/internal/protocol/frame"
	"confsh/internal/protocol/wire"
	"confsh/internal/scheme"
	"confsh/internal/session"
	"confsh/internal/source"
	"confsh/internal/textenc"
)

func runShell(ctx context.Context, opts *shellOptions, scripts []string) error {
	logging.ConfigureRuntime("confsh")

	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}
	if opts.background {
		signal.Ignore(syscall.SIGHUP)
	}
	if cfg.ViewID != "" {
		// Action scripts read session variables from the environment.
		os.Setenv(config.EnvViewID, cfg.ViewID)
	}

	var lk locker.Locker = locker.Nop{}
	if !opts.lockless {
		lk = locker.NewFile(cfg.LockPath)
	}
	if err := lk.Acquire(ctx); err != nil {
		return err
	}
	defer lk.Release()

	if cfg.SchemePath == "" {
		return fmt.Errorf("no command scheme: set --scheme-path or %s", config.EnvSchemePath)
	}
	resolver, err := scheme.LoadFile(cfg.SchemePath)
	if err != nil {
		return err
	}

	sess, err := session.Dial(cfg.Socket, session.DefaultConfig())
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.OnNotify(func(n wire.Notify) {
		log.Info().Str("event", n.Event).Str("detail", n.Detail).Msg("daemon notification")
	})
	hello := wire.Hello{
		ClientName:   "confsh",
		Token:        cfg.Token,
		ProtoVersion: uint32(frame.Version),
	}
	if err := sess.Authorize(hello); err != nil {
		return fmt.Errorf("daemon handshake failed: %w", err)
	}

	var hk hooks.Hooks = &hooks.Shell{Sess: sess, Out: os.Stdout, Err: os.Stderr}
	if opts.dryRun {
		hk = hooks.DryRun(hk)
	}

	echo := io.Writer(os.Stdout)
	if opts.quiet {
		echo = io.Discard
	}
	loop := &dispatch.Loop{
		Resolver: resolver,
		Hooks:    hk,
		Echo:     echo,
		Report:   os.Stderr,
		View:     cfg.View,
	}

	enc := textenc.Resolve(cfg.Encoding)
	if len(scripts) > 0 {
		return runScripts(ctx, loop, scripts, enc, opts.stopOnError)
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return runInteractive(ctx, loop, enc)
	}
	st := &source.Stack{}
	st.PushStream(textenc.Reader(os.Stdin, enc), "(stdin)", opts.stopOnError)
	return loop.Run(ctx, st)
}

// buildConfig layers command-line flags over the loaded configuration.
func buildConfig(opts *shellOptions) (config.ShellConfig, error) {
	cfg, err := config.LoadShellConfig(opts.configPath)
	if err != nil {
		return config.ShellConfig{}, err
	}
	if opts.socket != "" {
		cfg.Socket = opts.socket
	}
	if opts.schemePath != "" {
		cfg.SchemePath = opts.schemePath
	}
	if opts.view != "" {
		cfg.View = opts.view
	}
	if opts.viewID != "" {
		cfg.ViewID = opts.viewID
	}
	switch {
	case opts.forceUTF8:
		cfg.Encoding = config.EncodingUTF8
	case opts.force8Bit:
		cfg.Encoding = config.Encoding8Bit
	}
	if err := config.ValidateShellConfig(cfg); err != nil {
		return config.ShellConfig{}, err
	}
	return cfg, nil
}

// decodedFile keeps the underlying file closable after its reader has
// been wrapped by a charset decoder.
type decodedFile struct {
	io.Reader
	io.Closer
}

// runScripts consumes the named files in argument order.
func runScripts(ctx context.Context, loop *dispatch.Loop, scripts []string, enc config.Encoding, stopOnError bool) error {
	st := &source.Stack{}
	for _, path := range scripts {
		if enc == config.EncodingUTF8 {
			if err := st.PushFile(path, stopOnError); err != nil {
				st.Close()
				return err
			}
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			st.Close()
			return fmt.Errorf("%w: %s: %v", source.ErrCannotOpen, path, err)
		}
		st.PushStream(decodedFile{textenc.Reader(f, enc), f}, path, stopOnError)
	}
	return loop.Run(ctx, st)
}

// runInteractive reads from the terminal one line at a time, showing
// the current view in the prompt. Failed commands report and continue;
// only a lost daemon session ends the loop early.
func runInteractive(ctx context.Context, loop *dispatch.Loop, enc config.Encoding) error {
	scanner := bufio.NewScanner(textenc.Reader(os.Stdin, enc))
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(os.Stdout, "%s> ", promptView(loop.View))
		if !scanner.Scan() {
			fmt.Fprintln(os.Stdout)
			return scanner.Err()
		}
		line := scanner.Text()
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		res := loop.Dispatch(ctx, line)
		switch res.Status {
		case dispatch.Fatal:
			fmt.Fprintln(os.Stderr, res.Err)
			return errors.New("daemon session lost")
		case dispatch.Failure:
			fmt.Fprintln(os.Stderr, res.Err)
		}
	}
}

func promptView(view string) string {
	if view == "" {
		return "confsh"
	}
	return "confsh:" + view
}
