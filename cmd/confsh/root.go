package main

import (
	"errors"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

type shellOptions struct {
	configPath  string
	socket      string
	schemePath  string
	view        string
	viewID      string
	lockless    bool
	stopOnError bool
	dryRun      bool
	background  bool
	quiet       bool
	forceUTF8   bool
	force8Bit   bool
}

func newRootCommand() *cobra.Command {
	opts := &shellOptions{}

	rootCmd := &cobra.Command{
		Use:           "confsh [flags] [script-file ...]",
		Short:         "Interactive configuration shell for confd",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.forceUTF8 && opts.force8Bit {
				return errors.New("--utf8 and --8bit are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), opts, args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	flags.StringVarP(&opts.socket, "socket", "s", "", "Path to the confd daemon socket")
	flags.StringVarP(&opts.schemePath, "scheme-path", "x", "", "Path to the command scheme file")
	flags.StringVarP(&opts.view, "view", "w", "", "Initial command view")
	flags.StringVarP(&opts.viewID, "viewid", "i", "", "Session variables exported to action scripts")
	flags.BoolVarP(&opts.lockless, "lockless", "l", false, "Skip the shell lock file")
	flags.BoolVarP(&opts.stopOnError, "stop-on-error", "e", false, "Abandon a script file on the first failed command")
	flags.BoolVarP(&opts.dryRun, "dry-run", "d", false, "Resolve and access-check commands without executing them")
	flags.BoolVarP(&opts.background, "background", "b", false, "Keep running after terminal hangup")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not echo consumed command lines")
	flags.BoolVarP(&opts.forceUTF8, "utf8", "u", false, "Force UTF-8 input decoding")
	flags.BoolVarP(&opts.force8Bit, "8bit", "8", false, "Force 8-bit (Latin-1) input decoding")

	return rootCmd
}
