package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"confsh/internal/config"
	"confsh/internal/daemon"
	"confsh/internal/logging"
)

const version = "0.1.0"

func newRootCommand() *cobra.Command {
	var configPath string
	var socket string
	var token string

	rootCmd := &cobra.Command{
		Use:           "confd",
		Short:         "Configuration daemon serving confsh sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDaemonConfig(configPath)
			if err != nil {
				return err
			}
			if socket != "" {
				cfg.Socket = socket
			}
			if token != "" {
				cfg.Token = token
			}
			if err := config.ValidateDaemonConfig(cfg); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Configuration file path")
	flags.StringVarP(&socket, "socket", "s", "", "Path of the unix socket to listen on")
	flags.StringVarP(&token, "token", "t", "", "Shared token clients must present")

	return rootCmd
}

func runDaemon(ctx context.Context, cfg config.DaemonConfig) error {
	logging.ConfigureRuntime("confd")

	srv, err := daemon.NewServer(ctx, cfg, daemon.NewStore())
	if err != nil {
		return err
	}
	srv.Serve()
	log.Info().Str("socket", cfg.Socket).Msg("confd running")

	<-ctx.Done()
	log.Info().Msg("confd shutting down")
	return srv.Close()
}
