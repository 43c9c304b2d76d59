package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/storyhub/internal/app"
	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/config"
	applog "github.com/vovakirdan/storyhub/internal/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	serve := newServeCmd(flags)

	root := &cobra.Command{
		Use:          "storyhub",
		Short:        "Real-time collaboration hub for children's stories",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newTokenCmd(flags))
	return root
}

func loadConfig(flags *rootFlags, overrides config.Config) (config.Config, error) {
	bootLogger := applog.New(flags.logLevel, "console")
	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return cfg, err
	}
	overrides.LogLevel = flags.logLevel
	cfg.UpdateFrom(overrides)
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket hub and REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}
			logger := applog.New(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting storyhub")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&overrides.StateBackend, "state", "", "state backend (memory, redis)")
	cmd.Flags().StringVar(&overrides.Bus, "bus", "", "fan-out bus (local, redis, nats)")
	return cmd
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		id  auth.Identity
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed development credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, config.Config{})
			if err != nil {
				return err
			}
			if id.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			role, err := auth.ParseRole(string(id.Role))
			if err != nil {
				return fmt.Errorf("--role: %w", err)
			}
			id.Role = role

			token, err := auth.GenerateToken(app.JWTConfig(&cfg, ttl), id)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&id.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar((*string)(&id.Role), "role", string(auth.RoleChild), "role (child, mentor, admin)")
	cmd.Flags().IntVar(&id.Age, "age", 0, "age claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
