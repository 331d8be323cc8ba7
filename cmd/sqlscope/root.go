package main

import (
	"context"
	"fmt"

	"github.com/koustreak/sqlscope/internal/config"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/koustreak/sqlscope/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sqlscope",
		Short:         "Query, inspect and export SQLite databases, locally or over MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("env-file", "", "path to a .env file (default: .env if present)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	flags.String("db", "", "SQLite database to connect at startup")
	flags.String("policy", "", "statement policy (select_only, denylist)")

	rootCmd.AddCommand(
		newServeCmd(),
		newTablesCmd(),
		newSchemaCmd(),
		newQueryCmd(),
		newExportCmd(),
		newStatsCmd(),
		newSeedCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlscope %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig reads the config sources and applies the persistent flags
// on top of them.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every explicitly set flag into cfg and revalidates.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	overrides := map[string]*string{
		"log-level":   &cfg.Log.Level,
		"log-format":  &cfg.Log.Format,
		"db":          &cfg.Database.Path,
		"policy":      &cfg.Database.Policy,
		"transport":   &cfg.Server.Transport,
		"listen-addr": &cfg.Server.ListenAddr,
		"export-dir":  &cfg.Export.Dir,
	}
	for name, dst := range overrides {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	return cfg.Validate()
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.LoggerConfig())
}

// openService loads the configuration and builds a service. Commands that
// read a database require one to be connected.
func openService(ctx context.Context, cmd *cobra.Command, needDB bool) (*service.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if needDB && cfg.Database.Path == "" {
		return nil, fmt.Errorf("no database given: pass --db or set %sDB_PATH", config.EnvPrefix)
	}
	return service.Build(ctx, cfg, newLogger(cfg))
}
