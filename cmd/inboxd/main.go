package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/inboxd/cmd/inboxd/modules"
	"github.com/memohai/inboxd/db"
	"github.com/memohai/inboxd/internal/config"
	internaldb "github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/logger"
	"github.com/memohai/inboxd/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "inboxd",
	Short: "WhatsApp customer-service inbox server",
	Long: `inboxd receives WhatsApp Cloud API webhooks, groups conversations into tickets
and serves the agent inbox API with a live event stream.

Examples:
  inboxd serve --config config.toml   # Run the HTTP server
  inboxd migrate up                   # Apply database migrations
  inboxd version                      # Print build information`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		newApp(configPath).Run()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|version|force N>",
	Short: "Apply or inspect database migrations",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Format)
		migrations, err := db.Migrations()
		if err != nil {
			return err
		}
		return internaldb.RunMigrate(logger.Component(logger.L, "migrate"), cfg.Postgres, migrations, args[0], args[1:])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inboxd %s\n", version.Get().String())
	},
}

func newApp(path string) *fx.App {
	return fx.New(
		fx.Supply(modules.ConfigPath(path)),
		modules.InfraModule,
		modules.DomainModule,
		modules.HandlersModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func main() {
	defaultConfig := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to config.toml")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
