package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/srcsec/internal/config"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Global command flags
var (
	configFile string
	logLevel   string
	verbose    bool
)

// loaded by the logging hook before any subcommand runs
var (
	globalConfig *config.GlobalConfig
	flushLogs    = func() {}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := createRootCommand()
	err := root.ExecuteContext(ctx)
	flushLogs()
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand builds the srcsec command tree.
func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "srcsec",
		Short: "rates the supply-chain security of package build recipes",
		Long: `srcsec ingests .SRCINFO build recipes, probes their source URLs for
detached signatures and HTTPS equivalents, and rates every package on hash
strength, signing keys, signature coverage and transport security.

A typical run is: ingest, keys sync, probe, analyze, evaluate.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to the configuration file (default: ./srcsec.yml or ~/.config/srcsec/srcsec.yml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config file)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Shorthand for --log-level debug")

	root.AddCommand(
		createIngestCommand(),
		createKeysCommand(),
		createProbeCommand(),
		createAnalyzeCommand(),
		createEvaluateCommand(),
	)
	attachLoggingHooks(root)
	return root
}

// resolveRequestedLogLevel returns the level asked for on the command line,
// or "" to fall back to the config file.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetBool("verbose"); err == nil && v {
			return "debug"
		}
	}
	return ""
}

// attachLoggingHooks loads the configuration and sets up logging before every
// subcommand.
func attachLoggingHooks(root *cobra.Command) {
	hook := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadGlobalConfig(configFile)
		if err != nil {
			return err
		}
		globalConfig = cfg

		level := resolveRequestedLogLevel(cmd)
		if level == "" {
			level = config.NewConfigHelpers(cfg).LogLevel()
		}
		flush, err := logger.Setup(level)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		flushLogs = flush
		return nil
	}
	for _, sub := range root.Commands() {
		attachHook(sub, hook)
	}
}

func attachHook(cmd *cobra.Command, hook func(*cobra.Command, []string) error) {
	cmd.PersistentPreRunE = hook
	for _, sub := range cmd.Commands() {
		attachHook(sub, hook)
	}
}
