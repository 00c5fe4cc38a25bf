// vectort drives the prompt input and the generation stream from a terminal.
//
// Usage:
//
//	vectort watch <project-id>
//	vectort dictate --continuous
//	vectort config
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vectort/internal/bootstrap"
	"vectort/internal/config"
)

// version is set via ldflags at build time.
var version = "dev"

// Global flags
var (
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "vectort",
	Short: "Voice prompt input and generation progress from the terminal",
	Long: `vectort dictates prompts with streaming speech recognition and follows
project generation progress over server-sent events.

Configuration is read from ~/.config/vectort/config.toml (or
VECTORT_CONFIG_FILE) and overridden by environment variables.

Examples:
  vectort watch 42               # Follow generation of project 42
  vectort dictate                # Dictate one utterance into the prompt
  vectort dictate --continuous   # Keep dictating until Enter or Ctrl-C
  vectort config                 # Print the resolved configuration`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dictateCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadRuntime resolves configuration and a stderr logger honoring the
// global flags.
func loadRuntime() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	return cfg, bootstrap.NewLogger(os.Stderr, level), nil
}
