// Package cmd implements the agent's command-line surface: cobra commands
// wired over internal/config, internal/devicefile, internal/agent, and
// internal/httpapi. Grounded on the teacher's internal/cmd package
// (gt's own command tree): each subcommand lives in its own file, defines a
// package-level *cobra.Command, and registers itself on rootCmd from init.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "mtagent",
	Short: "MTConnect agent: adapter connectors, ring buffer, and HTTP service",
	Long: `mtagent runs an MTConnect Agent process: it connects to one or more
SHDR adapters, maintains the observation ring buffer and asset store, and
serves the probe/current/sample/asset HTTP surface.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "agent.toml", "path to the agent TOML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured logs as JSON instead of text")
}

// Execute runs the root command; cmd/agent's main.go is a thin wrapper
// around this.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process-wide *slog.Logger from the --log-level/
// --log-json flags. Every subsystem takes this logger by injection — there
// is no package-level default logger anywhere in internal/.
func newLogger() (*slog.Logger, error) {
	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
