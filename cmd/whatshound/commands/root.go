// Package commands implements the WhatsHound CLI commands using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"whatshound/pkg/whatshound/config"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whatshound",
		Short: "WhatsHound - WhatsApp assistant with code search",
		Long: `WhatsHound is a WhatsApp chat assistant with reminders, math,
and codebase search powered by a ChunkHound engine.

Examples:
  whatshound serve
  whatshound chat "remind me to call mom"
  whatshound stats
  whatshound health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newStatsCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves the config path from the flag or the standard
// locations and loads it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	return config.Load(path)
}

// newLogger builds the process logger from config and the verbose flag.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	switch {
	case verbose, cfg.Log.Level == "debug":
		level = slog.LevelDebug
	case cfg.Log.Level == "warn":
		level = slog.LevelWarn
	case cfg.Log.Level == "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
