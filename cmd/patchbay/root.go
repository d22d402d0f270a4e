package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/patchbay/internal/logging"
	"github.com/aretw0/patchbay/pkg/config"
	"github.com/spf13/cobra"
)

// defaultConfigFile is read when --config is not given and it exists.
const defaultConfigFile = "patchbay.yaml"

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "patchbay",
	Short: "Patchbay is a real-time audio and MIDI graph host",
	Long: `Patchbay hosts a graph of audio and MIDI processing nodes.
Patches are edited live over HTTP or MCP while the engine keeps rendering.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			if _, err := os.Stat(defaultConfigFile); err == nil {
				path = defaultConfigFile
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.NewWriter(os.Stderr, level, loaded.Log.JSON)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError ends the process with code after the command already reported
// the problem.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./"+defaultConfigFile+" if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.SilenceErrors = true
}
