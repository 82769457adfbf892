package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "drivewatch.yaml"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	server     string
	apiKey     string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "drivewatch",
		Short: "Predictive maintenance alerts for vehicle components",
		Long: `drivewatch turns component failure probabilities into ranked alerts and
delivers them to the driver over push, SMS and email, respecting cooldowns,
quiet hours and snoozes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "path to config file")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&g.server, "server", "http://localhost:8080", "base URL of a running drivewatch for client commands")
	pf.StringVar(&g.apiKey, "api-key", os.Getenv("DRIVEWATCH_API_KEY"), "API key sent by client commands")

	root.AddCommand(
		newRunCmd(g),
		newStatusCmd(g),
		newSnoozeCmd(g),
		newHistoryCmd(g),
		newConfigCmd(g),
		newDevicesCmd(g),
	)
	return root
}

// setupLogging installs the JSON slog handler as the process default.
func setupLogging(level string) error {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return nil
}
