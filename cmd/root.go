package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/passthru/internal/config"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/version"
)

// RootCmd is the root command for the passthru CLI application.
var RootCmd = &cobra.Command{
	Use:          "passthru",
	Short:        "passthru - Click-through overlays that forward the mouse to the window beneath",
	Version:      version.GetVersion(),
	Args:         cobra.NoArgs,
	RunE:         Execute,
	SilenceUsage: true, // Don't show usage on runtime errors

	// --logs works with every subcommand
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return handleLogsFlag(NewConfigFromFlags(cmd), os.Exit)
	},
}

func init() {
	// Set custom version template to show full version info
	RootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolP("logs", "l", false, "print the current log file to stdout and exit")
	RootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath(), "path to the daemon config file")
	RootCmd.PersistentFlags().StringP("pipe", "p", "", "control pipe name (defaults to the per-user pipe)")

	RootCmd.AddCommand(serveCmd, toggleCmd, statusCmd)
}

// handleLogsFlag processes the --logs flag and exits if needed
func handleLogsFlag(cfg *Config, exitFunc func(int)) error {
	if !cfg.ShowLogs {
		return nil
	}

	if err := logger.PrintLogFile(nil, logger.LoggerOptions{}); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logPath := logger.GetLogPath(logger.LoggerOptions{})
			fmt.Fprintf(os.Stderr, "Log file does not exist: %s\n", logPath)
		} else {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}

		exitFunc(1)
		return nil
	}

	exitFunc(0)
	return nil // Won't actually reach here due to exitFunc
}

// initializeLogger creates a logger and logs startup information
func initializeLogger(cfg *Config) (logger.LoggerInterface, error) {
	log, err := logger.NewLogger(logger.LoggerOptions{
		Verbose:  cfg.Verbose,
		Compress: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// ensureElevatedWithDeps relaunches the process elevated when it is not and
// exits this instance.
func ensureElevatedWithDeps(
	log logger.LoggerInterface,
	isElevated func() bool,
	relaunchAsAdmin func() error,
	exitFunc func(int),
) error {
	log.Debug("Checking elevation status")
	if !isElevated() {
		log.Info("Relaunching as administrator")

		if err := relaunchAsAdmin(); err != nil {
			log.Error("RelaunchAsAdmin failed", slog.Any("error", err))
			return fmt.Errorf("error relaunching as admin: %w", err)
		}

		// Exit this instance, the elevated one will continue
		log.Debug("Relaunched successfully, exiting non-elevated instance")
		log.Close()
		exitFunc(0)
	}

	log.Debug("Running with administrator privileges")
	return nil
}

// recoverPanic logs a panic with its stack. Use it deferred.
func recoverPanic(log logger.LoggerInterface) {
	if r := recover(); r != nil {
		log.Error("PANIC RECOVERED",
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)

		fmt.Fprintf(os.Stderr, "\n*** PANIC: %v ***\n", r)
		fmt.Fprintf(os.Stderr, "Check log file for details\n")
	}
}

// Execute runs the bare root command, which only prints help
func Execute(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}
