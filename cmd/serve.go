package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/passthru/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: mouse hook, bridge manager and control pipe",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(NewConfigFromFlags(cmd))
	},
}

func init() {
	serveCmd.Flags().Bool("elevate", false, "relaunch as administrator when not elevated")
}

// teardown runs cleanup steps in reverse order of registration, once
type teardown struct {
	log   logger.LoggerInterface
	once  sync.Once
	steps []teardownStep
	err   error
}

type teardownStep struct {
	name string
	fn   func() error
}

func newTeardown(log logger.LoggerInterface) *teardown {
	return &teardown{log: log}
}

// Add registers a step. Steps added later run first.
func (t *teardown) Add(name string, fn func() error) {
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

// Run executes every step even when earlier ones fail and returns the joined errors
func (t *teardown) Run() error {
	t.once.Do(func() {
		var errs []error

		for i := len(t.steps) - 1; i >= 0; i-- {
			step := t.steps[i]
			t.log.Debug("Shutting down", slog.String("component", step.name))

			if err := step.fn(); err != nil {
				t.log.Warn("Shutdown step failed", slog.String("component", step.name), slog.Any("error", err))
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			}
		}

		t.err = errors.Join(errs...)
	})

	return t.err
}
