// Package overlay applies click-through toggles to local overlay windows and
// wires mouse forwarding to the foreign window underneath.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Norgate-AV/passthru/internal/forward"
	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/inject"
	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/ipc"
	"github.com/Norgate-AV/passthru/internal/logger"
)

// Extended window styles that make a window ignore mouse input
const (
	WS_EX_TRANSPARENT = 0x00000020
	WS_EX_LAYERED     = 0x00080000

	clickThrough = WS_EX_LAYERED | WS_EX_TRANSPARENT
)

// ErrNoWindow is returned when a toggle names no window
var ErrNoWindow = errors.New("no window handle given")

// Dependencies holds the collaborators of a Controller
type Dependencies struct {
	Windows   interfaces.WindowAPI
	Injector  interfaces.Injector
	Listeners *hook.Listeners

	// Stats and Registry feed status responses. Either may be nil.
	Stats    func() hook.Stats
	Registry func() []inject.Registration
}

// Controller executes toggle and status commands
type Controller struct {
	log  logger.LoggerInterface
	deps *Dependencies

	// serialises toggles so the listener slot matches the last request
	mu sync.Mutex
}

// NewController creates a Controller
func NewController(log logger.LoggerInterface, deps *Dependencies) *Controller {
	return &Controller{log: log, deps: deps}
}

// Toggle makes window click-through when ignore is set and restores it
// otherwise. With forward set, mouse moves over window are posted to the
// foreign target beneath it; without it, any forwarding is torn down.
func (c *Controller) Toggle(ctx context.Context, window interfaces.HWND, ignore, forward bool) error {
	if window == 0 {
		return ErrNoWindow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setClickThrough(window, ignore); err != nil {
		c.log.Error("Failed to update window style", slog.String("window", hex(window)), slog.Any("error", err))
		return err
	}

	if forward {
		return c.startForwarding(ctx, window)
	}

	return c.stopForwarding(ctx, window)
}

func (c *Controller) setClickThrough(window interfaces.HWND, ignore bool) error {
	style, err := c.deps.Windows.GetExStyle(window)
	if err != nil {
		return fmt.Errorf("read extended style of %#x: %w", window, err)
	}

	next := style &^ clickThrough
	if ignore {
		next = style | clickThrough
	}

	if next == style {
		return nil
	}

	if err := c.deps.Windows.SetExStyle(window, next); err != nil {
		return fmt.Errorf("set extended style of %#x: %w", window, err)
	}

	c.log.Debug("Window style updated",
		slog.String("window", hex(window)),
		slog.Bool("ignore", ignore),
		slog.String("style", fmt.Sprintf("%#08x", next)),
	)

	return nil
}

func (c *Controller) startForwarding(ctx context.Context, window interfaces.HWND) error {
	if err := c.deps.Injector.Install(ctx, window); err != nil {
		c.log.Error("Failed to install bridge", slog.String("window", hex(window)), slog.Any("error", err))
		return err
	}

	target, err := c.deps.Injector.ResolveTarget(window)
	if err != nil {
		c.log.Error("Failed to resolve forwarding target", slog.String("window", hex(window)), slog.Any("error", err))
		return err
	}

	listener := forward.NewListener(c.log, c.deps.Windows, target)
	c.deps.Listeners.Register(hook.EventMouseMove, listener.Handle)

	c.log.Info("Forwarding enabled", slog.String("window", hex(window)), slog.String("target", hex(target)))
	return nil
}

func (c *Controller) stopForwarding(ctx context.Context, window interfaces.HWND) error {
	c.deps.Listeners.Unregister(hook.EventMouseMove)

	if err := c.deps.Injector.Remove(ctx, window); err != nil {
		c.log.Error("Failed to remove bridge", slog.String("window", hex(window)), slog.Any("error", err))
		return err
	}

	c.log.Info("Forwarding disabled", slog.String("window", hex(window)))
	return nil
}

// Execute implements ipc.Handler
func (c *Controller) Execute(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandToggle:
		if err := c.Toggle(ctx, interfaces.HWND(req.Window), req.Ignore, req.Forward); err != nil {
			return ipc.Failure(req, err)
		}

		return c.status(req)
	case ipc.CommandStatus:
		return c.status(req)
	default:
		return ipc.Failure(req, fmt.Errorf("unknown command %q", req.Command))
	}
}

func (c *Controller) status(req ipc.Request) ipc.Response {
	resp := ipc.Response{ID: req.ID, OK: true}

	if c.deps.Registry != nil {
		for _, reg := range c.deps.Registry() {
			resp.Registrations = append(resp.Registrations, ipc.Registration{
				Window: uint64(reg.Window),
				Target: uint64(reg.Target),
				Pid:    reg.Pid,
			})
		}
	}

	if c.deps.Stats != nil {
		stats := c.deps.Stats()
		resp.Delivered = stats.Delivered
		resp.Dropped = stats.Dropped
	}

	return resp
}

func hex(v uintptr) string {
	return fmt.Sprintf("%#x", v)
}
