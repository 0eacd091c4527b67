// Package forward posts hook events into a target window when the cursor
// is over its client area.
package forward

import (
	"fmt"
	"log/slog"

	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
)

// Listener forwards mouse moves to one target window
type Listener struct {
	log    logger.LoggerInterface
	api    interfaces.WindowAPI
	target interfaces.HWND
}

// NewListener creates a listener for target
func NewListener(log logger.LoggerInterface, api interfaces.WindowAPI, target interfaces.HWND) *Listener {
	return &Listener{
		log:    log,
		api:    api,
		target: target,
	}
}

// Target returns the window events are posted to
func (l *Listener) Target() interfaces.HWND {
	return l.target
}

// Handle posts ev to the target as WM_MOUSEMOVE in client coordinates.
// Points outside the client rectangle are dropped.
func (l *Listener) Handle(ev hook.Event) {
	pt, err := l.api.ScreenToClient(l.target, ev.Point)
	if err != nil {
		l.log.Debug("ScreenToClient failed, dropping event", slog.String("target", hex(l.target)), slog.Any("error", err))
		return
	}

	rect, err := l.api.GetClientRect(l.target)
	if err != nil {
		l.log.Debug("GetClientRect failed, dropping event", slog.String("target", hex(l.target)), slog.Any("error", err))
		return
	}

	if !rect.Contains(pt) {
		return
	}

	if err := l.api.PostMessage(l.target, hook.WM_MOUSEMOVE, 0, MakeLParam(pt.X, pt.Y)); err != nil {
		l.log.Debug("PostMessage failed, dropping event", slog.String("target", hex(l.target)), slog.Any("error", err))
		return
	}

	l.log.Trace("Forwarded mouse move", slog.Int("x", int(pt.X)), slog.Int("y", int(pt.Y)))
}

// MakeLParam packs x into the low word and y into the high word, each
// truncated to 16 bits.
func MakeLParam(x, y int32) uintptr {
	return uintptr(uint16(y))<<16 | uintptr(uint16(x))
}

func hex(v uintptr) string {
	return fmt.Sprintf("%#x", v)
}
