// Package subclass implements the window-procedure bridge that runs inside
// the process owning the target window.
package subclass

import (
	"sync"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// StatusNoWndProc is returned by Install when the window procedure cannot be read
const StatusNoWndProc uint32 = 102

// WM_MOUSELEAVE is swallowed by the bridge so the target keeps tracking a
// cursor that is physically over the overlay.
const WM_MOUSELEAVE = 0x02A3

// Bridge holds the single saved window procedure of its process
type Bridge struct {
	procs interfaces.WindowProcAPI
	self  uintptr

	mu    sync.RWMutex
	saved uintptr
}

// New creates a bridge. self is the address the OS calls for the bridge
// procedure, normally a callback wrapping WndProc.
func New(procs interfaces.WindowProcAPI, self uintptr) *Bridge {
	return &Bridge{procs: procs, self: self}
}

// Install replaces the window procedure of hwnd with the bridge and returns
// the previous procedure truncated to 32 bits, or StatusNoWndProc.
// Installing over a window that already runs the bridge keeps the saved slot.
func (b *Bridge) Install(hwnd interfaces.HWND) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.procs.GetWindowProc(hwnd)
	if current == 0 {
		return StatusNoWndProc
	}

	if current == b.self {
		return uint32(current)
	}

	b.saved = current
	prev := b.procs.SetWindowProc(hwnd, b.self)

	return uint32(prev)
}

// Remove restores the saved procedure of hwnd. An empty slot returns 0.
func (b *Bridge) Remove(hwnd interfaces.HWND) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.saved == 0 {
		return 0
	}

	prev := b.procs.SetWindowProc(hwnd, b.saved)
	b.saved = 0

	return uint32(prev)
}

// Saved returns the procedure the bridge forwards to, 0 if none
func (b *Bridge) Saved() uintptr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saved
}

// WndProc is the bridge window procedure
func (b *Bridge) WndProc(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	if msg == WM_MOUSELEAVE {
		return 0
	}

	if saved := b.Saved(); saved != 0 {
		return b.procs.CallWindowProc(saved, hwnd, msg, wParam, lParam)
	}

	return b.procs.DefWindowProc(hwnd, msg, wParam, lParam)
}
