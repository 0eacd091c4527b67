//go:build windows

package windows

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
)

// windowManager implements the WindowAPI interface
type windowManager struct {
	log logger.LoggerInterface
}

// newWindowManager creates a new window manager
func newWindowManager(log logger.LoggerInterface) *windowManager {
	return &windowManager{log: log}
}

// GetChild returns the first child of hwnd, 0 when it has none
func (w *windowManager) GetChild(hwnd interfaces.HWND) (interfaces.HWND, error) {
	child, _, err := procGetWindow.Call(hwnd, GW_CHILD)
	if child == 0 && err != nil && err != windows.ERROR_SUCCESS {
		return 0, fmt.Errorf("GetWindow(%#x, GW_CHILD): %w", hwnd, err)
	}

	return child, nil
}

// WindowProcessID returns the id of the process that created hwnd
func (w *windowManager) WindowProcessID(hwnd interfaces.HWND) (uint32, error) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(hwnd), &pid); err != nil {
		return 0, fmt.Errorf("GetWindowThreadProcessId(%#x): %w", hwnd, err)
	}

	if pid == 0 {
		return 0, fmt.Errorf("GetWindowThreadProcessId(%#x): no owning process", hwnd)
	}

	return pid, nil
}

func (w *windowManager) GetExStyle(hwnd interfaces.HWND) (uint32, error) {
	style, _, err := procGetWindowLongPtrW.Call(hwnd, longPtrIndex(GWL_EXSTYLE))
	if style == 0 && err != nil && err != windows.ERROR_SUCCESS {
		return 0, fmt.Errorf("GetWindowLongPtr(%#x, GWL_EXSTYLE): %w", hwnd, err)
	}

	return uint32(style), nil
}

func (w *windowManager) SetExStyle(hwnd interfaces.HWND, style uint32) error {
	prev, _, err := procSetWindowLongPtrW.Call(hwnd, longPtrIndex(GWL_EXSTYLE), uintptr(style))
	if prev == 0 && err != nil && err != windows.ERROR_SUCCESS {
		return fmt.Errorf("SetWindowLongPtr(%#x, GWL_EXSTYLE): %w", hwnd, err)
	}

	w.log.Trace("Extended style set",
		slog.String("hwnd", fmt.Sprintf("%#x", hwnd)),
		slog.String("previous", fmt.Sprintf("%#08x", prev)),
		slog.String("style", fmt.Sprintf("%#08x", style)),
	)

	return nil
}

func (w *windowManager) ScreenToClient(hwnd interfaces.HWND, p interfaces.Point) (interfaces.Point, error) {
	pt := POINT{X: p.X, Y: p.Y}

	ret, _, err := procScreenToClient.Call(hwnd, uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return interfaces.Point{}, fmt.Errorf("ScreenToClient(%#x): %w", hwnd, callErr("ScreenToClient", err))
	}

	return interfaces.Point{X: pt.X, Y: pt.Y}, nil
}

func (w *windowManager) GetClientRect(hwnd interfaces.HWND) (interfaces.Rect, error) {
	var rc RECT

	ret, _, err := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&rc)))
	if ret == 0 {
		return interfaces.Rect{}, fmt.Errorf("GetClientRect(%#x): %w", hwnd, callErr("GetClientRect", err))
	}

	return interfaces.Rect{Left: rc.Left, Top: rc.Top, Right: rc.Right, Bottom: rc.Bottom}, nil
}

func (w *windowManager) PostMessage(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) error {
	ret, _, err := procPostMessageW.Call(hwnd, uintptr(msg), wParam, lParam)
	if ret == 0 {
		return fmt.Errorf("PostMessage(%#x, %#04x): %w", hwnd, msg, callErr("PostMessageW", err))
	}

	return nil
}

// WindowProcs implements the WindowProcAPI interface. It holds no state and
// needs no logger, so it is also used inside the companion module.
type WindowProcs struct{}

var _ interfaces.WindowProcAPI = WindowProcs{}

// GetWindowProc returns the GWLP_WNDPROC of hwnd, 0 when it cannot be read
func (WindowProcs) GetWindowProc(hwnd interfaces.HWND) uintptr {
	proc, _, _ := procGetWindowLongPtrW.Call(hwnd, longPtrIndex(GWLP_WNDPROC))
	return proc
}

// SetWindowProc replaces the GWLP_WNDPROC of hwnd and returns the previous one
func (WindowProcs) SetWindowProc(hwnd interfaces.HWND, proc uintptr) uintptr {
	prev, _, _ := procSetWindowLongPtrW.Call(hwnd, longPtrIndex(GWLP_WNDPROC), proc)
	return prev
}

func (WindowProcs) CallWindowProc(proc uintptr, hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallWindowProcW.Call(proc, hwnd, uintptr(msg), wParam, lParam)
	return ret
}

func (WindowProcs) DefWindowProc(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

// NewWindowProc wraps fn as a window procedure the OS can call. Each call
// consumes one of the process's limited callback slots.
func NewWindowProc(fn func(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr) uintptr {
	return windows.NewCallback(fn)
}
