//go:build windows

package windows

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// MouseHandler receives low-level mouse events on the hook thread
type MouseHandler func(code int32, msg uint32, info interfaces.MouseInfo)

var (
	// The OS calls the hook procedure without a user argument, so the
	// running hook is published here. Only one hook runs per process.
	activeHook atomic.Pointer[MouseHook]

	mouseCallbackOnce sync.Once
	mouseCallback     uintptr
)

// MouseHook runs a WH_MOUSE_LL hook on a dedicated, locked OS thread with
// its own message loop.
type MouseHook struct {
	log logger.LoggerInterface

	mu       sync.Mutex
	handler  MouseHandler
	threadID uint32
	done     chan struct{}
}

var _ interfaces.MouseHook = (*MouseHook)(nil)

// NewMouseHook creates a stopped hook
func NewMouseHook(log logger.LoggerInterface) *MouseHook {
	return &MouseHook{log: log}
}

// Start installs the hook and returns once the hook thread is pumping messages
func (h *MouseHook) Start(handler func(code int32, msg uint32, info interfaces.MouseInfo)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return errors.New("mouse hook already running")
	}

	if !activeHook.CompareAndSwap(nil, h) {
		return errors.New("another mouse hook is running in this process")
	}

	mouseCallbackOnce.Do(func() {
		mouseCallback = windows.NewCallback(mouseProc)
	})

	h.handler = handler
	ready := make(chan error, 1)
	done := make(chan struct{})

	go h.run(ready, done)

	select {
	case err := <-ready:
		if err != nil {
			<-done
			activeHook.CompareAndSwap(h, nil)
			return err
		}
	case <-time.After(timeouts.HookStartTimeout):
		activeHook.CompareAndSwap(h, nil)
		return fmt.Errorf("mouse hook did not start within %s", timeouts.HookStartTimeout)
	}

	h.done = done
	h.log.Debug("Mouse hook started", slog.Uint64("threadID", uint64(h.threadID)))

	return nil
}

// run owns the hook for its whole life: install, pump, uninstall
func (h *MouseHook) run(ready chan<- error, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	h.threadID = windows.GetCurrentThreadId()

	// Create the thread message queue before anyone can post WM_QUIT to it
	var msg MSG
	_, _, _ = procPeekMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, WM_USER, WM_USER, PM_NOREMOVE)

	hook, _, err := procSetWindowsHookExW.Call(WH_MOUSE_LL, mouseCallback, 0, 0)
	if hook == 0 {
		ready <- fmt.Errorf("SetWindowsHookEx(WH_MOUSE_LL): %w", callErr("SetWindowsHookExW", err))
		return
	}

	defer func() {
		if ret, _, err := procUnhookWindowsHook.Call(hook); ret == 0 {
			h.log.Warn("UnhookWindowsHookEx failed", slog.Any("error", err))
		}
	}()

	ready <- nil

	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)

		// 0 is WM_QUIT, -1 is an error
		if ret == 0 || ret == ^uintptr(0) {
			break
		}
	}

	h.log.Trace("Mouse hook thread leaving message loop")
}

// Stop posts WM_QUIT to the hook thread and waits for the hook to be removed
func (h *MouseHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done == nil {
		return nil
	}

	done := h.done
	h.done = nil
	defer activeHook.CompareAndSwap(h, nil)

	ret, _, err := procPostThreadMessageW.Call(uintptr(h.threadID), WM_QUIT, 0, 0)
	if ret == 0 {
		return fmt.Errorf("PostThreadMessage(WM_QUIT): %w", callErr("PostThreadMessageW", err))
	}

	select {
	case <-done:
		h.log.Debug("Mouse hook stopped")
		return nil
	case <-time.After(timeouts.HookStopTimeout):
		return fmt.Errorf("mouse hook thread did not exit within %s", timeouts.HookStopTimeout)
	}
}

// mouseProc is the WH_MOUSE_LL hook procedure. It must return quickly and
// always passes the event on.
func mouseProc(nCode int, wParam, lParam uintptr) uintptr {
	if nCode >= 0 && lParam != 0 {
		if h := activeHook.Load(); h != nil && h.handler != nil {
			info := (*MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
			h.handler(int32(nCode), uint32(wParam), interfaces.MouseInfo{
				Point: interfaces.Point{X: info.Pt.X, Y: info.Pt.Y},
				Flags: info.Flags,
				Time:  info.Time,
			})
		}
	}

	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
