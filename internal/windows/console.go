//go:build windows

package windows

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

// Console control event types
const (
	CTRL_C_EVENT        = 0
	CTRL_BREAK_EVENT    = 1
	CTRL_CLOSE_EVENT    = 2
	CTRL_LOGOFF_EVENT   = 5
	CTRL_SHUTDOWN_EVENT = 6
)

var (
	consoleShutdown atomic.Pointer[func(event string)]
	consoleOnce     sync.Once
	consoleErr      error
)

// HandleConsoleEvents calls shutdown for console close, logoff and system
// shutdown. The OS ends the process as soon as the handler returns from
// those events, so shutdown runs to completion on the handler thread.
// Ctrl+C and Ctrl+Break are left to os/signal. A later call replaces the
// callback.
func HandleConsoleEvents(shutdown func(event string)) error {
	consoleShutdown.Store(&shutdown)

	consoleOnce.Do(func() {
		ret, _, err := procSetConsoleCtrl.Call(windows.NewCallback(consoleCtrlHandler), 1)
		if ret == 0 {
			consoleErr = callErr("SetConsoleCtrlHandler", err)
		}
	})

	return consoleErr
}

// consoleCtrlHandler is the HandlerRoutine passed to SetConsoleCtrlHandler
func consoleCtrlHandler(ctrlType uint32) uintptr {
	if ctrlType == CTRL_C_EVENT || ctrlType == CTRL_BREAK_EVENT {
		return 0
	}

	fn := consoleShutdown.Load()
	if fn == nil || *fn == nil {
		return 0 // FALSE - let default handler process it
	}

	(*fn)(GetCtrlTypeName(ctrlType))
	return 1
}

// GetCtrlTypeName returns a human-readable name for a control event type
func GetCtrlTypeName(ctrlType uint32) string {
	switch ctrlType {
	case CTRL_C_EVENT:
		return "CTRL_C"
	case CTRL_BREAK_EVENT:
		return "CTRL_BREAK"
	case CTRL_CLOSE_EVENT:
		return "CTRL_CLOSE"
	case CTRL_LOGOFF_EVENT:
		return "CTRL_LOGOFF"
	case CTRL_SHUTDOWN_EVENT:
		return "CTRL_SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}
