//go:build windows

// Command companion is the module loaded into the process that owns a
// forwarded window. Build it with -buildmode=c-shared. Both exports are
// remote thread entry points: the single argument points at the window
// handle written by the daemon and the thread exit code is the result.
package main

import "C"

import (
	"unsafe"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/subclass"
	"github.com/Norgate-AV/passthru/internal/windows"
)

var bridge *subclass.Bridge

func init() {
	bridge = subclass.New(windows.WindowProcs{}, windows.NewWindowProc(wndProc))
}

func wndProc(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	return bridge.WndProc(hwnd, msg, wParam, lParam)
}

//export install_subclass
func install_subclass(param uintptr) uint32 {
	return bridge.Install(readHWND(param))
}

//export remove_subclass
func remove_subclass(param uintptr) uint32 {
	return bridge.Remove(readHWND(param))
}

// readHWND dereferences the argument block the daemon wrote into this process
func readHWND(param uintptr) interfaces.HWND {
	if param == 0 {
		return 0
	}

	return *(*interfaces.HWND)(unsafe.Pointer(param))
}

func main() {}
