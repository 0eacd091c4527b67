// Package interfaces defines core interfaces for dependency injection and testing.
//
// The Win32 implementations live in internal/windows; the instrumented fakes
// used by tests live in internal/testutil.
package interfaces

import (
	"context"
	"errors"
	"time"
)

// HWND identifies an OS window, local or foreign. It is never owned.
type HWND = uintptr

// Handle is an opaque kernel object handle (process, thread, module).
type Handle = uintptr

// Page protection values accepted by ProcessAPI.VirtualAllocEx
const (
	PageReadWrite        = 0x04
	PageExecuteReadWrite = 0x40
)

// ErrWaitTimeout is returned by ProcessAPI.WaitForThread when the thread
// did not finish within the given timeout.
var ErrWaitTimeout = errors.New("wait timed out")

// Point is a screen or client coordinate pair.
type Point struct {
	X int32
	Y int32
}

// Rect mirrors the Win32 RECT.
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Contains reports whether p lies inside r using the PtInRect rule:
// left and top edges are inside, right and bottom edges are outside.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// Module is one module loaded in a process.
type Module struct {
	Base uintptr
	Name string // base name, e.g. "kernel32.dll"
}

// MouseInfo is the part of MSLLHOOKSTRUCT that survives the hook callback.
type MouseInfo struct {
	Point Point
	Flags uint32
	Time  uint32
}

// ProcessAPI covers foreign process handles, foreign memory and remote threads
type ProcessAPI interface {
	OpenProcess(pid uint32) (Handle, error)
	CloseHandle(h Handle) error
	VirtualAllocEx(process Handle, size uintptr, protect uint32) (uintptr, error)
	WriteProcessMemory(process Handle, addr uintptr, data []byte) error
	VirtualFreeEx(process Handle, addr uintptr) error
	CreateRemoteThread(process Handle, start, param uintptr) (Handle, error)
	WaitForThread(thread Handle, timeout time.Duration) error
	GetExitCodeThread(thread Handle) (uint32, error)
}

// ModuleAPI covers module enumeration and local symbol resolution
type ModuleAPI interface {
	EnumProcessModules(process Handle) ([]Module, error)
	LoadLibraryAddress() (uintptr, error)
	LoadLocal(path string) (Handle, error)
	ProcAddress(module Handle, symbol string) (uintptr, error)
	FreeLocal(module Handle) error
}

// WindowAPI handles window queries, styles and message posting
type WindowAPI interface {
	GetChild(hwnd HWND) (HWND, error)
	WindowProcessID(hwnd HWND) (uint32, error)
	GetExStyle(hwnd HWND) (uint32, error)
	SetExStyle(hwnd HWND, style uint32) error
	ScreenToClient(hwnd HWND, p Point) (Point, error)
	GetClientRect(hwnd HWND) (Rect, error)
	PostMessage(hwnd HWND, msg uint32, wParam, lParam uintptr) error
}

// WindowProcAPI swaps and calls window procedures inside the current process
type WindowProcAPI interface {
	GetWindowProc(hwnd HWND) uintptr
	SetWindowProc(hwnd HWND, proc uintptr) uintptr
	CallWindowProc(proc uintptr, hwnd HWND, msg uint32, wParam, lParam uintptr) uintptr
	DefWindowProc(hwnd HWND, msg uint32, wParam, lParam uintptr) uintptr
}

// MouseHook installs the global low-level mouse hook
type MouseHook interface {
	Start(handler func(code int32, msg uint32, info MouseInfo)) error
	Stop() error
}

// Injector installs and removes the subclass bridge for a window
type Injector interface {
	Install(ctx context.Context, window HWND) error
	Remove(ctx context.Context, window HWND) error
	ResolveTarget(window HWND) (HWND, error)
}
