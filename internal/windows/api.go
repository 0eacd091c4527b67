//go:build windows

// Package windows implements the OS capability interfaces on Win32.
package windows

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
)

var (
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	user32   = windows.NewLazySystemDLL("user32.dll")

	procVirtualAllocEx     = kernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = kernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = kernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = kernel32.NewProc("GetExitCodeThread")
	procLoadLibraryW       = kernel32.NewProc("LoadLibraryW")
	procSetConsoleCtrl     = kernel32.NewProc("SetConsoleCtrlHandler")

	procGetWindow          = user32.NewProc("GetWindow")
	procGetWindowLongPtrW  = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtrW  = user32.NewProc("SetWindowLongPtrW")
	procScreenToClient     = user32.NewProc("ScreenToClient")
	procGetClientRect      = user32.NewProc("GetClientRect")
	procPostMessageW       = user32.NewProc("PostMessageW")
	procCallWindowProcW    = user32.NewProc("CallWindowProcW")
	procDefWindowProcW     = user32.NewProc("DefWindowProcW")
	procSetWindowsHookExW  = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHook  = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx     = user32.NewProc("CallNextHookEx")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPeekMessageW       = user32.NewProc("PeekMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
)

const (
	GW_CHILD = 5

	GWL_EXSTYLE  = -20
	GWLP_WNDPROC = -4

	WH_MOUSE_LL = 14
	WM_QUIT     = 0x0012
	WM_USER     = 0x0400
	PM_NOREMOVE = 0x0000

	MEM_COMMIT  = 0x00001000
	MEM_RESERVE = 0x00002000
	MEM_RELEASE = 0x00008000

	WAIT_OBJECT_0 = 0x00000000
	WAIT_TIMEOUT  = 0x00000102
)

// WindowsAPI implements the process, module, window and window-procedure
// interfaces by delegating to a Client
type WindowsAPI struct {
	client *Client
}

var (
	_ interfaces.ProcessAPI    = (*WindowsAPI)(nil)
	_ interfaces.ModuleAPI     = (*WindowsAPI)(nil)
	_ interfaces.WindowAPI     = (*WindowsAPI)(nil)
	_ interfaces.WindowProcAPI = (*WindowsAPI)(nil)
)

// NewWindowsAPI creates a new WindowsAPI with the provided logger
func NewWindowsAPI(log logger.LoggerInterface) *WindowsAPI {
	return &WindowsAPI{
		client: NewClient(log),
	}
}

// ProcessAPI interface implementation
func (w *WindowsAPI) OpenProcess(pid uint32) (interfaces.Handle, error) {
	return w.client.Process.OpenProcess(pid)
}
func (w *WindowsAPI) CloseHandle(h interfaces.Handle) error { return w.client.Process.CloseHandle(h) }
func (w *WindowsAPI) VirtualAllocEx(process interfaces.Handle, size uintptr, protect uint32) (uintptr, error) {
	return w.client.Process.VirtualAllocEx(process, size, protect)
}

func (w *WindowsAPI) WriteProcessMemory(process interfaces.Handle, addr uintptr, data []byte) error {
	return w.client.Process.WriteProcessMemory(process, addr, data)
}

func (w *WindowsAPI) VirtualFreeEx(process interfaces.Handle, addr uintptr) error {
	return w.client.Process.VirtualFreeEx(process, addr)
}

func (w *WindowsAPI) CreateRemoteThread(process interfaces.Handle, start, param uintptr) (interfaces.Handle, error) {
	return w.client.Process.CreateRemoteThread(process, start, param)
}

func (w *WindowsAPI) WaitForThread(thread interfaces.Handle, timeout time.Duration) error {
	return w.client.Process.WaitForThread(thread, timeout)
}

func (w *WindowsAPI) GetExitCodeThread(thread interfaces.Handle) (uint32, error) {
	return w.client.Process.GetExitCodeThread(thread)
}

// ModuleAPI interface implementation
func (w *WindowsAPI) EnumProcessModules(process interfaces.Handle) ([]interfaces.Module, error) {
	return w.client.Module.EnumProcessModules(process)
}
func (w *WindowsAPI) LoadLibraryAddress() (uintptr, error) { return w.client.Module.LoadLibraryAddress() }
func (w *WindowsAPI) LoadLocal(path string) (interfaces.Handle, error) {
	return w.client.Module.LoadLocal(path)
}

func (w *WindowsAPI) ProcAddress(module interfaces.Handle, symbol string) (uintptr, error) {
	return w.client.Module.ProcAddress(module, symbol)
}
func (w *WindowsAPI) FreeLocal(module interfaces.Handle) error { return w.client.Module.FreeLocal(module) }

// WindowAPI interface implementation
func (w *WindowsAPI) GetChild(hwnd interfaces.HWND) (interfaces.HWND, error) {
	return w.client.Window.GetChild(hwnd)
}

func (w *WindowsAPI) WindowProcessID(hwnd interfaces.HWND) (uint32, error) {
	return w.client.Window.WindowProcessID(hwnd)
}

func (w *WindowsAPI) GetExStyle(hwnd interfaces.HWND) (uint32, error) {
	return w.client.Window.GetExStyle(hwnd)
}

func (w *WindowsAPI) SetExStyle(hwnd interfaces.HWND, style uint32) error {
	return w.client.Window.SetExStyle(hwnd, style)
}

func (w *WindowsAPI) ScreenToClient(hwnd interfaces.HWND, p interfaces.Point) (interfaces.Point, error) {
	return w.client.Window.ScreenToClient(hwnd, p)
}

func (w *WindowsAPI) GetClientRect(hwnd interfaces.HWND) (interfaces.Rect, error) {
	return w.client.Window.GetClientRect(hwnd)
}

func (w *WindowsAPI) PostMessage(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) error {
	return w.client.Window.PostMessage(hwnd, msg, wParam, lParam)
}

// WindowProcAPI interface implementation
func (w *WindowsAPI) GetWindowProc(hwnd interfaces.HWND) uintptr { return WindowProcs{}.GetWindowProc(hwnd) }
func (w *WindowsAPI) SetWindowProc(hwnd interfaces.HWND, proc uintptr) uintptr {
	return WindowProcs{}.SetWindowProc(hwnd, proc)
}

func (w *WindowsAPI) CallWindowProc(proc uintptr, hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	return WindowProcs{}.CallWindowProc(proc, hwnd, msg, wParam, lParam)
}

func (w *WindowsAPI) DefWindowProc(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	return WindowProcs{}.DefWindowProc(hwnd, msg, wParam, lParam)
}

// callErr turns the error of a failed LazyProc call into one that is never nil
func callErr(name string, err error) error {
	if err == nil || err == windows.ERROR_SUCCESS {
		return fmt.Errorf("%s failed", name)
	}

	return err
}

// longPtrIndex converts a negative Get/SetWindowLongPtr index to a call argument
func longPtrIndex(index int) uintptr {
	return uintptr(index)
}
