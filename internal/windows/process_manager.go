//go:build windows

package windows

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
)

// processManager implements the ProcessAPI interface
type processManager struct {
	log logger.LoggerInterface
}

// newProcessManager creates a new process manager
func newProcessManager(log logger.LoggerInterface) *processManager {
	return &processManager{log: log}
}

// OpenProcess opens pid with every right needed to load a module into it
func (p *processManager) OpenProcess(pid uint32) (interfaces.Handle, error) {
	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, pid)
	if err != nil {
		return 0, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}

	p.log.Trace("Opened process", slog.Uint64("pid", uint64(pid)), slog.Uint64("handle", uint64(h)))
	return interfaces.Handle(h), nil
}

func (p *processManager) CloseHandle(h interfaces.Handle) error {
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return fmt.Errorf("CloseHandle(%#x): %w", h, err)
	}

	return nil
}

// VirtualAllocEx commits size bytes in process with the given page protection
func (p *processManager) VirtualAllocEx(process interfaces.Handle, size uintptr, protect uint32) (uintptr, error) {
	addr, _, err := procVirtualAllocEx.Call(
		process,
		0,
		size,
		MEM_COMMIT|MEM_RESERVE,
		uintptr(protect),
	)
	if addr == 0 {
		return 0, fmt.Errorf("VirtualAllocEx(%d bytes): %w", size, callErr("VirtualAllocEx", err))
	}

	return addr, nil
}

func (p *processManager) WriteProcessMemory(process interfaces.Handle, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var written uintptr
	if err := windows.WriteProcessMemory(windows.Handle(process), addr, &data[0], uintptr(len(data)), &written); err != nil {
		return fmt.Errorf("WriteProcessMemory(%#x): %w", addr, err)
	}

	if written != uintptr(len(data)) {
		return fmt.Errorf("WriteProcessMemory(%#x): wrote %d of %d bytes", addr, written, len(data))
	}

	return nil
}

// VirtualFreeEx releases a whole region reserved by VirtualAllocEx
func (p *processManager) VirtualFreeEx(process interfaces.Handle, addr uintptr) error {
	ret, _, err := procVirtualFreeEx.Call(process, addr, 0, MEM_RELEASE)
	if ret == 0 {
		return fmt.Errorf("VirtualFreeEx(%#x): %w", addr, callErr("VirtualFreeEx", err))
	}

	return nil
}

// CreateRemoteThread starts a thread in process at start with param as its only argument
func (p *processManager) CreateRemoteThread(process interfaces.Handle, start, param uintptr) (interfaces.Handle, error) {
	var threadID uint32
	h, _, err := procCreateRemoteThread.Call(
		process,
		0,
		0,
		start,
		param,
		0,
		uintptr(unsafe.Pointer(&threadID)),
	)
	if h == 0 {
		return 0, fmt.Errorf("CreateRemoteThread(%#x): %w", start, callErr("CreateRemoteThread", err))
	}

	p.log.Trace("Remote thread created",
		slog.String("start", fmt.Sprintf("%#x", start)),
		slog.Uint64("threadID", uint64(threadID)),
	)

	return interfaces.Handle(h), nil
}

// WaitForThread waits for thread to exit. It returns interfaces.ErrWaitTimeout
// when timeout elapses first.
func (p *processManager) WaitForThread(thread interfaces.Handle, timeout time.Duration) error {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 && timeout.Milliseconds() < int64(windows.INFINITE) {
		ms = uint32(timeout.Milliseconds())
	}

	event, err := windows.WaitForSingleObject(windows.Handle(thread), ms)
	switch event {
	case WAIT_OBJECT_0:
		return nil
	case WAIT_TIMEOUT:
		return interfaces.ErrWaitTimeout
	default:
		return fmt.Errorf("WaitForSingleObject(%#x): %w", thread, callErr("WaitForSingleObject", err))
	}
}

func (p *processManager) GetExitCodeThread(thread interfaces.Handle) (uint32, error) {
	var code uint32
	ret, _, err := procGetExitCodeThread.Call(thread, uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return 0, fmt.Errorf("GetExitCodeThread(%#x): %w", thread, callErr("GetExitCodeThread", err))
	}

	return code, nil
}
