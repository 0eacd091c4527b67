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

const maxModules = 1024

// moduleManager implements the ModuleAPI interface
type moduleManager struct {
	log logger.LoggerInterface
}

// newModuleManager creates a new module manager
func newModuleManager(log logger.LoggerInterface) *moduleManager {
	return &moduleManager{log: log}
}

// EnumProcessModules lists the modules loaded in process with their base names
func (m *moduleManager) EnumProcessModules(process interfaces.Handle) ([]interfaces.Module, error) {
	handles := make([]windows.Handle, maxModules)
	var needed uint32

	err := windows.EnumProcessModules(
		windows.Handle(process),
		&handles[0],
		uint32(len(handles))*uint32(unsafe.Sizeof(handles[0])),
		&needed,
	)
	if err != nil {
		return nil, fmt.Errorf("EnumProcessModules: %w", err)
	}

	count := int(needed / uint32(unsafe.Sizeof(handles[0])))
	if count > len(handles) {
		m.log.Warn("Module list truncated", slog.Int("modules", count), slog.Int("max", len(handles)))
		count = len(handles)
	}

	modules := make([]interfaces.Module, 0, count)
	name := make([]uint16, windows.MAX_PATH)

	for _, h := range handles[:count] {
		if err := windows.GetModuleBaseName(windows.Handle(process), h, &name[0], uint32(len(name))); err != nil {
			m.log.Trace("GetModuleBaseName failed", slog.Uint64("module", uint64(h)), slog.Any("error", err))
			continue
		}

		modules = append(modules, interfaces.Module{
			Base: uintptr(h),
			Name: windows.UTF16ToString(name),
		})
	}

	return modules, nil
}

// LoadLibraryAddress returns the address of kernel32!LoadLibraryW. kernel32
// is mapped at the same base in every process of a session.
func (m *moduleManager) LoadLibraryAddress() (uintptr, error) {
	if err := procLoadLibraryW.Find(); err != nil {
		return 0, fmt.Errorf("resolve LoadLibraryW: %w", err)
	}

	return procLoadLibraryW.Addr(), nil
}

// LoadLocal maps path into this process, resolving its imports from its own directory
func (m *moduleManager) LoadLocal(path string) (interfaces.Handle, error) {
	h, err := windows.LoadLibraryEx(path, 0, windows.LOAD_LIBRARY_SEARCH_DLL_LOAD_DIR|windows.LOAD_LIBRARY_SEARCH_DEFAULT_DIRS)
	if err != nil {
		return 0, fmt.Errorf("LoadLibraryEx(%s): %w", path, err)
	}

	return interfaces.Handle(h), nil
}

func (m *moduleManager) ProcAddress(module interfaces.Handle, symbol string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(module), symbol)
	if err != nil {
		return 0, fmt.Errorf("GetProcAddress(%s): %w", symbol, err)
	}

	return addr, nil
}

func (m *moduleManager) FreeLocal(module interfaces.Handle) error {
	if err := windows.FreeLibrary(windows.Handle(module)); err != nil {
		return fmt.Errorf("FreeLibrary(%#x): %w", module, err)
	}

	return nil
}
