package testutil

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// ThreadCall records one CreateRemoteThread call
type ThreadCall struct {
	Process interfaces.Handle
	Start   uintptr
	Param   uintptr
}

// MockProcessAPI implements interfaces.ProcessAPI over an in-memory
// foreign process. Remote threads run OnThread synchronously.
type MockProcessAPI struct {
	mu sync.Mutex

	OpenErr   error
	AllocErr  error
	WriteErr  error
	FreeErr   error
	ThreadErr error
	WaitErr   error

	// OnThread runs as the body of every remote thread; its result is the exit code
	OnThread func(process interfaces.Handle, start, param uintptr) uint32

	OpenCalls   []uint32
	ThreadCalls []ThreadCall
	Allocs      int
	Frees       int
	Protections []uint32

	memory   map[uintptr][]byte
	nextAddr uintptr
	handles  map[interfaces.Handle]int // open handle -> close count
	pids     map[interfaces.Handle]uint32
	exits    map[interfaces.Handle]uint32
	next     interfaces.Handle
}

func NewMockProcessAPI() *MockProcessAPI {
	return &MockProcessAPI{
		memory:   make(map[uintptr][]byte),
		nextAddr: 0x10000,
		handles:  make(map[interfaces.Handle]int),
		pids:     make(map[interfaces.Handle]uint32),
		exits:    make(map[interfaces.Handle]uint32),
		next:     0x400,
	}
}

func (m *MockProcessAPI) WithOnThread(fn func(process interfaces.Handle, start, param uintptr) uint32) *MockProcessAPI {
	m.OnThread = fn
	return m
}

func (m *MockProcessAPI) WithOpenError(err error) *MockProcessAPI {
	m.OpenErr = err
	return m
}

func (m *MockProcessAPI) WithThreadError(err error) *MockProcessAPI {
	m.ThreadErr = err
	return m
}

func (m *MockProcessAPI) WithWaitError(err error) *MockProcessAPI {
	m.WaitErr = err
	return m
}

func (m *MockProcessAPI) WithWriteError(err error) *MockProcessAPI {
	m.WriteErr = err
	return m
}

func (m *MockProcessAPI) newHandle() interfaces.Handle {
	m.next += 4
	m.handles[m.next] = 0
	return m.next
}

func (m *MockProcessAPI) OpenProcess(pid uint32) (interfaces.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenCalls = append(m.OpenCalls, pid)
	if m.OpenErr != nil {
		return 0, m.OpenErr
	}

	h := m.newHandle()
	m.pids[h] = pid
	return h, nil
}

// PidOf returns the pid a process handle was opened for
func (m *MockProcessAPI) PidOf(h interfaces.Handle) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pids[h]
}

func (m *MockProcessAPI) CloseHandle(h interfaces.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handles[h]; !ok {
		return errors.New("invalid handle")
	}

	m.handles[h]++
	return nil
}

func (m *MockProcessAPI) VirtualAllocEx(_ interfaces.Handle, size uintptr, protect uint32) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AllocErr != nil {
		return 0, m.AllocErr
	}

	addr := m.nextAddr
	m.nextAddr += (size + 0xfff) &^ 0xfff
	m.memory[addr] = make([]byte, size)
	m.Allocs++
	m.Protections = append(m.Protections, protect)

	return addr, nil
}

func (m *MockProcessAPI) WriteProcessMemory(_ interfaces.Handle, addr uintptr, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}

	buf, ok := m.memory[addr]
	if !ok || len(data) > len(buf) {
		return errors.New("access violation")
	}

	copy(buf, data)
	return nil
}

func (m *MockProcessAPI) VirtualFreeEx(_ interfaces.Handle, addr uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memory[addr]; !ok {
		return errors.New("double free")
	}

	delete(m.memory, addr)
	m.Frees++
	return m.FreeErr
}

func (m *MockProcessAPI) CreateRemoteThread(process interfaces.Handle, start, param uintptr) (interfaces.Handle, error) {
	m.mu.Lock()
	m.ThreadCalls = append(m.ThreadCalls, ThreadCall{Process: process, Start: start, Param: param})
	if m.ThreadErr != nil {
		m.mu.Unlock()
		return 0, m.ThreadErr
	}

	thread := m.newHandle()
	body := m.OnThread
	m.mu.Unlock()

	var code uint32
	if body != nil {
		code = body(process, start, param)
	}

	m.mu.Lock()
	m.exits[thread] = code
	m.mu.Unlock()

	return thread, nil
}

func (m *MockProcessAPI) WaitForThread(_ interfaces.Handle, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WaitErr
}

func (m *MockProcessAPI) GetExitCodeThread(thread interfaces.Handle) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.exits[thread]
	if !ok {
		return 0, errors.New("invalid thread handle")
	}

	return code, nil
}

// ReadPointer reads a pointer-sized value written into the fake process
func (m *MockProcessAPI) ReadPointer(addr uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.memory[addr]
	switch len(buf) {
	case 8:
		return uintptr(binary.LittleEndian.Uint64(buf))
	case 4:
		return uintptr(binary.LittleEndian.Uint32(buf))
	default:
		return 0
	}
}

// ReadString reads a NUL-terminated UTF-16 string written into the fake process
func (m *MockProcessAPI) ReadString(addr uintptr) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.memory[addr]
	units := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		u := binary.LittleEndian.Uint16(buf[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	return string(utf16.Decode(units))
}

// LiveAllocations returns the number of blocks not yet freed
func (m *MockProcessAPI) LiveAllocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memory)
}

// OpenHandles returns handles that were never closed
func (m *MockProcessAPI) OpenHandles() []interfaces.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []interfaces.Handle
	for h, closes := range m.handles {
		if closes == 0 {
			open = append(open, h)
		}
	}

	return open
}

// CloseCount returns how many times h was closed
func (m *MockProcessAPI) CloseCount(h interfaces.Handle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[h]
}

// Threads returns a copy of the recorded remote thread calls
func (m *MockProcessAPI) Threads() []ThreadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ThreadCall(nil), m.ThreadCalls...)
}

// MockModuleAPI implements interfaces.ModuleAPI with a per-process module list
// and a table of locally resolvable symbols.
type MockModuleAPI struct {
	mu sync.Mutex

	LoadLibraryAddr uintptr
	LoadLibraryErr  error
	EnumErr         error
	LoadLocalErr    error

	LoadLibraryCalls int
	EnumCalls        int
	LoadLocalCalls   []string
	FreeLocalCalls   int

	// ProcessKey maps a process handle to the identity its modules are
	// stored under, so that two handles to one process share a module list
	ProcessKey func(interfaces.Handle) interfaces.Handle

	modules map[interfaces.Handle][]interfaces.Module
	symbols map[string]uintptr
}

func NewMockModuleAPI() *MockModuleAPI {
	return &MockModuleAPI{
		LoadLibraryAddr: 0x7ffa0000,
		modules:         make(map[interfaces.Handle][]interfaces.Module),
		symbols:         make(map[string]uintptr),
	}
}

func (m *MockModuleAPI) WithModule(process interfaces.Handle, name string, base uintptr) *MockModuleAPI {
	m.AddModule(process, name, base)
	return m
}

func (m *MockModuleAPI) WithSymbol(name string, addr uintptr) *MockModuleAPI {
	m.symbols[name] = addr
	return m
}

func (m *MockModuleAPI) WithEnumError(err error) *MockModuleAPI {
	m.EnumErr = err
	return m
}

func (m *MockModuleAPI) key(process interfaces.Handle) interfaces.Handle {
	if m.ProcessKey != nil {
		return m.ProcessKey(process)
	}
	return process
}

// AddModule marks a module as loaded in process
func (m *MockModuleAPI) AddModule(process interfaces.Handle, name string, base uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(process)
	m.modules[k] = append(m.modules[k], interfaces.Module{Base: base, Name: name})
}

// HasModule reports whether name is loaded in process
func (m *MockModuleAPI) HasModule(process interfaces.Handle, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mod := range m.modules[m.key(process)] {
		if strings.EqualFold(mod.Name, name) {
			return true
		}
	}

	return false
}

func (m *MockModuleAPI) EnumProcessModules(process interfaces.Handle) ([]interfaces.Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EnumCalls++
	if m.EnumErr != nil {
		return nil, m.EnumErr
	}

	return append([]interfaces.Module(nil), m.modules[m.key(process)]...), nil
}

func (m *MockModuleAPI) LoadLibraryAddress() (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LoadLibraryCalls++
	return m.LoadLibraryAddr, m.LoadLibraryErr
}

func (m *MockModuleAPI) LoadLocal(path string) (interfaces.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LoadLocalCalls = append(m.LoadLocalCalls, path)
	if m.LoadLocalErr != nil {
		return 0, m.LoadLocalErr
	}

	return 0x6000_0000, nil
}

func (m *MockModuleAPI) ProcAddress(_ interfaces.Handle, symbol string) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr, ok := m.symbols[symbol]
	if !ok {
		return 0, errors.New("the specified procedure could not be found")
	}

	return addr, nil
}

func (m *MockModuleAPI) FreeLocal(_ interfaces.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FreeLocalCalls++
	return nil
}
