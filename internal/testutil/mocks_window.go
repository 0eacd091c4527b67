package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// PostedMessage records one PostMessage call
type PostedMessage struct {
	Hwnd   interfaces.HWND
	Msg    uint32
	WParam uintptr
	LParam uintptr
}

// MockWindowAPI implements interfaces.WindowAPI over a table of fake windows
type MockWindowAPI struct {
	mu sync.Mutex

	Children      map[interfaces.HWND]interfaces.HWND
	Pids          map[interfaces.HWND]uint32
	ExStyles      map[interfaces.HWND]uint32
	ClientOrigins map[interfaces.HWND]interfaces.Point // screen position of the client origin
	ClientRects   map[interfaces.HWND]interfaces.Rect

	ScreenToClientErr error
	ClientRectErr     error
	PostErr           error
	SetExStyleErr     error

	Posted     []PostedMessage
	ChildCalls []interfaces.HWND
}

func NewMockWindowAPI() *MockWindowAPI {
	return &MockWindowAPI{
		Children:      make(map[interfaces.HWND]interfaces.HWND),
		Pids:          make(map[interfaces.HWND]uint32),
		ExStyles:      make(map[interfaces.HWND]uint32),
		ClientOrigins: make(map[interfaces.HWND]interfaces.Point),
		ClientRects:   make(map[interfaces.HWND]interfaces.Rect),
	}
}

// WithChain links window -> first child -> ... in order
func (m *MockWindowAPI) WithChain(hwnds ...interfaces.HWND) *MockWindowAPI {
	for i := 0; i+1 < len(hwnds); i++ {
		m.Children[hwnds[i]] = hwnds[i+1]
	}
	return m
}

func (m *MockWindowAPI) WithPid(hwnd interfaces.HWND, pid uint32) *MockWindowAPI {
	m.Pids[hwnd] = pid
	return m
}

func (m *MockWindowAPI) WithClient(hwnd interfaces.HWND, origin interfaces.Point, width, height int32) *MockWindowAPI {
	m.ClientOrigins[hwnd] = origin
	m.ClientRects[hwnd] = interfaces.Rect{Right: width, Bottom: height}
	return m
}

func (m *MockWindowAPI) WithExStyle(hwnd interfaces.HWND, style uint32) *MockWindowAPI {
	m.ExStyles[hwnd] = style
	return m
}

func (m *MockWindowAPI) GetChild(hwnd interfaces.HWND) (interfaces.HWND, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ChildCalls = append(m.ChildCalls, hwnd)
	return m.Children[hwnd], nil
}

func (m *MockWindowAPI) WindowProcessID(hwnd interfaces.HWND) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pid, ok := m.Pids[hwnd]
	if !ok {
		return 0, errors.New("invalid window handle")
	}

	return pid, nil
}

func (m *MockWindowAPI) GetExStyle(hwnd interfaces.HWND) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExStyles[hwnd], nil
}

func (m *MockWindowAPI) SetExStyle(hwnd interfaces.HWND, style uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetExStyleErr != nil {
		return m.SetExStyleErr
	}

	m.ExStyles[hwnd] = style
	return nil
}

func (m *MockWindowAPI) ScreenToClient(hwnd interfaces.HWND, p interfaces.Point) (interfaces.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ScreenToClientErr != nil {
		return interfaces.Point{}, m.ScreenToClientErr
	}

	origin := m.ClientOrigins[hwnd]
	return interfaces.Point{X: p.X - origin.X, Y: p.Y - origin.Y}, nil
}

func (m *MockWindowAPI) GetClientRect(hwnd interfaces.HWND) (interfaces.Rect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClientRectErr != nil {
		return interfaces.Rect{}, m.ClientRectErr
	}

	return m.ClientRects[hwnd], nil
}

func (m *MockWindowAPI) PostMessage(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PostErr != nil {
		return m.PostErr
	}

	m.Posted = append(m.Posted, PostedMessage{Hwnd: hwnd, Msg: msg, WParam: wParam, LParam: lParam})
	return nil
}

// Messages returns a copy of the posted message log
func (m *MockWindowAPI) Messages() []PostedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PostedMessage(nil), m.Posted...)
}

// ProcCall records one call into a window procedure
type ProcCall struct {
	Proc   uintptr
	Hwnd   interfaces.HWND
	Msg    uint32
	WParam uintptr
	LParam uintptr
}

// MockWindowProcs implements interfaces.WindowProcAPI with a window
// procedure table. Called procedures return Result.
type MockWindowProcs struct {
	mu sync.Mutex

	Procs    map[interfaces.HWND]uintptr
	Calls    []ProcCall
	DefCalls []ProcCall
	Result   uintptr
}

func NewMockWindowProcs() *MockWindowProcs {
	return &MockWindowProcs{Procs: make(map[interfaces.HWND]uintptr)}
}

func (m *MockWindowProcs) WithProc(hwnd interfaces.HWND, proc uintptr) *MockWindowProcs {
	m.Procs[hwnd] = proc
	return m
}

func (m *MockWindowProcs) WithResult(result uintptr) *MockWindowProcs {
	m.Result = result
	return m
}

func (m *MockWindowProcs) GetWindowProc(hwnd interfaces.HWND) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Procs[hwnd]
}

func (m *MockWindowProcs) SetWindowProc(hwnd interfaces.HWND, proc uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.Procs[hwnd]
	m.Procs[hwnd] = proc
	return prev
}

func (m *MockWindowProcs) CallWindowProc(proc uintptr, hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, ProcCall{Proc: proc, Hwnd: hwnd, Msg: msg, WParam: wParam, LParam: lParam})
	return m.Result
}

func (m *MockWindowProcs) DefWindowProc(hwnd interfaces.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DefCalls = append(m.DefCalls, ProcCall{Hwnd: hwnd, Msg: msg, WParam: wParam, LParam: lParam})
	return m.Result
}

// MockInjector implements interfaces.Injector and records calls
type MockInjector struct {
	mu sync.Mutex

	Targets    map[interfaces.HWND]interfaces.HWND
	InstallErr error
	RemoveErr  error

	Installed []interfaces.HWND
	Removed   []interfaces.HWND
}

func NewMockInjector() *MockInjector {
	return &MockInjector{Targets: make(map[interfaces.HWND]interfaces.HWND)}
}

func (m *MockInjector) WithTarget(window, target interfaces.HWND) *MockInjector {
	m.Targets[window] = target
	return m
}

func (m *MockInjector) Install(_ context.Context, window interfaces.HWND) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InstallErr != nil {
		return m.InstallErr
	}

	m.Installed = append(m.Installed, window)
	return nil
}

func (m *MockInjector) Remove(_ context.Context, window interfaces.HWND) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RemoveErr != nil {
		return m.RemoveErr
	}

	m.Removed = append(m.Removed, window)
	return nil
}

func (m *MockInjector) ResolveTarget(window interfaces.HWND) (interfaces.HWND, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.Targets[window]
	if !ok {
		return 0, errors.New("window has no child")
	}

	return target, nil
}
