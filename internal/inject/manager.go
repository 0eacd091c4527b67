// Package inject keeps the companion module and its subclass bridge
// installed in the processes that own forwarded windows.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/remote"
	"github.com/Norgate-AV/passthru/internal/subclass"
)

// Companion module exports
const (
	SymbolInstall = "install_subclass"
	SymbolRemove  = "remove_subclass"
)

// ErrNoWndProc is returned by Install when the bridge reports subclass.StatusNoWndProc
var ErrNoWndProc = errors.New("target window procedure unreadable")

// Registration records one window whose target has the bridge installed
type Registration struct {
	Window  interfaces.HWND
	Target  interfaces.HWND
	Pid     uint32
	Process interfaces.Handle
}

// Loader loads the companion module into a foreign process
type Loader interface {
	Load(ctx context.Context, process interfaces.Handle, path string) (uintptr, error)
}

// Invoker calls a companion export in a foreign process
type Invoker interface {
	Call(ctx context.Context, process interfaces.Handle, modulePath, symbol string, arg *uintptr) (uint32, error)
}

// Dependencies holds the OS and remote-call collaborators of a Manager
type Dependencies struct {
	Windows   interfaces.WindowAPI
	Processes interfaces.ProcessAPI
	Modules   interfaces.ModuleAPI
	Loader    Loader
	Invoker   Invoker
}

// Options configures a Manager
type Options struct {
	// ModulePath is the absolute path of the companion module
	ModulePath string

	// Resolver picks the subclassed window. Defaults to ChildChain(DefaultChildDepth).
	Resolver TargetResolver
}

// Manager owns the registration table. The table lock is never held
// across a remote call; concurrent operations on one window are serialised
// by an in-flight marker.
type Manager struct {
	log  logger.LoggerInterface
	deps *Dependencies
	opts Options

	mu       sync.Mutex
	entries  map[interfaces.HWND]Registration
	inflight map[interfaces.HWND]chan struct{}
}

// NewManager creates a Manager
func NewManager(log logger.LoggerInterface, deps *Dependencies, opts Options) *Manager {
	if opts.Resolver == nil {
		opts.Resolver = ChildChain(DefaultChildDepth)
	}

	return &Manager{
		log:      log,
		deps:     deps,
		opts:     opts,
		entries:  make(map[interfaces.HWND]Registration),
		inflight: make(map[interfaces.HWND]chan struct{}),
	}
}

// ResolveTarget returns the window that receives the bridge for window
func (m *Manager) ResolveTarget(window interfaces.HWND) (interfaces.HWND, error) {
	target, err := m.opts.Resolver(m.deps.Windows, window)
	if err != nil {
		return 0, fmt.Errorf("resolve target of %#x: %w", window, err)
	}

	return target, nil
}

// Install ensures the companion module is loaded in the process that owns
// window's target and that the bridge is installed. A registered window is
// left untouched.
func (m *Manager) Install(ctx context.Context, window interfaces.HWND) error {
	release, err := m.acquire(ctx, window)
	if err != nil {
		return err
	}

	m.mu.Lock()
	_, registered := m.entries[window]
	m.mu.Unlock()

	if registered {
		release(nil)
		m.log.Debug("Bridge already installed", slog.String("window", hex(window)))
		return nil
	}

	reg, ok, err := m.install(ctx, window)
	if err != nil || !ok {
		release(nil)
		return err
	}

	release(&reg)

	m.log.Info("Bridge installed",
		slog.String("window", hex(window)),
		slog.String("target", hex(reg.Target)),
		slog.Uint64("pid", uint64(reg.Pid)),
	)

	return nil
}

func (m *Manager) install(ctx context.Context, window interfaces.HWND) (Registration, bool, error) {
	target, err := m.ResolveTarget(window)
	if err != nil {
		return Registration{}, false, err
	}

	pid, err := m.deps.Windows.WindowProcessID(target)
	if err != nil {
		return Registration{}, false, fmt.Errorf("owner of %#x: %w", target, err)
	}

	process, err := m.deps.Processes.OpenProcess(pid)
	if err != nil {
		return Registration{}, false, &remote.AccessError{Pid: pid, Err: err}
	}

	fail := func(err error) (Registration, bool, error) {
		return Registration{}, false, errors.Join(err, m.closeProcess(process))
	}

	if err := m.ensureLoaded(ctx, process, pid); err != nil {
		return fail(err)
	}

	arg := uintptr(target)
	status, err := m.deps.Invoker.Call(ctx, process, m.opts.ModulePath, SymbolInstall, &arg)
	if err != nil {
		return fail(err)
	}

	switch status {
	case 0:
		m.log.Warn("Companion install export unavailable, forwarding without bridge",
			slog.String("window", hex(window)),
			slog.Uint64("pid", uint64(pid)),
		)
		return Registration{}, false, m.closeProcess(process)
	case subclass.StatusNoWndProc:
		return fail(fmt.Errorf("install bridge on %#x: %w", target, ErrNoWndProc))
	}

	return Registration{Window: window, Target: target, Pid: pid, Process: process}, true, nil
}

// ensureLoaded runs the remote loader unless the companion module is resident
func (m *Manager) ensureLoaded(ctx context.Context, process interfaces.Handle, pid uint32) error {
	_, err := remote.ModuleBase(m.deps.Modules, process, m.opts.ModulePath)
	if err == nil {
		m.log.Debug("Companion module already resident", slog.Uint64("pid", uint64(pid)))
		return nil
	}

	if !errors.Is(err, remote.ErrModuleNotResident) {
		return &remote.LoaderError{Op: "check residency", Path: m.opts.ModulePath, Err: err}
	}

	if _, err := m.deps.Loader.Load(ctx, process, m.opts.ModulePath); err != nil {
		return err
	}

	return nil
}

// Remove uninstalls the bridge for window and closes the process handle.
// An unregistered window is a no-op.
func (m *Manager) Remove(ctx context.Context, window interfaces.HWND) error {
	release, err := m.acquire(ctx, window)
	if err != nil {
		return err
	}
	defer release(nil)

	m.mu.Lock()
	reg, ok := m.entries[window]
	delete(m.entries, window)
	m.mu.Unlock()

	if !ok {
		m.log.Debug("Bridge not installed, nothing to remove", slog.String("window", hex(window)))
		return nil
	}

	err = m.remove(ctx, reg)
	if err != nil {
		m.log.Warn("Bridge removal failed", slog.String("window", hex(window)), slog.Any("error", err))
		return err
	}

	m.log.Info("Bridge removed", slog.String("window", hex(window)), slog.Uint64("pid", uint64(reg.Pid)))
	return nil
}

func (m *Manager) remove(ctx context.Context, reg Registration) error {
	target, err := m.ResolveTarget(reg.Window)
	if err != nil {
		m.log.Debug("Target no longer resolvable, using recorded target",
			slog.String("window", hex(reg.Window)),
			slog.Any("error", err),
		)
		target = reg.Target
	}

	arg := uintptr(target)
	_, callErr := m.deps.Invoker.Call(ctx, reg.Process, m.opts.ModulePath, SymbolRemove, &arg)

	return errors.Join(callErr, m.closeProcess(reg.Process))
}

// Registered returns the current registrations ordered by window
func (m *Manager) Registered() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	regs := make([]Registration, 0, len(m.entries))
	for _, reg := range m.entries {
		regs = append(regs, reg)
	}

	sort.Slice(regs, func(i, j int) bool { return regs[i].Window < regs[j].Window })
	return regs
}

// Close removes every registration
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, reg := range m.Registered() {
		if err := m.Remove(ctx, reg.Window); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// acquire waits until no other operation is in flight for window and marks
// one. The returned release stores reg, when non-nil, before clearing the mark.
func (m *Manager) acquire(ctx context.Context, window interfaces.HWND) (func(reg *Registration), error) {
	for {
		m.mu.Lock()
		busy, ok := m.inflight[window]
		if !ok {
			done := make(chan struct{})
			m.inflight[window] = done
			m.mu.Unlock()

			return func(reg *Registration) {
				m.mu.Lock()
				if reg != nil {
					m.entries[window] = *reg
				}
				delete(m.inflight, window)
				m.mu.Unlock()
				close(done)
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) closeProcess(process interfaces.Handle) error {
	if err := m.deps.Processes.CloseHandle(process); err != nil {
		return fmt.Errorf("close process handle: %w", err)
	}

	return nil
}

func hex(v uintptr) string {
	return fmt.Sprintf("%#x", v)
}
