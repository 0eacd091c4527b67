package overlay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/inject"
	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/ipc"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/overlay"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

const (
	overlayWindow interfaces.HWND = 0x10010
	targetWindow  interfaces.HWND = 0x10050
	baseStyle     uint32          = 0x00000100
)

type fixture struct {
	windows    *testutil.MockWindowAPI
	injector   *testutil.MockInjector
	listeners  *hook.Listeners
	controller *overlay.Controller
}

func newFixture() *fixture {
	f := &fixture{
		windows: testutil.NewMockWindowAPI().
			WithExStyle(overlayWindow, baseStyle).
			WithClient(targetWindow, interfaces.Point{X: 100, Y: 50}, 800, 600),
		injector:  testutil.NewMockInjector().WithTarget(overlayWindow, targetWindow),
		listeners: hook.NewListeners(),
	}

	f.controller = overlay.NewController(logger.NewNoOpLogger(), &overlay.Dependencies{
		Windows:   f.windows,
		Injector:  f.injector,
		Listeners: f.listeners,
		Stats: func() hook.Stats {
			return hook.Stats{Delivered: 12, Dropped: 3}
		},
		Registry: func() []inject.Registration {
			return []inject.Registration{{Window: overlayWindow, Target: targetWindow, Pid: 4242, Process: 0x44}}
		},
	})

	return f
}

func TestToggle_IgnoreAndForward(t *testing.T) {
	t.Parallel()

	f := newFixture()

	require.NoError(t, f.controller.Toggle(context.Background(), overlayWindow, true, true))

	style, _ := f.windows.GetExStyle(overlayWindow)
	assert.Equal(t, baseStyle|overlay.WS_EX_LAYERED|overlay.WS_EX_TRANSPARENT, style)
	assert.Equal(t, []interfaces.HWND{overlayWindow}, f.injector.Installed)

	listener, ok := f.listeners.Lookup(hook.EventMouseMove)
	require.True(t, ok)

	listener(hook.Event{Message: hook.WM_MOUSEMOVE, Point: interfaces.Point{X: 110, Y: 70}})

	messages := f.windows.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, targetWindow, messages[0].Hwnd)
	assert.Equal(t, uint32(hook.WM_MOUSEMOVE), messages[0].Msg)
	assert.Equal(t, uintptr(20<<16|10), messages[0].LParam)
}

func TestToggle_RestoreStopsForwarding(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.controller.Toggle(ctx, overlayWindow, true, true))
	require.NoError(t, f.controller.Toggle(ctx, overlayWindow, false, false))

	style, _ := f.windows.GetExStyle(overlayWindow)
	assert.Equal(t, baseStyle, style)
	assert.Equal(t, []interfaces.HWND{overlayWindow}, f.injector.Removed)

	_, ok := f.listeners.Lookup(hook.EventMouseMove)
	assert.False(t, ok)
}

func TestToggle_IgnoreWithoutForward(t *testing.T) {
	t.Parallel()

	f := newFixture()

	require.NoError(t, f.controller.Toggle(context.Background(), overlayWindow, true, false))

	style, _ := f.windows.GetExStyle(overlayWindow)
	assert.Equal(t, baseStyle|overlay.WS_EX_LAYERED|overlay.WS_EX_TRANSPARENT, style)
	assert.Empty(t, f.injector.Installed)
	assert.Equal(t, []interfaces.HWND{overlayWindow}, f.injector.Removed, "removal of an unregistered window is harmless")
}

func TestToggle_ZeroWindow(t *testing.T) {
	t.Parallel()

	f := newFixture()

	assert.ErrorIs(t, f.controller.Toggle(context.Background(), 0, true, true), overlay.ErrNoWindow)
	assert.Empty(t, f.injector.Installed)
}

func TestToggle_StyleFailureStopsToggle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.windows.SetExStyleErr = errors.New("access denied")

	err := f.controller.Toggle(context.Background(), overlayWindow, true, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, f.windows.SetExStyleErr)
	assert.Empty(t, f.injector.Installed)
}

func TestToggle_InstallFailureLeavesNoListener(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.injector.InstallErr = inject.ErrNoWndProc

	err := f.controller.Toggle(context.Background(), overlayWindow, true, true)
	assert.ErrorIs(t, err, inject.ErrNoWndProc)

	_, ok := f.listeners.Lookup(hook.EventMouseMove)
	assert.False(t, ok)
}

func TestToggle_UnresolvableTarget(t *testing.T) {
	t.Parallel()

	f := newFixture()
	delete(f.injector.Targets, overlayWindow)

	assert.Error(t, f.controller.Toggle(context.Background(), overlayWindow, true, true))

	_, ok := f.listeners.Lookup(hook.EventMouseMove)
	assert.False(t, ok)
}

func TestExecute_Toggle(t *testing.T) {
	t.Parallel()

	f := newFixture()

	req := ipc.NewRequest(ipc.CommandToggle)
	req.Window = uint64(overlayWindow)
	req.Ignore = true
	req.Forward = true

	resp := f.controller.Execute(context.Background(), req)

	assert.True(t, resp.OK)
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, []ipc.Registration{{Window: uint64(overlayWindow), Target: uint64(targetWindow), Pid: 4242}}, resp.Registrations)
}

func TestExecute_ToggleFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.injector.InstallErr = errors.New("open process 4242: access denied")

	req := ipc.NewRequest(ipc.CommandToggle)
	req.Window = uint64(overlayWindow)
	req.Forward = true

	resp := f.controller.Execute(context.Background(), req)

	assert.False(t, resp.OK)
	assert.Equal(t, req.ID, resp.ID)
	assert.Contains(t, resp.Error, "access denied")
}

func TestExecute_Status(t *testing.T) {
	t.Parallel()

	f := newFixture()

	resp := f.controller.Execute(context.Background(), ipc.NewRequest(ipc.CommandStatus))

	assert.True(t, resp.OK)
	assert.Equal(t, uint64(12), resp.Delivered)
	assert.Equal(t, uint64(3), resp.Dropped)
	assert.Len(t, resp.Registrations, 1)
}

func TestExecute_UnknownCommand(t *testing.T) {
	t.Parallel()

	f := newFixture()

	resp := f.controller.Execute(context.Background(), ipc.Request{ID: "1", Command: "explode"})

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown command")
}
