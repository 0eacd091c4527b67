package forward_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/forward"
	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

const target interfaces.HWND = 0x5005e

func moveAt(x, y int32) hook.Event {
	return hook.Event{Message: hook.WM_MOUSEMOVE, Point: interfaces.Point{X: x, Y: y}}
}

func TestListener_Containment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		screen interfaces.Point
		posted bool
	}{
		{name: "inside", screen: interfaces.Point{X: 400, Y: 300}, posted: true},
		{name: "top left corner", screen: interfaces.Point{X: 0, Y: 0}, posted: true},
		{name: "right edge excluded", screen: interfaces.Point{X: 800, Y: 10}, posted: false},
		{name: "bottom edge excluded", screen: interfaces.Point{X: 10, Y: 600}, posted: false},
		{name: "outside right", screen: interfaces.Point{X: 801, Y: 10}, posted: false},
		{name: "negative", screen: interfaces.Point{X: -1, Y: 10}, posted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := testutil.NewMockWindowAPI().WithClient(target, interfaces.Point{}, 800, 600)
			l := forward.NewListener(logger.NewNoOpLogger(), api, target)

			l.Handle(moveAt(tt.screen.X, tt.screen.Y))

			if tt.posted {
				assert.Len(t, api.Messages(), 1)
			} else {
				assert.Empty(t, api.Messages())
			}
		})
	}
}

func TestListener_PostsClientCoordinates(t *testing.T) {
	t.Parallel()

	api := testutil.NewMockWindowAPI().WithClient(target, interfaces.Point{X: 100, Y: 50}, 800, 600)
	l := forward.NewListener(logger.NewNoOpLogger(), api, target)

	l.Handle(moveAt(500, 350))

	msgs := api.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testutil.PostedMessage{
		Hwnd:   target,
		Msg:    hook.WM_MOUSEMOVE,
		WParam: 0,
		LParam: forward.MakeLParam(400, 300),
	}, msgs[0])
	assert.Equal(t, uintptr(300<<16|400), msgs[0].LParam)
}

func TestListener_OSFailuresDropEvent(t *testing.T) {
	t.Parallel()

	failures := map[string]func(*testutil.MockWindowAPI){
		"screen to client": func(m *testutil.MockWindowAPI) { m.ScreenToClientErr = errors.New("invalid window handle") },
		"client rect":      func(m *testutil.MockWindowAPI) { m.ClientRectErr = errors.New("invalid window handle") },
		"post":             func(m *testutil.MockWindowAPI) { m.PostErr = errors.New("queue full") },
	}

	for name, inject := range failures {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			api := testutil.NewMockWindowAPI().WithClient(target, interfaces.Point{}, 800, 600)
			inject(api)

			l := forward.NewListener(logger.NewNoOpLogger(), api, target)

			assert.NotPanics(t, func() { l.Handle(moveAt(10, 10)) })
			assert.Empty(t, api.Messages())
		})
	}
}

func TestMakeLParam(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uintptr(0x012c0190), forward.MakeLParam(400, 300))
	assert.Equal(t, uintptr(0x0000ffff), forward.MakeLParam(-1, 0), "negative x keeps its low 16 bits")
	assert.Equal(t, uintptr(0x00010000), forward.MakeLParam(0x10000, 1), "coordinates truncated to 16 bits")
}
