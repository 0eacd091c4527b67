package hook_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/hook"
	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

func move(x, y int32) interfaces.MouseInfo {
	return interfaces.MouseInfo{Point: interfaces.Point{X: x, Y: y}}
}

func startDispatcher(t *testing.T, capacity int) *hook.Dispatcher {
	t.Helper()

	d := hook.NewDispatcher(logger.NewNoOpLogger(), capacity)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })

	return d
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	d := hook.NewDispatcher(logger.NewNoOpLogger(), 4)

	finished := make(chan struct{})
	go func() {
		for i := range 100 {
			d.HandleMouse(0, hook.WM_MOUSEMOVE, move(int32(i), 0))
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("HandleMouse blocked on a full queue")
	}

	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.Enqueued)
	assert.Equal(t, uint64(96), stats.Dropped)
}

func TestDispatcher_PausedConsumer(t *testing.T) {
	t.Parallel()

	d := startDispatcher(t, 8)

	taken := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	d.Listeners().Register(hook.EventMouseMove, func(hook.Event) {
		once.Do(func() {
			close(taken)
			<-resume
		})
	})

	d.HandleMouse(0, hook.WM_MOUSEMOVE, move(0, 0))
	<-taken

	for i := range 50 {
		d.HandleMouse(0, hook.WM_MOUSEMOVE, move(int32(i), 0))
	}

	stats := d.Stats()
	assert.Equal(t, uint64(1+8), stats.Enqueued)
	assert.Equal(t, uint64(50-8), stats.Dropped)

	close(resume)
	testutil.WaitFor(t, time.Second, func() bool { return d.Stats().Delivered == 9 })
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	t.Parallel()

	d := startDispatcher(t, 64)

	var mu sync.Mutex
	var got []int32
	d.Listeners().Register(hook.EventMouseMove, func(ev hook.Event) {
		mu.Lock()
		got = append(got, ev.Point.X)
		mu.Unlock()
	})

	want := make([]int32, 0, 50)
	for i := range int32(50) {
		want = append(want, i)
		d.HandleMouse(0, hook.WM_MOUSEMOVE, move(i, 0))
	}

	testutil.WaitFor(t, time.Second, func() bool { return d.Stats().Delivered == 50 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestDispatcher_ListenerPanicDoesNotStopConsumer(t *testing.T) {
	t.Parallel()

	d := startDispatcher(t, 8)

	delivered := make(chan int32, 8)
	d.Listeners().Register(hook.EventMouseMove, func(ev hook.Event) {
		if ev.Point.X == 1 {
			panic("listener failure")
		}
		delivered <- ev.Point.X
	})

	d.HandleMouse(0, hook.WM_MOUSEMOVE, move(1, 0))
	d.HandleMouse(0, hook.WM_MOUSEMOVE, move(2, 0))

	select {
	case x := <-delivered:
		assert.Equal(t, int32(2), x)
	case <-time.After(time.Second):
		t.Fatal("consumer stopped after a listener panic")
	}

	assert.Equal(t, uint64(1), d.Stats().Panics)
}

func TestDispatcher_IgnoresOtherInput(t *testing.T) {
	t.Parallel()

	d := hook.NewDispatcher(logger.NewNoOpLogger(), 4)

	d.HandleMouse(-1, hook.WM_MOUSEMOVE, move(1, 1))
	d.HandleMouse(0, hook.WM_MOUSELEAVE, move(1, 1))
	d.HandleMouse(0, 0x0201, move(1, 1)) // WM_LBUTTONDOWN

	assert.Equal(t, hook.Stats{}, d.Stats())
}

func TestDispatcher_CopiesPoint(t *testing.T) {
	t.Parallel()

	d := startDispatcher(t, 4)

	got := make(chan hook.Event, 1)
	d.Listeners().Register(hook.EventMouseMove, func(ev hook.Event) { got <- ev })

	info := interfaces.MouseInfo{Point: interfaces.Point{X: 400, Y: 300}, Flags: 1, Time: 99}
	d.HandleMouse(0, hook.WM_MOUSEMOVE, info)
	info.Point.X = -1

	select {
	case ev := <-got:
		assert.Equal(t, hook.Event{Message: hook.WM_MOUSEMOVE, Point: interfaces.Point{X: 400, Y: 300}, Flags: 1, Time: 99}, ev)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	t.Parallel()

	d := hook.NewDispatcher(logger.NewNoOpLogger(), 0)

	require.NoError(t, d.Stop(), "stop before start is a no-op")
	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	require.NoError(t, d.Start(context.Background()), "restart after stop")
	require.NoError(t, d.Stop())
}

func TestEvent_Name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, hook.EventMouseMove, hook.Event{Message: hook.WM_MOUSEMOVE}.Name())
	assert.Equal(t, "message:0x0201", hook.Event{Message: 0x0201}.Name())
}

func TestDispatcher_ReplacedListenerGetsNoLaterEvents(t *testing.T) {
	t.Parallel()

	d := startDispatcher(t, 8)

	var mu sync.Mutex
	var first, second []int32

	taken := make(chan struct{})
	resume := make(chan struct{})
	d.Listeners().Register(hook.EventMouseMove, func(ev hook.Event) {
		mu.Lock()
		first = append(first, ev.Point.X)
		mu.Unlock()

		if ev.Point.X == 0 {
			close(taken)
			<-resume
		}
	})

	d.HandleMouse(0, hook.WM_MOUSEMOVE, move(0, 0))
	<-taken

	for i := range int32(3) {
		d.HandleMouse(0, hook.WM_MOUSEMOVE, move(i+1, 0))
	}

	d.Listeners().Register(hook.EventMouseMove, func(ev hook.Event) {
		mu.Lock()
		second = append(second, ev.Point.X)
		mu.Unlock()
	})
	close(resume)

	testutil.WaitFor(t, time.Second, func() bool { return d.Stats().Delivered == 4 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int32{0}, first, "events dequeued after replacement go to the new listener")
	assert.Equal(t, []int32{1, 2, 3}, second)
}

func TestListeners_LastRegistrationWins(t *testing.T) {
	t.Parallel()

	l := hook.NewListeners()

	var calls []string
	l.Register("mousemove", func(hook.Event) { calls = append(calls, "first") })
	l.Register("mousemove", func(hook.Event) { calls = append(calls, "second") })

	listener, ok := l.Lookup("mousemove")
	require.True(t, ok)
	listener(hook.Event{})
	assert.Equal(t, []string{"second"}, calls)

	l.Unregister("mousemove")
	_, ok = l.Lookup("mousemove")
	assert.False(t, ok)

	l.Unregister("mousemove")
}
