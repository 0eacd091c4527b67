// Package hook turns low-level mouse hook callbacks into events delivered to
// named listeners on a single consumer goroutine.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// Mouse messages seen by a low-level mouse hook
const (
	WM_MOUSEMOVE  = 0x0200
	WM_MOUSELEAVE = 0x02A3
)

// EventMouseMove names the listener that receives WM_MOUSEMOVE events
const EventMouseMove = "mousemove"

// DefaultQueueCapacity bounds the number of events waiting for the consumer
const DefaultQueueCapacity = 8

// Event is a mouse event copied out of the hook callback
type Event struct {
	Message uint32
	Point   interfaces.Point
	Flags   uint32
	Time    uint32
}

// Name returns the listener name for the event's message
func (e Event) Name() string {
	switch e.Message {
	case WM_MOUSEMOVE:
		return EventMouseMove
	default:
		return fmt.Sprintf("message:0x%04x", e.Message)
	}
}

// Stats counts events through the pipeline
type Stats struct {
	Enqueued  uint64
	Delivered uint64
	Dropped   uint64
	Panics    uint64
}

// Dispatcher owns the bounded queue between the hook thread and the consumer
type Dispatcher struct {
	log       logger.LoggerInterface
	listeners *Listeners
	queue     chan Event

	enqueued  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with a queue of the given capacity
func NewDispatcher(log logger.LoggerInterface, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Dispatcher{
		log:       log,
		listeners: NewListeners(),
		queue:     make(chan Event, capacity),
	}
}

// Listeners returns the dispatcher's listener table
func (d *Dispatcher) Listeners() *Listeners {
	return d.listeners
}

// HandleMouse is called on the hook thread for every low-level mouse event.
// It never blocks: when the queue is full the event is dropped.
func (d *Dispatcher) HandleMouse(code int32, msg uint32, info interfaces.MouseInfo) {
	if code < 0 {
		return
	}

	switch msg {
	case WM_MOUSEMOVE:
		ev := Event{Message: msg, Point: info.Point, Flags: info.Flags, Time: info.Time}

		select {
		case d.queue <- ev:
			d.enqueued.Add(1)
		default:
			d.dropped.Add(1)
		}
	case WM_MOUSELEAVE:
		d.log.Trace("Mouse left window", slog.Int("x", int(info.Point.X)), slog.Int("y", int(info.Point.Y)))
	}
}

// Start runs the consumer until ctx is cancelled or Stop is called
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		return errors.New("dispatcher already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.consume(ctx, d.done)

	d.log.Debug("Hook dispatcher started", slog.Int("capacity", cap(d.queue)))
	return nil
}

// Stop cancels the consumer and waits for it to finish its current event
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-time.After(timeouts.ConsumerStopTimeout):
		return fmt.Errorf("hook consumer did not stop within %s", timeouts.ConsumerStopTimeout)
	}

	stats := d.Stats()
	d.log.Debug("Hook dispatcher stopped",
		slog.Uint64("enqueued", stats.Enqueued),
		slog.Uint64("delivered", stats.Delivered),
		slog.Uint64("dropped", stats.Dropped),
	)

	return nil
}

// Stats returns a snapshot of the pipeline counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:  d.enqueued.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panics:    d.panics.Load(),
	}
}

func (d *Dispatcher) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	var reportedDrops uint64

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.deliver(ev)

			// Drops are counted on the hook thread and reported here, off the hot path
			if dropped := d.dropped.Load(); dropped != reportedDrops {
				d.log.Debug("Hook queue saturated, events dropped",
					slog.Uint64("dropped", dropped-reportedDrops),
					slog.Uint64("total", dropped),
				)
				reportedDrops = dropped
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	listener, ok := d.listeners.Lookup(ev.Name())
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("Listener panicked", slog.String("event", ev.Name()), slog.Any("panic", r))
		}
	}()

	listener(ev)
	d.delivered.Add(1)
}
