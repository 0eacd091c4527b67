package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

const (
	maxConcurrentConnections = 8
	connSlotAcquireTimeout   = 5 * time.Second
)

// Server accepts one request per connection and answers it through a Handler
type Server struct {
	log         logger.LoggerInterface
	name        string
	handler     Handler
	connTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	started  bool
	wg       sync.WaitGroup
	slots    chan struct{}
}

// NewServer creates a server for pipeName. An empty name uses DefaultPipeName.
// remoteTimeout is the daemon's remote-thread timeout and sizes the
// per-connection deadline; zero means the default.
func NewServer(log logger.LoggerInterface, pipeName string, handler Handler, remoteTimeout time.Duration) *Server {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}

	if remoteTimeout <= 0 {
		remoteTimeout = timeouts.RemoteThreadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		log:         log,
		name:        pipeName,
		handler:     handler,
		connTimeout: timeouts.PipeConnTimeout(remoteTimeout),
		ctx:         ctx,
		cancel:      cancel,
		slots:       make(chan struct{}, maxConcurrentConnections),
	}
}

// PipeName returns the pipe the server listens on
func (s *Server) PipeName() string {
	return s.name
}

// Start listens on the named pipe and serves it in the background
func (s *Server) Start() error {
	listener, err := listenPipe(s.name)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.name, err)
	}

	return s.Serve(listener)
}

// Serve serves listener in the background until Stop
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("pipe server already started")
	}

	if s.handler == nil {
		return errors.New("pipe server requires a handler")
	}

	s.listener = listener
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(listener)
	}()

	s.log.Debug("Control pipe listening", slog.String("pipe", s.name))
	return nil
}

// Stop closes the listener and waits for in-flight requests
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}

	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(listener net.Listener) {
	failures := 0

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			failures++
			if failures > 10 {
				s.log.Warn("Control pipe accept keeps failing", slog.Int("count", failures), slog.Any("error", err))
				time.Sleep(500 * time.Millisecond)
			} else {
				s.log.Debug("Control pipe accept failed", slog.Any("error", err))
			}
			continue
		}
		failures = 0

		if !s.acquireSlot() {
			s.writeResponse(conn, Response{Error: "server busy, try again later"})
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.releaseSlot()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.connTimeout)); err != nil {
		s.log.Warn("Failed to set control connection deadline", slog.Any("error", err))
		return
	}

	var req Request
	err := readFrame(newFrameReader(conn), &req)
	if errors.Is(err, io.EOF) {
		s.log.Debug("Control client disconnected without a request")
		return
	}

	if err != nil {
		s.writeResponse(conn, Failure(req, fmt.Errorf("invalid request: %w", err)))
		return
	}

	s.log.Debug("Control request received",
		slog.String("id", req.ID),
		slog.String("command", req.Command),
		slog.String("hwnd", fmt.Sprintf("%#x", req.Window)),
	)

	resp := s.handler.Execute(s.ctx, req)
	resp.ID = req.ID
	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	if err := writeFrame(conn, resp); err != nil {
		s.log.Debug("Failed to write control response", slog.Any("error", err))
	}
}

func (s *Server) acquireSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
		return true
	case <-timer.C:
		s.log.Warn("Control pipe connection slots exhausted, rejecting client")
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) releaseSlot() {
	select {
	case <-s.slots:
	default:
	}
}
