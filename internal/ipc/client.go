package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// Send dials pipeName, sends req and waits up to timeout for the response.
// An empty name uses DefaultPipeName. A zero timeout allows for the default
// remote-thread timeout on the daemon.
func Send(pipeName string, req Request, timeout time.Duration) (Response, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}

	conn, err := dialPipe(pipeName, timeouts.PipeDialTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", pipeName, err)
	}
	defer conn.Close()

	return RoundTrip(conn, req, timeout)
}

// RoundTrip writes req on conn and reads one response frame within timeout
func RoundTrip(conn net.Conn, req Request, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = timeouts.PipeExchangeTimeout(timeouts.RemoteThreadTimeout)
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(conn, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := readFrame(newFrameReader(conn), &resp); err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}

	if resp.ID != "" && req.ID != "" && resp.ID != req.ID {
		return Response{}, fmt.Errorf("response id %s does not match request %s", resp.ID, req.ID)
	}

	return resp, nil
}

// IsConnectionError reports whether err means the daemon is not reachable
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, errUnsupported) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}

	return false
}
