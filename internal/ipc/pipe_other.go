//go:build !windows

package ipc

import (
	"errors"
	"net"
	"time"
)

var errUnsupported = errors.New("named pipes are not supported on this platform")

func listenPipe(string) (net.Listener, error) {
	return nil, errUnsupported
}

func dialPipe(string, time.Duration) (net.Conn, error) {
	return nil, errUnsupported
}
