//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os/user"
	"regexp"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

var errUnsupported = errors.New("named pipes are not supported on this platform")

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

// listenPipe creates a pipe listener restricted to SYSTEM and the current user
func listenPipe(name string) (net.Listener, error) {
	sd, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}

	return winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: sd,
		MessageMode:        false,
		InputBufferSize:    int32(maxFrameBytes),
		OutputBufferSize:   int32(maxFrameBytes),
	})
}

func dialPipe(name string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(name, &timeout)
}

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}

	sid := strings.TrimSpace(current.Uid)
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %q", sid)
	}

	// D:P protected DACL, full access for SYSTEM and the current user only
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
