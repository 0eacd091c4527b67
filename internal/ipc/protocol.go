// Package ipc carries toggle and status commands from the CLI to the daemon
// over a per-user named pipe, one newline-terminated JSON frame each way.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Commands understood by the daemon
const (
	CommandToggle = "toggle"
	CommandStatus = "status"
)

// PipeNameEnv overrides the default pipe name when it matches pipeNamePattern
const PipeNameEnv = "PASSTHRU_PIPE"

const (
	defaultPipePrefix = `\\.\pipe\passthru-`
	maxFrameBytes     = 64 * 1024
)

var (
	pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\passthru-[a-z0-9._-]{1,128}$`)
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)
)

// Request is one command sent to the daemon
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Window  uint64 `json:"hwnd,omitempty"`
	Ignore  bool   `json:"ignore,omitempty"`
	Forward bool   `json:"forward,omitempty"`
}

// Registration describes one window with an installed bridge
type Registration struct {
	Window uint64 `json:"hwnd"`
	Target uint64 `json:"target"`
	Pid    uint32 `json:"pid"`
}

// Response answers one Request
type Response struct {
	ID            string         `json:"id"`
	OK            bool           `json:"ok"`
	Error         string         `json:"error,omitempty"`
	Registrations []Registration `json:"registrations,omitempty"`
	Delivered     uint64         `json:"delivered"`
	Dropped       uint64         `json:"dropped"`
}

// Handler executes a request on the daemon side
type Handler interface {
	Execute(ctx context.Context, req Request) Response
}

// NewRequest creates a request with a fresh ID
func NewRequest(command string) Request {
	return Request{ID: uuid.NewString(), Command: command}
}

// Failure builds an error response for req
func Failure(req Request, err error) Response {
	return Response{ID: req.ID, OK: false, Error: err.Error()}
}

// DefaultPipeName returns the per-user pipe, or PASSTHRU_PIPE when valid
func DefaultPipeName() string {
	if v := strings.TrimSpace(os.Getenv(PipeNameEnv)); v != "" && pipeNamePattern.MatchString(v) {
		return v
	}

	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}

	return defaultPipePrefix + sanitizeUsername(username)
}

func sanitizeUsername(name string) string {
	// DOMAIN\user -> user
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}

	name = unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	if len(name) > 128 {
		name = name[:128]
	}

	return name
}

func writeFrame(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func readFrame(reader *bufio.Reader, v any) error {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}

	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return io.EOF
		}
	} else if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	return nil
}

func newFrameReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, maxFrameBytes+1)
}
