package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// Loader loads a module into a foreign process by running the system
// library loader on a remote thread.
type Loader struct {
	log     logger.LoggerInterface
	procs   interfaces.ProcessAPI
	modules interfaces.ModuleAPI
	timeout time.Duration

	entryOnce sync.Once
	entry     uintptr
	entryErr  error
}

// NewLoader creates a loader. A zero timeout uses timeouts.RemoteThreadTimeout.
func NewLoader(log logger.LoggerInterface, procs interfaces.ProcessAPI, modules interfaces.ModuleAPI, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = timeouts.RemoteThreadTimeout
	}

	return &Loader{
		log:     log,
		procs:   procs,
		modules: modules,
		timeout: timeout,
	}
}

// Load loads the module at path into process and returns the module handle
// reported by the remote loader, truncated to 32 bits.
func (l *Loader) Load(ctx context.Context, process interfaces.Handle, path string) (uintptr, error) {
	entry, err := l.loadLibraryEntry()
	if err != nil {
		return 0, &LoaderError{Op: "resolve loader entry", Path: path, Err: err}
	}

	encoded := encodeUTF16(path)

	block, err := Allocate(l.procs, process, uintptr(len(encoded)), interfaces.PageExecuteReadWrite)
	if err != nil {
		return 0, &LoaderError{Op: "allocate path", Path: path, Err: err}
	}

	if err := block.Write(encoded); err != nil {
		return 0, &LoaderError{Op: "write path", Path: path, Err: errors.Join(err, block.Free())}
	}

	l.log.Debug("Starting remote loader thread",
		slog.String("path", path),
		slog.String("scratch", fmt.Sprintf("%#x", block.Address())),
	)

	code, err := runThread(ctx, l.procs, process, "load "+path, entry, block.Address(), l.timeout)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			block.Abandon()
			l.log.Warn("Remote loader thread timed out, leaving scratch memory in place",
				slog.String("path", path),
				slog.String("scratch", fmt.Sprintf("%#x", block.Address())),
				slog.Duration("timeout", timeoutErr.Timeout),
			)
			return 0, err
		}

		return 0, &LoaderError{Op: "run loader thread", Path: path, Err: errors.Join(err, block.Free())}
	}

	if err := block.Free(); err != nil {
		return 0, &LoaderError{Op: "free path", Path: path, Err: err}
	}

	if code == 0 {
		return 0, &LoaderError{Op: "load", Path: path, Err: errors.New("remote loader returned a null module handle")}
	}

	l.log.Debug("Companion module loaded", slog.String("path", path), slog.String("module", fmt.Sprintf("%#x", code)))

	return uintptr(code), nil
}

// loadLibraryEntry resolves LoadLibraryW once. Core system libraries are
// mapped at the same address in every process of a session.
func (l *Loader) loadLibraryEntry() (uintptr, error) {
	l.entryOnce.Do(func() {
		l.entry, l.entryErr = l.modules.LoadLibraryAddress()
		if l.entryErr == nil && l.entry == 0 {
			l.entryErr = errors.New("null loader entry address")
		}
	})

	return l.entry, l.entryErr
}

// encodeUTF16 returns path as NUL-terminated little-endian UTF-16
func encodeUTF16(path string) []byte {
	units := utf16.Encode([]rune(path))
	buf := make([]byte, (len(units)+1)*2)

	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}

	return buf
}
