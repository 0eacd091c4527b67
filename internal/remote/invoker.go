package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

// Invoker calls exported functions of the companion module inside a
// foreign process, one pointer-sized argument per call.
type Invoker struct {
	log      logger.LoggerInterface
	procs    interfaces.ProcessAPI
	resolver SymbolResolver
	timeout  time.Duration
}

// NewInvoker creates an invoker. A zero timeout uses timeouts.RemoteThreadTimeout.
func NewInvoker(log logger.LoggerInterface, procs interfaces.ProcessAPI, resolver SymbolResolver, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = timeouts.RemoteThreadTimeout
	}

	return &Invoker{
		log:      log,
		procs:    procs,
		resolver: resolver,
		timeout:  timeout,
	}
}

// Call runs symbol from modulePath on a remote thread in process and returns
// the thread's exit code. When arg is non-nil its value is copied into the
// foreign process and the thread receives a pointer to the copy.
//
// A symbol the module does not export yields (0, nil) and a warning.
func (i *Invoker) Call(ctx context.Context, process interfaces.Handle, modulePath, symbol string, arg *uintptr) (uint32, error) {
	addr, release, err := i.resolver.Resolve(process, modulePath, symbol)
	if err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			i.log.Warn("Companion export unavailable",
				slog.String("symbol", symbol),
				slog.String("module", modulePath),
				slog.Any("error", err),
			)
			return 0, nil
		}

		return 0, &InvocationError{Op: "resolve", Symbol: symbol, Err: err}
	}
	defer release()

	var block *Block
	var param uintptr

	if arg != nil {
		block, err = Allocate(i.procs, process, PointerSize, interfaces.PageReadWrite)
		if err != nil {
			return 0, &InvocationError{Op: "allocate argument", Symbol: symbol, Err: err}
		}

		if err := block.WritePointer(*arg); err != nil {
			return 0, &InvocationError{Op: "write argument", Symbol: symbol, Err: errors.Join(err, block.Free())}
		}

		param = block.Address()
	}

	i.log.Debug("Invoking companion export",
		slog.String("symbol", symbol),
		slog.String("address", fmt.Sprintf("%#x", addr)),
	)

	code, err := runThread(ctx, i.procs, process, "call "+symbol, addr, param, i.timeout)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			if block != nil {
				block.Abandon()
				i.log.Warn("Remote call timed out, leaving argument memory in place",
					slog.String("symbol", symbol),
					slog.String("scratch", fmt.Sprintf("%#x", block.Address())),
				)
			}
			return 0, err
		}

		return 0, &InvocationError{Op: "run thread", Symbol: symbol, Err: errors.Join(err, block.Free())}
	}

	if err := block.Free(); err != nil {
		return 0, &InvocationError{Op: "free argument", Symbol: symbol, Err: err}
	}

	i.log.Debug("Companion export returned", slog.String("symbol", symbol), slog.Uint64("code", uint64(code)))

	return code, nil
}
