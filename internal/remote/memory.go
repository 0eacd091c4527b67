// Package remote provides foreign-process memory, module loading and remote
// calls into the companion module.
package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// PointerSize is the size of a remote call argument
const PointerSize = unsafe.Sizeof(uintptr(0))

var errBlockFreed = errors.New("block already freed")

// Block is scratch memory committed inside a foreign process.
// The creating operation owns it and must Free it on every path.
type Block struct {
	api     interfaces.ProcessAPI
	process interfaces.Handle
	addr    uintptr
	size    uintptr
	freed   bool
}

// Allocate commits size bytes in process with the given page protection.
func Allocate(api interfaces.ProcessAPI, process interfaces.Handle, size uintptr, protect uint32) (*Block, error) {
	if size == 0 {
		return nil, errors.New("allocate: zero size")
	}

	addr, err := api.VirtualAllocEx(process, size, protect)
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes: %w", size, err)
	}

	if addr == 0 {
		return nil, fmt.Errorf("allocate %d bytes: null address", size)
	}

	return &Block{api: api, process: process, addr: addr, size: size}, nil
}

// Address returns the block's address in the foreign process
func (b *Block) Address() uintptr { return b.addr }

// Size returns the committed size in bytes
func (b *Block) Size() uintptr { return b.size }

// Write copies data to the start of the block
func (b *Block) Write(data []byte) error {
	if b.freed {
		return errBlockFreed
	}

	if uintptr(len(data)) > b.size {
		return fmt.Errorf("write %d bytes into %d-byte block", len(data), b.size)
	}

	if err := b.api.WriteProcessMemory(b.process, b.addr, data); err != nil {
		return fmt.Errorf("write %d bytes at %#x: %w", len(data), b.addr, err)
	}

	return nil
}

// WritePointer writes v in the foreign process's pointer layout
func (b *Block) WritePointer(v uintptr) error {
	buf := make([]byte, PointerSize)
	if PointerSize == 8 {
		binary.LittleEndian.PutUint64(buf, uint64(v))
	} else {
		binary.LittleEndian.PutUint32(buf, uint32(v))
	}

	return b.Write(buf)
}

// Free releases the block. Calling it again is a no-op.
func (b *Block) Free() error {
	if b == nil || b.freed {
		return nil
	}

	b.freed = true
	if err := b.api.VirtualFreeEx(b.process, b.addr); err != nil {
		return fmt.Errorf("free %#x: %w", b.addr, err)
	}

	return nil
}

// Abandon gives up ownership without freeing, for blocks a still-running
// remote thread may read. Subsequent Free calls are no-ops.
func (b *Block) Abandon() {
	if b != nil {
		b.freed = true
	}
}

// runThread starts a remote thread at start, waits for it and returns its
// exit code. The thread handle is closed on every path.
func runThread(ctx context.Context, api interfaces.ProcessAPI, process interfaces.Handle, op string, start, param uintptr, timeout time.Duration) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	thread, err := api.CreateRemoteThread(process, start, param)
	if err != nil {
		return 0, fmt.Errorf("create remote thread at %#x: %w", start, err)
	}

	budget := waitBudget(ctx, timeout)
	waitErr := api.WaitForThread(thread, budget)

	var code uint32
	var codeErr error
	if waitErr == nil {
		code, codeErr = api.GetExitCodeThread(thread)
	}

	closeErr := api.CloseHandle(thread)

	if waitErr != nil {
		if errors.Is(waitErr, interfaces.ErrWaitTimeout) {
			return 0, &TimeoutError{Op: op, Timeout: budget, Err: errors.Join(waitErr, closeErr)}
		}
		return 0, errors.Join(fmt.Errorf("wait for remote thread: %w", waitErr), closeErr)
	}

	if codeErr != nil {
		return 0, errors.Join(fmt.Errorf("read exit code: %w", codeErr), closeErr)
	}

	if closeErr != nil {
		return 0, fmt.Errorf("close thread handle: %w", closeErr)
	}

	return code, nil
}

// waitBudget shortens timeout to the context deadline, if sooner
func waitBudget(ctx context.Context, timeout time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout
	}

	if left := time.Until(deadline); left < timeout {
		if left < 0 {
			return 0
		}
		return left
	}

	return timeout
}
