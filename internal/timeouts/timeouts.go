// Package timeouts defines timeout and delay constants for remote calls,
// the hook thread and the control pipe.
package timeouts

import "time"

const (
	// Remote Calls

	// RemoteThreadTimeout bounds the wait for a remote thread (module load
	// or companion entry point) to finish inside the target process. A
	// hung target would otherwise stall the caller forever.
	RemoteThreadTimeout = 10 * time.Second

	// MinRemoteThreadTimeout is the smallest timeout accepted from config.
	MinRemoteThreadTimeout = 100 * time.Millisecond

	// Hook Thread

	// HookStartTimeout is the maximum time to wait for the hook thread to
	// install the low-level mouse hook and report back.
	HookStartTimeout = 5 * time.Second

	// HookStopTimeout is the maximum time to wait for the hook thread's
	// message loop to exit after WM_QUIT is posted.
	HookStopTimeout = 2 * time.Second

	// ConsumerStopTimeout is the maximum time Stop waits for the dispatch
	// consumer to finish the listener call in progress.
	ConsumerStopTimeout = 2 * time.Second

	// Control Pipe

	// PipeDialTimeout is the maximum time a client waits to connect to
	// the daemon's named pipe.
	PipeDialTimeout = 3 * time.Second

	// pipeSlack covers framing and scheduling on top of the remote calls.
	pipeSlack = 5 * time.Second
)

// PipeExchangeTimeout bounds a single request/response exchange on the
// client side when the daemon waits up to remote for each remote thread. A
// toggle runs at most two remote calls.
func PipeExchangeTimeout(remote time.Duration) time.Duration {
	return 2*remote + pipeSlack
}

// PipeConnTimeout is the server-side deadline for one connection. It
// outlasts the client's exchange deadline.
func PipeConnTimeout(remote time.Duration) time.Duration {
	return PipeExchangeTimeout(remote) + pipeSlack
}

// ShutdownTimeout bounds removing bridges at daemon shutdown. Removals run
// one after another, each one remote call.
func ShutdownTimeout(remote time.Duration, bridges int) time.Duration {
	if bridges < 1 {
		bridges = 1
	}
	return time.Duration(bridges+1) * remote
}
