package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/passthru/internal/config"
	"github.com/Norgate-AV/passthru/internal/ipc"
	"github.com/Norgate-AV/passthru/internal/timeouts"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle --hwnd <hwnd> [--ignore] [--forward]",
	Short: "Make an overlay window click-through and optionally forward mouse moves",
	Long: `Sends a toggle to the running daemon.

The window is given with --hwnd or as the only argument, in decimal or
0x-prefixed hexadecimal. With --ignore the window stops receiving mouse
input. With --forward the daemon also installs the bridge in the window
beneath and forwards mouse moves to it. Run without flags to restore the
window.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runToggle,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed bridges and forwarding counters",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// errDaemonNotRunning is reported when the control pipe cannot be reached
var errDaemonNotRunning = errors.New("daemon is not running, start it with 'passthru serve'")

// sendFunc is replaced in tests
var sendFunc = ipc.Send

func init() {
	toggleCmd.Flags().String("hwnd", "", "overlay window handle (decimal or 0x-prefixed hex)")
	toggleCmd.Flags().BoolP("ignore", "i", false, "ignore mouse input on the window")
	toggleCmd.Flags().BoolP("forward", "f", false, "forward mouse moves to the window beneath")
}

// parseHWND accepts decimal or 0x-prefixed hexadecimal window handles
func parseHWND(s string) (uint64, error) {
	hwnd, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window handle %q: %w", s, err)
	}

	if hwnd == 0 {
		return 0, fmt.Errorf("invalid window handle %q: must be non-zero", s)
	}

	return hwnd, nil
}

// windowArg returns the handle from --hwnd or the positional argument
func windowArg(cmd *cobra.Command, args []string) (uint64, error) {
	flag := getStringFlag(cmd, "hwnd")

	switch {
	case flag != "" && len(args) > 0:
		return 0, errors.New("give the window handle either with --hwnd or as an argument, not both")
	case flag != "":
		return parseHWND(flag)
	case len(args) > 0:
		return parseHWND(args[0])
	default:
		return 0, errors.New("a window handle is required (--hwnd)")
	}
}

// clientSettings returns the pipe name and exchange timeout from the same
// config file the daemon reads. --pipe overrides the file.
func clientSettings(cfg *Config) (string, time.Duration, error) {
	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return "", 0, err
	}

	pipeName := settings.PipeName
	if cfg.PipeName != "" {
		pipeName = cfg.PipeName
	}

	return pipeName, timeouts.PipeExchangeTimeout(settings.Remote.Timeout), nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	hwnd, err := windowArg(cmd, args)
	if err != nil {
		return err
	}

	cfg := NewConfigFromFlags(cmd)

	req := ipc.NewRequest(ipc.CommandToggle)
	req.Window = hwnd
	req.Ignore = getBoolFlag(cmd, "ignore")
	req.Forward = getBoolFlag(cmd, "forward")

	resp, err := send(cfg, req)
	if err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), resp)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := NewConfigFromFlags(cmd)

	resp, err := send(cfg, ipc.NewRequest(ipc.CommandStatus))
	if err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), resp)
	return nil
}

// send performs one request and turns a failed response into an error
func send(cfg *Config, req ipc.Request) (ipc.Response, error) {
	pipeName, timeout, err := clientSettings(cfg)
	if err != nil {
		return ipc.Response{}, err
	}

	resp, err := sendFunc(pipeName, req, timeout)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return ipc.Response{}, fmt.Errorf("%w: %v", errDaemonNotRunning, err)
		}

		return ipc.Response{}, err
	}

	if !resp.OK {
		return resp, fmt.Errorf("%s failed: %s", req.Command, resp.Error)
	}

	return resp, nil
}

func printStatus(w io.Writer, resp ipc.Response) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = green.Fprintln(w, "OK")

	if len(resp.Registrations) == 0 {
		fmt.Fprintln(w, "No bridges installed")
	}

	for _, reg := range resp.Registrations {
		fmt.Fprintf(w, "  window %#x -> target %#x (pid %d)\n", reg.Window, reg.Target, reg.Pid)
	}

	fmt.Fprintf(w, "Events delivered: %d\n", resp.Delivered)

	if resp.Dropped > 0 {
		_, _ = yellow.Fprintf(w, "Events dropped: %d\n", resp.Dropped)
	} else {
		fmt.Fprintf(w, "Events dropped: %d\n", resp.Dropped)
	}
}
