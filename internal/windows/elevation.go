//go:build windows

package windows

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// IsElevated reports whether the current process token is elevated. Bridges
// can only be installed into elevated targets from an elevated daemon.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

func RelaunchAsAdmin() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Check if running via 'go run' (exe will be in temp dir)
	if strings.Contains(exe, "go-build") {
		return fmt.Errorf("cannot relaunch when run via 'go run', please build the executable first with: go build -o passthru.exe")
	}

	// Build args string (excluding the exe name)
	args := strings.Join(os.Args[1:], " ")

	// The companion path is relative to the working directory, so the
	// elevated instance must start in the same one.
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	return ShellExecute(0, "runas", exe, args, cwd, windows.SW_SHOWNORMAL)
}

// ShellExecute executes a file using the Windows shell
func ShellExecute(hwnd uintptr, verb, file, args, cwd string, showCmd int32) error {
	var verbPtr, argsPtr, cwdPtr *uint16
	var err error

	if verb != "" {
		if verbPtr, err = windows.UTF16PtrFromString(verb); err != nil {
			return err
		}
	}

	filePtr, err := windows.UTF16PtrFromString(file)
	if err != nil {
		return err
	}

	if args != "" {
		if argsPtr, err = windows.UTF16PtrFromString(args); err != nil {
			return err
		}
	}

	if cwd != "" {
		if cwdPtr, err = windows.UTF16PtrFromString(cwd); err != nil {
			return err
		}
	}

	if err := windows.ShellExecute(windows.Handle(hwnd), verbPtr, filePtr, argsPtr, cwdPtr, showCmd); err != nil {
		return fmt.Errorf("shell execute failed: %w", err)
	}

	return nil
}
