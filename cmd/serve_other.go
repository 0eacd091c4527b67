//go:build !windows

package cmd

import "errors"

func runServe(*Config) error {
	return errors.New("the passthru daemon only runs on Windows")
}
