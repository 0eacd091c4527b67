// Package version provides build version information.
package version

import "fmt"

// Injected at build time via -ldflags "-X".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Info describes the running build.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Get returns the build information.
func Get() Info {
	return Info{Version: version, Commit: commit, Date: date}
}

// GetVersion returns the semantic version string.
func GetVersion() string {
	return version
}

// String renders the version with commit and build date.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}
