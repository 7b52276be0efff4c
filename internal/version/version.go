// Package version holds build information set with -ldflags at link time.
package version

import "fmt"

var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("picoalign %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
