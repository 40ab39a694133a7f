// Package version carries build identity stamped in via -ldflags.
package version

import "fmt"

var (
	// Version is the fireline release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single-line description suitable for logs and the
// root API payload.
func String() string {
	return fmt.Sprintf("fireline %s (%s, built %s)", Version, GitSHA, BuildTime)
}
