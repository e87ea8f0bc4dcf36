// Package version holds the build identity shown in the About dialog.
package version

// Set at build time, e.g.
// go build -ldflags "-X pdf-studio/internal/version.Version=1.2.0".
var (
	// Version is the release version.
	Version = "0.1.0"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"

	// GitCommit is the abbreviated commit hash.
	GitCommit = "unknown"
)
