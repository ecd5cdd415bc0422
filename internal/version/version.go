// Package version holds build metadata reported by /version.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/bissquit/pushgarden/internal/version.Version=1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
