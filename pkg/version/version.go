// Package version holds build information injected with -ldflags.
package version

var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)
