// Package version carries build identity, injected via -ldflags.
package version

var (
	// Version is the release tag of the riskwatcher binary.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)
