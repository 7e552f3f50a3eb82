// Package version holds build version information for openclaw-memory.
package version

// Version is the current release version.
// Overridden at build time via -ldflags "-X github.com/openclaw/openclaw-memory/pkg/version.Version=v1.2.3".
var Version = "0.3.0-dev"

// UserAgent returns the identifier sent to embedding providers.
func UserAgent() string {
	return "openclaw-memory/" + Version
}
