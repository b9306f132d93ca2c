package version

import "fmt"

// Version is set at build time via -ldflags "-X agentq/internal/version.Version=..."
var Version = "dev"

// Info returns a human-readable version string.
func Info() string {
	return fmt.Sprintf("agentq %s", Version)
}
