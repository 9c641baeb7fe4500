// Package version carries build metadata stamped in with
// -ldflags "-X github.com/goclaw/manifest/pkg/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info is the build metadata reported by /status.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}

// UserAgent identifies the proxy to upstream providers.
func UserAgent() string {
	return "manifest/" + Version
}

// String is the multi-line banner printed by the version command.
func String() string {
	return fmt.Sprintf("Manifest - Complexity-Tier Routing Proxy\nVersion:    %s\nBuild Time: %s\nGit Commit: %s\nGo Version: %s\n",
		Version, BuildTime, GitCommit, GoVersion)
}
