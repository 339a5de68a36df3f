// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/longkey1/chatc/internal/version.Version=v1.2.3 ..."
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Short returns the version number.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// Info returns the full version report.
func Info() string {
	commit := CommitSHA
	if commit == "unknown" {
		commit = vcsRevision()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "chatc %s\n", Short())
	fmt.Fprintf(&b, "  Commit:     %s\n", commit)
	fmt.Fprintf(&b, "  Built:      %s\n", BuildTime)
	fmt.Fprintf(&b, "  Go version: %s\n", runtime.Version())
	fmt.Fprintf(&b, "  Platform:   %s/%s", runtime.GOOS, runtime.GOARCH)
	return b.String()
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return CommitSHA
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return CommitSHA
}
