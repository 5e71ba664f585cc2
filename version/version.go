// Package version carries the build information stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Populated with -ldflags "-X github.com/grovetools/livesync/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	Branch    = "unknown"
	BuildDate = "unknown"
)

// Info holds all the versioning information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build information of the running binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Branch:    Branch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("  Commit:    %s (%s)\n  Built:     %s\n  Go:        %s\n  Platform:  %s",
		i.Commit, i.Branch, i.BuildDate, i.GoVersion, i.Platform)
}

// UserAgent is sent with every request to the dashboard server.
func UserAgent() string {
	return fmt.Sprintf("livesync/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
