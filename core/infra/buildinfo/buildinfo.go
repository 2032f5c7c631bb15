// Package buildinfo holds the release identity linked into the shrekd binary:
//
//	go build -ldflags "-X github.com/shrekd/shrekd/core/infra/buildinfo.Version=v1.4.0 \
//	  -X github.com/shrekd/shrekd/core/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"

	"github.com/shrekd/shrekd/core/infra/logging"
)

// Set at link time; the defaults mark a local build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the build as space-separated key=value pairs.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// Banner is the human-readable line printed by --version.
func Banner(binary string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s/%s)",
		binary, Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Log records the build at startup under the daemon's component name.
func Log(service string) {
	logging.Info(service, "starting", "version", Version, "commit", Commit, "date", Date, "go", runtime.Version())
}
