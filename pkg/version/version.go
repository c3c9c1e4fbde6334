package version

import "fmt"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/shellyfs/shellyfs/pkg/version.Version=v1.0.0 \
//	  -X github.com/shellyfs/shellyfs/pkg/version.GitCommit=abc1234 \
//	  -X github.com/shellyfs/shellyfs/pkg/version.BuildDate=2026-01-01"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a single human-readable line summarizing the build.
func Info() string {
	return fmt.Sprintf("shellyfsd %s (%s, built %s)", Version, GitCommit, BuildDate)
}
