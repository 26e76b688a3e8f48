package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/simonsobs/soauth/internal/version.Version=...".
var (
	App       string = "soauth"
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	BuildOS   string
	BuildArch string
)

// Info is the build description reported by --version and /health.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info, filling gaps from the running binary.
func Get() Info {
	info := Info{
		App:       App,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		Platform:  BuildOS + "/" + BuildArch,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	if BuildOS == "" || BuildArch == "" {
		info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	return info
}

// UserAgent identifies soauth to upstream identity providers.
func UserAgent() string {
	return App + "/" + Get().Version
}

// Fprint writes the build info in the --version format.
func Fprint(w io.Writer) {
	info := Get()
	fmt.Fprintf(w, "%s version %s\n", info.App, info.Version)
	if info.Commit != "" {
		fmt.Fprintf(w, "Git commit: %s\n", info.Commit)
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, "Build time: %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Built for: %s\n", info.Platform)
}
