// Package version exposes build metadata injected with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/leadscout-api/internal/version.Version=1.2.0 \
//	  -X github.com/jmylchreest/leadscout-api/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "0.0.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
	Dirty   = "false"
)

// Info is the build metadata served by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the version with a -dirty suffix when applicable.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// String is the startup banner form.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s", i.Short(), i.Commit, i.Date)
}

// UserAgent is sent by the site crawler.
func (i Info) UserAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (compatible; LeadScout/%s)", i.Short())
}
