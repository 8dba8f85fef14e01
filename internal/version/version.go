// Package version reports the build version of the yoga binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Effective returns v when the build injected a release version. Otherwise
// it falls back to the module version from `go install module@vX.Y.Z`, then
// to "devel+<revision>[+dirty]" from VCS stamping.
func Effective(v string) string {
	if !IsDevelopmentVersion(v) {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v
	}
	return fromBuildInfo(v, info)
}

func fromBuildInfo(v string, info *debug.BuildInfo) string {
	if mv := info.Main.Version; mv != "" && mv != "(devel)" {
		return mv
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	parts := []string{"devel", rev}
	if dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "+")
}

// IsDevelopmentVersion returns true for non-release versions
func IsDevelopmentVersion(v string) bool {
	switch v {
	case "", "unknown", "dev", "devel":
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

// Get returns the build info for version v
func Get(v string) Info {
	return Info{
		Version:   Effective(v),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("yoga %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}
