package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version of notecrew.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/hrygo/notecrew/internal/version.Version=v0.3.0"
//
// Semantic versioning: https://semver.org/
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
// Set via ldflags: -X github.com/hrygo/notecrew/internal/version.GitCommit=$(git rev-parse HEAD)
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
// Set via ldflags: -X github.com/hrygo/notecrew/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)
var BuildTime = "unknown"

// Info is the build metadata reported by `notecrew version` and /health/live.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// GetCurrentVersion returns the version reported for mode. Development
// builds carry a "-dev" prerelease suffix.
func GetCurrentVersion(mode string) string {
	v := Canonical(Version)
	if mode == "prod" || semver.Prerelease(v) != "" {
		return strings.TrimPrefix(v, "v")
	}
	return strings.TrimPrefix(v, "v") + "-dev"
}

// Canonical returns version as a "vMAJOR.MINOR.PATCH[-pre]" string, or
// "v0.0.0-dev" when it is not valid semver. The "v" prefix is optional.
func Canonical(version string) string {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return "v0.0.0-dev"
	}
	return semver.Canonical(version)
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(Canonical(version), Canonical(target)) > -1
}

func shortCommit() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return ""
	}
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}

// Current returns the build metadata for mode.
func Current(mode string) Info {
	info := Info{Version: GetCurrentVersion(mode), Commit: shortCommit(), Mode: mode}
	if BuildTime != "unknown" {
		info.BuildTime = BuildTime
	}
	return info
}

// String returns the version string with optional commit hash.
func String() string {
	v := Version
	if c := shortCommit(); c != "" {
		v = fmt.Sprintf("%s-%s", v, c)
	}
	return v
}

// StringFull returns the complete version information including build metadata.
func StringFull() string {
	parts := []string{fmt.Sprintf("Version=%s", Version)}
	if c := shortCommit(); c != "" {
		parts = append(parts, fmt.Sprintf("Commit=%s", c))
	}
	if BuildTime != "" && BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("BuildTime=%s", BuildTime))
	}
	return strings.Join(parts, " ")
}
