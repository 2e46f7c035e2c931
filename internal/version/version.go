// Package version provides version information for the dbtlearn CLI.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Build-time variables set via ldflags.
var (
	// Version is the CLI version (set via ldflags).
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// CUESDKVersion is the version of the CUE SDK the config schema is
// evaluated with.
const CUESDKVersion = "v0.15.4"

// MinDBTVersion is the oldest dbt-core whose manifest layout is supported.
const MinDBTVersion = "1.5.0"

// Info contains version information.
type Info struct {
	Version       string `json:"version"`
	GitCommit     string `json:"gitCommit"`
	BuildDate     string `json:"buildDate"`
	GoVersion     string `json:"goVersion"`
	CUESDKVersion string `json:"cueSDKVersion"`
}

// DBTBinaryInfo describes the dbt executable found on the system.
type DBTBinaryInfo struct {
	// Version is the installed dbt-core version.
	Version string `json:"version"`

	// Path is the resolved executable path.
	Path string `json:"path"`

	// Plugins lists installed adapters as "name version".
	Plugins []string `json:"plugins,omitempty"`

	// Compatible reports whether Version is at least MinDBTVersion.
	Compatible bool `json:"compatible"`

	// Found reports whether the executable was found.
	Found bool `json:"found"`

	// Message explains the compatibility verdict.
	Message string `json:"message,omitempty"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		CUESDKVersion: CUESDKVersion,
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("dbtlearn:\n  Version:  %s\n  Build ID: %s/%s\n  Go:       %s\n  CUE SDK:  %s",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.CUESDKVersion)
}

// DBTVersionCompatible reports whether binaryVersion is at least minVersion.
// Only MAJOR.MINOR are compared and the MAJOR components must match.
func DBTVersionCompatible(minVersion, binaryVersion string) bool {
	return CompatibilityMessage(minVersion, binaryVersion) == "compatible"
}

// CompatibilityMessage explains whether binaryVersion satisfies minVersion.
func CompatibilityMessage(minVersion, binaryVersion string) string {
	minMajor, minMinor, ok1 := majorMinor(minVersion)
	major, minor, ok2 := majorMinor(binaryVersion)
	if !ok1 || !ok2 {
		return "incompatible - invalid version format"
	}
	if major != minMajor {
		return "incompatible - MAJOR version mismatch"
	}
	if minor < minMinor {
		return fmt.Sprintf("incompatible - requires dbt-core >= %d.%d", minMajor, minMinor)
	}
	return "compatible"
}

func majorMinor(v string) (int, int, bool) {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// String returns a human-readable dbt binary info string.
func (d DBTBinaryInfo) String() string {
	if !d.Found {
		return "  Core Version: not found\n  Binary Path:  -"
	}

	compat := "compatible"
	if !d.Compatible {
		compat = d.Message
	}

	s := fmt.Sprintf("  Core Version: %s (%s)\n  Binary Path:  %s", d.Version, compat, d.Path)
	for _, p := range d.Plugins {
		s += "\n  Plugin:       " + p
	}
	return s
}

// FullVersionString returns complete version information including dbt.
func FullVersionString(info Info, dbtInfo DBTBinaryInfo) string {
	return fmt.Sprintf("%s\n\ndbt:\n%s", info.String(), dbtInfo.String())
}
