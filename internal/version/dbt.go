package version

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// dbtVersionRegex matches versions like "1.8.7" or "1.9.0-b2".
var dbtVersionRegex = regexp.MustCompile(`v?\d+\.\d+\.\d+(?:-?[a-zA-Z0-9.]+)?`)

// pluginRegex matches plugin lines like "  - snowflake: 1.8.4 - Up to date!".
var pluginRegex = regexp.MustCompile(`^\s*-\s*([a-z0-9_-]+):\s*(\d+\.\d+\.\d+\S*)`)

// DetectDBT finds the dbt executable and checks its version.
func DetectDBT(ctx context.Context, executable string) DBTBinaryInfo {
	if executable == "" {
		executable = "dbt"
	}
	path, err := exec.LookPath(executable)
	if err != nil {
		return DBTBinaryInfo{
			Message: executable + " not found in PATH",
		}
	}

	out, err := dbtVersionOutput(ctx, path)
	if err != nil {
		return DBTBinaryInfo{
			Path:    path,
			Found:   true,
			Message: "failed to get dbt version: " + err.Error(),
		}
	}

	v, plugins, err := parseDBTVersion(out)
	if err != nil {
		return DBTBinaryInfo{
			Path:    path,
			Found:   true,
			Message: err.Error(),
		}
	}

	return DBTBinaryInfo{
		Version:    v,
		Path:       path,
		Plugins:    plugins,
		Found:      true,
		Compatible: DBTVersionCompatible(MinDBTVersion, v),
		Message:    CompatibilityMessage(MinDBTVersion, v),
	}
}

func dbtVersionOutput(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// parseDBTVersion extracts the installed core version and plugins from
// `dbt --version` output:
//
//	Core:
//	  - installed: 1.8.7
//	  - latest:    1.9.1 - Update available!
//
//	Plugins:
//	  - snowflake: 1.8.4 - Update available!
func parseDBTVersion(output string) (string, []string, error) {
	var (
		version   string
		plugins   []string
		inPlugins bool
	)
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Plugins:"):
			inPlugins = true
		case strings.HasPrefix(trimmed, "- installed:"):
			version = dbtVersionRegex.FindString(trimmed)
		case inPlugins:
			if m := pluginRegex.FindStringSubmatch(line); m != nil {
				plugins = append(plugins, m[1]+" "+m[2])
			}
		}
	}

	// Older releases print "installed version: 1.4.0" on one line.
	if version == "" {
		version = dbtVersionRegex.FindString(output)
	}
	if version == "" {
		return "", nil, &versionParseError{output: output}
	}
	return strings.TrimPrefix(version, "v"), plugins, nil
}

// versionParseError indicates failure to parse dbt version output.
type versionParseError struct {
	output string
}

func (e *versionParseError) Error() string {
	return "failed to parse dbt version from output: " + e.output
}
