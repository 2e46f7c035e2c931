// Package testutil provides test helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FixturePath joins parts onto tests/fixtures, found by walking up from the
// package under test.
func FixturePath(t *testing.T, parts ...string) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for dir := wd; ; {
		root := filepath.Join(dir, "tests", "fixtures")
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return filepath.Join(append([]string{root}, parts...)...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("no tests/fixtures above %s", wd)
		}
		dir = parent
	}
}

// WriteFile writes content to dir/name, creating parent directories, and
// returns the file's path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// CopyFixture copies a fixture directory into a fresh temp dir and returns
// the copy's path.
func CopyFixture(t *testing.T, fixtureName string) string {
	t.Helper()
	dst := t.TempDir()
	if err := os.CopyFS(dst, os.DirFS(FixturePath(t, fixtureName))); err != nil {
		t.Fatalf("failed to copy fixture %s: %v", fixtureName, err)
	}
	return dst
}

// ManifestPath returns the path of the dbtlearn fixture project's manifest.
func ManifestPath(t *testing.T) string {
	t.Helper()
	return FixturePath(t, "dbtlearn", "target", "manifest.json")
}

// FakeDBT writes an executable shell script standing in for dbt and returns
// its path. The script body receives dbt's arguments as "$@".
func FakeDBT(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake dbt scripts need a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "dbt")
	script := "#!/bin/sh\n" + strings.TrimLeft(body, "\n")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake dbt: %v", err)
	}
	return path
}

// JSONLine returns a dbt structured log line for a finished node.
func JSONLine(uniqueID, status string) string {
	resourceType := strings.SplitN(uniqueID, ".", 2)[0]
	return `{"info":{"name":"NodeFinished","code":"Q025","level":"debug","msg":"finished ` + uniqueID +
		`","ts":"2025-03-02T05:00:01.000000Z","invocation_id":"inv-1"},"data":{"node_info":{"unique_id":"` + uniqueID +
		`","resource_type":"` + resourceType + `","node_status":"` + status + `"},"run_result":{"status":"` + status +
		`","execution_time":0.5}}}`
}

// ProjectConfig copies the dbtlearn fixture project and writes a config file
// that points at the copy, the given dbt executable and a fresh run ledger.
// HOME is redirected to a temporary directory. It returns the config file
// and ledger paths.
func ProjectConfig(t *testing.T, executable string) (configPath, dbPath string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	project := CopyFixture(t, "dbtlearn")
	dbPath = filepath.Join(home, "runs.db")
	configPath = WriteFile(t, home, "config.yaml", "project:\n"+
		"  dir: "+project+"\n"+
		"dbt:\n"+
		"  executable: "+executable+"\n"+
		"runs:\n"+
		"  database: "+dbPath+"\n")
	return configPath, dbPath
}
