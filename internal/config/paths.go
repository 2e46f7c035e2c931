package config

import (
	"os"
	"path/filepath"
	"strings"
)

// homeDirName is the per-user state directory under $HOME.
const homeDirName = ".dbtlearn"

// Paths holds the per-user locations dbtlearn reads and writes.
type Paths struct {
	HomeDir      string // ~/.dbtlearn
	ConfigFile   string // ~/.dbtlearn/config.yaml
	RunsDatabase string // ~/.dbtlearn/runs.db
}

// DefaultPaths resolves Paths against the current user's home directory.
func DefaultPaths() (*Paths, error) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(userHome, homeDirName)
	return &Paths{
		HomeDir:      dir,
		ConfigFile:   filepath.Join(dir, "config.yaml"),
		RunsDatabase: filepath.Join(dir, "runs.db"),
	}, nil
}

// GetConfigFile returns $DBTLEARN_CONFIG when set, else the default config
// file path.
func GetConfigFile() (string, error) {
	if p := os.Getenv("DBTLEARN_CONFIG"); p != "" {
		return p, nil
	}
	paths, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return paths.ConfigFile, nil
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// ExpandPath replaces a leading "~" or "~/" with the user's home directory.
// Other paths, including "~user/...", are returned unchanged.
func ExpandPath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return path, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if rest == "" {
		return userHome, nil
	}
	return filepath.Join(userHome, rest[1:]), nil
}
