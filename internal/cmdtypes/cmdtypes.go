// Package cmdtypes provides shared types for the cmd package and its sub-packages.
// It is separate from internal/cmd to avoid import cycles between internal/cmd
// and its sub-packages (internal/cmd/assets, internal/cmd/config, ...).
package cmdtypes

import (
	"github.com/dbtlearn/orchestrator/internal/config"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// GlobalConfig holds CLI-wide configuration resolved during PersistentPreRunE.
// It is populated once at startup and passed explicitly into every sub-command
// constructor.
type GlobalConfig struct {
	Config     *config.Config
	Resolved   *config.ResolvedConfig
	ConfigPath string // resolved --config path
	Verbose    bool

	// ConfigErr is set when the config file could not be loaded or is
	// invalid. Config then holds defaults, and commands that run the
	// project refuse to start.
	ConfigErr error
}

// Exit codes, aliased from internal/errors.
const (
	ExitSuccess         = oerrors.ExitSuccess
	ExitGeneralError    = oerrors.ExitGeneralError
	ExitValidationError = oerrors.ExitValidationError
	ExitNotFound        = oerrors.ExitNotFound
	ExitVersionMismatch = oerrors.ExitVersionMismatch
	ExitToolFailed      = oerrors.ExitToolFailed
)

// ExitError is a type alias to internal/errors.ExitError.
type ExitError = oerrors.ExitError
