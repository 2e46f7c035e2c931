package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var configSchemaCUE []byte

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

// Validator validates configuration against the embedded CUE schema and
// the semantic checks CUE cannot express (cron syntax, time zones, dates).
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator creates a new configuration validator.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(configSchemaCUE, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if def.Err() != nil {
		return nil, fmt.Errorf("looking up #Config: %w", def.Err())
	}

	return &Validator{
		ctx:    ctx,
		schema: def,
	}, nil
}

// Validate validates a loaded configuration.
func (v *Validator) Validate(cfg *Config) error {
	errs := v.validateValue(v.ctx.Encode(cfg))
	errs = append(errs, semanticErrors(cfg)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateFile validates the raw configuration file at path. Unknown keys
// are reported, which loading through viper would silently drop.
func (v *Validator) ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ValidationErrors{{Field: "(file)", Message: fmt.Sprintf("invalid YAML: %v", err)}}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	errs := v.validateValue(v.ctx.Encode(raw))
	if len(errs) > 0 {
		return errs
	}

	loader := NewLoader()
	cfg, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	if errs := semanticErrors(cfg); len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) validateValue(val cue.Value) ValidationErrors {
	if val.Err() != nil {
		return toValidationErrors(val.Err())
	}
	unified := v.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) ValidationErrors {
	var errs ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "(root)"
		}
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}
	return errs
}

// semanticErrors checks values whose validity depends on Go parsers.
func semanticErrors(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			errs = append(errs, ValidationError{
				Field:   "schedule.cron",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	zones := []struct {
		field string
		value string
	}{
		{"schedule.timezone", cfg.Schedule.Timezone},
		{"partitions.timezone", cfg.Partitions.Timezone},
	}
	for _, z := range zones {
		if z.value == "" {
			continue
		}
		if _, err := time.LoadLocation(z.value); err != nil {
			errs = append(errs, ValidationError{
				Field:   z.field,
				Message: fmt.Sprintf("unknown time zone %q", z.value),
			})
		}
	}

	if cfg.Partitions.Start != "" {
		if _, err := time.Parse("2006-01-02", cfg.Partitions.Start); err != nil {
			errs = append(errs, ValidationError{
				Field:   "partitions.start",
				Message: "must be a calendar date in YYYY-MM-DD format",
			})
		}
	}

	return errs
}
