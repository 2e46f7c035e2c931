// Package cmdutil provides shared command utilities for dbtlearn subcommands.
// It centralizes flag group management, project environment loading and
// output formatting helpers.
package cmdutil

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// OutputFlags holds the output format flag of list commands
// (assets list, partitions list, runs list).
type OutputFlags struct {
	Format string
}

// AddTo registers the output flag on the given cobra command.
func (f *OutputFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Format, "output", "o", string(output.FormatTable),
		"Output format ("+strings.Join(output.ValidFormats(), ", ")+")")
}

// Parse returns the selected format.
func (f *OutputFlags) Parse() (output.Format, error) {
	format, ok := output.ParseFormat(f.Format)
	if !ok {
		return "", fmt.Errorf("%w: invalid output format %q, use %s",
			oerrors.ErrValidation, f.Format, strings.Join(output.ValidFormats(), ", "))
	}
	return format, nil
}

// PartitionRangeFlags holds an inclusive range of partition keys (backfill).
type PartitionRangeFlags struct {
	From string
	To   string
}

// AddTo registers the range flags on the given cobra command.
func (f *PartitionRangeFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.From, "from", "",
		"First partition key, YYYY-MM-DD (default: first partition)")
	cmd.Flags().StringVar(&f.To, "to", "",
		"Last partition key, YYYY-MM-DD (default: latest complete partition)")
}

// Validate checks that the bounds are in the partition key format.
func (f *PartitionRangeFlags) Validate() error {
	for name, v := range map[string]string{"--from": f.From, "--to": f.To} {
		if v == "" {
			continue
		}
		if !partitionKeyLike(v) {
			return fmt.Errorf("%w: %s %q is not a YYYY-MM-DD partition key", oerrors.ErrValidation, name, v)
		}
	}
	return nil
}

func partitionKeyLike(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveGroupName returns the asset group named in args, or def when no
// argument was given.
func ResolveGroupName(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}
