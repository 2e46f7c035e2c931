package assets

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/cmdtypes"
	"github.com/dbtlearn/orchestrator/internal/cmdutil"
	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
	"github.com/dbtlearn/orchestrator/internal/pipeline"
)

type diffOptions struct {
	gc    *cmdtypes.GlobalConfig
	state string
	out   io.Writer
	color bool
}

// NewDiffCmd creates the assets diff command.
func NewDiffCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &diffOptions{gc: gc}

	c := &cobra.Command{
		Use:   "diff",
		Short: "Compare assets against a previous manifest",
		Long: `Compare the assets declared from the current manifest with the assets
declared from a previous one.

Both manifests go through the same asset groups, so the diff shows added and
removed assets as well as changes to dependencies, checks and metadata.

Examples:
  # Compare with the manifest of the last deployment
  dbtlearn assets diff --state ./prod-state/manifest.json`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.out = c.OutOrStdout()
			opts.color = output.IsTTY()
			return runDiff(c.Context(), opts)
		},
	}

	c.Flags().StringVar(&opts.state, "state", "", "Path to the previous manifest.json (required)")

	return c
}

func runDiff(ctx context.Context, opts *diffOptions) error {
	if opts.state == "" {
		return cmdutil.PrintedExit("invalid flags",
			fmt.Errorf("%w: --state is required", oerrors.ErrValidation))
	}

	env, err := cmdutil.LoadEnvironment(ctx, opts.gc)
	if err != nil {
		return cmdutil.PrintedExit("loading project", err)
	}

	previous, err := previousSpecs(env, opts.state)
	if err != nil {
		return cmdutil.PrintedExit("loading previous manifest", err)
	}

	result, err := asset.DiffSpecs(previous, env.Definitions.Specs(), opts.color)
	if err != nil {
		return cmdutil.PrintedExit("comparing assets", err)
	}

	fmt.Fprint(opts.out, result.Render())
	if !result.HasChanges() {
		fmt.Fprintln(opts.out)
	}
	return nil
}

// previousSpecs declares the assets of the manifest at path with the
// current configuration.
func previousSpecs(env *cmdutil.Environment, path string) ([]asset.Spec, error) {
	manifest, err := dbt.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	defs, err := pipeline.NewDefinitions(env.Config, manifest)
	if err != nil {
		return nil, err
	}
	return defs.Specs(), nil
}
