package asset

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dbtlearn/orchestrator/internal/dbt"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/partition"
)

// ExecutionContext is what a compute function sees for one run.
type ExecutionContext struct {
	ctx context.Context

	// RunID identifies the run in the ledger.
	RunID string

	// PartitionKey is set for partitioned definitions.
	PartitionKey string

	// Definition is the definition being materialized.
	Definition *Definition

	// Select overrides the definition's dbt selection for this run when set.
	Select string

	// Log is scoped to the definition and run.
	Log *log.Logger
}

// NewExecutionContext creates a context for one run of def.
func NewExecutionContext(ctx context.Context, runID string, def *Definition, partitionKey string, logger *log.Logger) *ExecutionContext {
	if logger == nil {
		logger = log.Default()
	}
	return &ExecutionContext{
		ctx:          ctx,
		RunID:        runID,
		PartitionKey: partitionKey,
		Definition:   def,
		Log:          logger,
	}
}

// Context returns the run's context.
func (ec *ExecutionContext) Context() context.Context {
	return ec.ctx
}

// HasPartitionKey reports whether the run targets a partition.
func (ec *ExecutionContext) HasPartitionKey() bool {
	return ec.PartitionKey != ""
}

// PartitionTimeWindow returns the time window of the run's partition.
func (ec *ExecutionContext) PartitionTimeWindow() (partition.TimeWindow, error) {
	if ec.Definition == nil || !ec.Definition.Partitioned() {
		return partition.TimeWindow{}, fmt.Errorf("%w: %s is not partitioned", oerrors.ErrValidation, ec.definitionName())
	}
	if !ec.HasPartitionKey() {
		return partition.TimeWindow{}, fmt.Errorf("%w: run of %s has no partition key", oerrors.ErrValidation, ec.definitionName())
	}
	return ec.Definition.Partitions.TimeWindowForKey(ec.PartitionKey)
}

// DBTOptions returns run options scoping a dbt invocation to the assets this
// run materializes.
func (ec *ExecutionContext) DBTOptions(raiseOnError bool) dbt.RunOptions {
	opts := dbt.RunOptions{RaiseOnError: raiseOnError}
	if ec.Definition != nil {
		opts.Select = ec.Definition.Select
		opts.Exclude = ec.Definition.Exclude
	}
	if ec.Select != "" {
		opts.Select = ec.Select
	}
	return opts
}

func (ec *ExecutionContext) definitionName() string {
	if ec.Definition == nil {
		return "<nil>"
	}
	return ec.Definition.Name
}
