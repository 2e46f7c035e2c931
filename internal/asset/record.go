package asset

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStarted RunStatus = "STARTED"
	RunSuccess RunStatus = "SUCCESS"
	RunFailure RunStatus = "FAILURE"
)

// Run is a single execution of a definition.
type Run struct {
	ID           string    `json:"id"`
	Job          string    `json:"job"`
	Group        string    `json:"group"`
	PartitionKey string    `json:"partition_key,omitempty"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Materialization records an asset produced by a run.
type Materialization struct {
	RunID         string         `json:"run_id"`
	AssetKey      string         `json:"asset_key"`
	PartitionKey  string         `json:"partition_key,omitempty"`
	UniqueID      string         `json:"unique_id"`
	Status        string         `json:"status"`
	ExecutionTime float64        `json:"execution_time"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CheckResult records a dbt test result attached to an asset.
type CheckResult struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	AssetKey  string    `json:"asset_key,omitempty"`
	Passed    bool      `json:"passed"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder persists run bookkeeping.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, status RunStatus, finishedAt time.Time, errText string) error
	RecordMaterialization(ctx context.Context, m Materialization) error
	RecordCheck(ctx context.Context, c CheckResult) error
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, Run) error { return nil }

func (nopRecorder) FinishRun(context.Context, string, RunStatus, time.Time, string) error {
	return nil
}

func (nopRecorder) RecordMaterialization(context.Context, Materialization) error { return nil }

func (nopRecorder) RecordCheck(context.Context, CheckResult) error { return nil }
