package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dbtlearn/orchestrator/internal/asset"
	"github.com/dbtlearn/orchestrator/internal/config"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
	"github.com/dbtlearn/orchestrator/internal/output"
)

// PrintValidationError prints an error in a user-friendly format. A
// DetailError gets a short summary line followed by its full detail block;
// other errors fall back to the key-value log format.
func PrintValidationError(msg string, err error) {
	var detail *oerrors.DetailError
	if errors.As(err, &detail) {
		output.Error(fmt.Sprintf("%s: %s", msg, detail.Message))
		output.Details(detail.Error())
		return
	}
	output.Error(msg, "error", err)
}

// PrintedExit logs err with msg and returns it wrapped in an ExitError that
// main will not print again.
func PrintedExit(msg string, err error) error {
	PrintValidationError(msg, err)
	return &oerrors.ExitError{Err: err, Code: oerrors.ExitCodeFromError(err), Printed: true}
}

// WriteConfigValidationErrors writes config validation errors in the
// `config vet` layout.
func WriteConfigValidationErrors(w io.Writer, path string, errs config.ValidationErrors) {
	fmt.Fprintln(w, "Error: config validation failed")
	fmt.Fprintf(w, "  File: %s\n\n", path)
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
	}
}

// WriteRunSummary writes the completion line of a run to w.
func WriteRunSummary(w io.Writer, result *asset.RunResult) {
	run := result.Run
	target := output.StyleNoun.Render(run.Group)
	if run.PartitionKey != "" {
		target += "[" + run.PartitionKey + "]"
	}

	failedChecks := 0
	for _, c := range result.Checks {
		if !c.Passed {
			failedChecks++
		}
	}

	line := fmt.Sprintf("%s: %d materialized, %d checks (%d failed) in %s",
		target, len(result.Materializations), len(result.Checks), failedChecks,
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))

	if result.Succeeded() {
		fmt.Fprintln(w, output.FormatCheckmark(line))
		return
	}
	fmt.Fprintln(w, output.StatusStyle(output.StatusFailed).Render("✘")+" "+line)
	if len(result.Failures) > 0 {
		fmt.Fprintln(w, "  failed: "+strings.Join(result.Failures, ", "))
	}
	if run.Error != "" {
		fmt.Fprintln(w, "  error:  "+run.Error)
	}
}

// RunsTable renders runs as a table.
func RunsTable(rs []asset.Run) string {
	tbl := output.NewTable("RUN", "JOB", "GROUP", "PARTITION", "STATUS", "STARTED", "DURATION")
	for _, r := range rs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		partition := r.PartitionKey
		if partition == "" {
			partition = "-"
		}
		tbl.Row(
			shortRunID(r.ID),
			r.Job,
			r.Group,
			partition,
			runStatusText(r.Status),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
		)
	}
	return tbl.String()
}

func runStatusText(s asset.RunStatus) string {
	switch s {
	case asset.RunSuccess:
		return output.StatusStyle(output.StatusMaterialized).Render(string(s))
	case asset.RunFailure:
		return output.StatusStyle(output.StatusFailed).Render(string(s))
	default:
		return output.StatusStyle(output.StatusSkipped).Render(string(s))
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
