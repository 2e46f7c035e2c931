package dbt

import (
	"encoding/json"
	"strings"
	"time"
)

// EventKind classifies a dbt event for the materializer.
type EventKind string

const (
	// KindLog is any event that only needs to be logged.
	KindLog EventKind = "log"

	// KindMaterialization is a model, seed, or snapshot that finished successfully.
	KindMaterialization EventKind = "materialization"

	// KindCheck is a finished test.
	KindCheck EventKind = "check"

	// KindFailure is a node or invocation level error.
	KindFailure EventKind = "failure"
)

// Event names emitted by dbt's structured logger that the CLI reacts to.
const (
	EventNodeFinished         = "NodeFinished"
	EventMainEncounteredError = "MainEncounteredError"
)

// Event is one line of dbt output. Lines that are not JSON log records are
// kept as plain log events with Name empty.
type Event struct {
	Name          string
	Code          string
	Level         string
	Message       string
	Timestamp     time.Time
	InvocationID  string
	UniqueID      string
	ResourceType  string
	NodeName      string
	NodeStatus    string
	ExecutionTime float64

	// Raw is the original line.
	Raw string
}

type jsonLogLine struct {
	Info struct {
		Name         string `json:"name"`
		Code         string `json:"code"`
		Level        string `json:"level"`
		Msg          string `json:"msg"`
		TS           string `json:"ts"`
		InvocationID string `json:"invocation_id"`
	} `json:"info"`
	Data struct {
		NodeInfo struct {
			UniqueID     string `json:"unique_id"`
			ResourceType string `json:"resource_type"`
			NodeName     string `json:"node_name"`
			NodeStatus   string `json:"node_status"`
		} `json:"node_info"`
		RunResult struct {
			Status        string  `json:"status"`
			ExecutionTime float64 `json:"execution_time"`
		} `json:"run_result"`
		ExecutionTime float64 `json:"execution_time"`
	} `json:"data"`
}

// ParseEvent decodes a dbt output line.
func ParseEvent(line string) Event {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Event{Level: "info", Message: line, Raw: line}
	}

	var rec jsonLogLine
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil || rec.Info.Name == "" {
		return Event{Level: "info", Message: line, Raw: line}
	}

	ev := Event{
		Name:         rec.Info.Name,
		Code:         rec.Info.Code,
		Level:        rec.Info.Level,
		Message:      rec.Info.Msg,
		InvocationID: rec.Info.InvocationID,
		UniqueID:     rec.Data.NodeInfo.UniqueID,
		ResourceType: rec.Data.NodeInfo.ResourceType,
		NodeName:     rec.Data.NodeInfo.NodeName,
		NodeStatus:   rec.Data.NodeInfo.NodeStatus,
		Raw:          line,
	}
	if rec.Data.RunResult.Status != "" {
		ev.NodeStatus = rec.Data.RunResult.Status
	}
	ev.ExecutionTime = rec.Data.RunResult.ExecutionTime
	if ev.ExecutionTime == 0 {
		ev.ExecutionTime = rec.Data.ExecutionTime
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.Info.TS); err == nil {
		ev.Timestamp = ts
	}
	if ev.ResourceType == "" && ev.UniqueID != "" {
		ev.ResourceType = strings.SplitN(ev.UniqueID, ".", 2)[0]
	}
	return ev
}

// Kind classifies the event.
func (e Event) Kind() EventKind {
	if e.Name == EventMainEncounteredError {
		return KindFailure
	}
	if e.Name != EventNodeFinished || e.UniqueID == "" {
		return KindLog
	}

	switch e.ResourceType {
	case ResourceTest:
		return KindCheck
	case ResourceModel, ResourceSeed, ResourceSnapshot:
		switch e.NodeStatus {
		case "success":
			return KindMaterialization
		case "error", "fail", "runtime error":
			return KindFailure
		}
	}
	return KindLog
}

// Passed reports whether a check event passed. Warnings count as passing.
func (e Event) Passed() bool {
	switch e.NodeStatus {
	case "pass", "warn", "success":
		return true
	default:
		return false
	}
}
