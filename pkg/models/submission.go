package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a submission mode and the backend endpoint it talks to
type Kind string

const (
	KindMetricsAPI  Kind = "metrics-api"
	KindMetricsForm Kind = "metrics-form"
	KindDogStatsD   Kind = "dogstatsd"
	KindLogsAPI     Kind = "logs-api"
	KindLogsForm    Kind = "logs-form"
	KindAgentFile   Kind = "agent-file"
)

// Kinds lists every supported submission kind in display order
var Kinds = []Kind{
	KindMetricsAPI,
	KindMetricsForm,
	KindDogStatsD,
	KindLogsAPI,
	KindLogsForm,
	KindAgentFile,
}

// ParseKind converts a user-supplied string into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown submission kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsMetrics reports whether k submits through the metrics API
func (k Kind) IsMetrics() bool {
	return k == KindMetricsAPI || k == KindMetricsForm
}

// IsLogs reports whether k submits through the logs API
func (k Kind) IsLogs() bool {
	return k == KindLogsAPI || k == KindLogsForm
}

func (k Kind) String() string {
	return string(k)
}

// SubmissionResult is the outcome of one submission attempt. Remote results are
// decoded from the backend; local failures are synthesized with the same shape.
type SubmissionResult struct {
	Success        bool            `json:"success"`
	Warning        bool            `json:"warning"`
	Message        string          `json:"message"`
	WarningMessage string          `json:"warning_message,omitempty"`
	StatusCode     int             `json:"status_code,omitempty"`
	LatencyMS      float64         `json:"latency_ms,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	ErrorHint      string          `json:"error_hint,omitempty"`
}

// Failed builds a local failure result
func Failed(message, hint string) SubmissionResult {
	return SubmissionResult{
		Success:   false,
		Message:   message,
		ErrorHint: hint,
	}
}

// WithWarnings returns a copy of r flagged with the given warnings. Failed
// results never carry a warning, whatever the backend reported.
func (r SubmissionResult) WithWarnings(warnings []string) SubmissionResult {
	if !r.Success {
		r.Warning = false
		r.WarningMessage = ""
		return r
	}
	if len(warnings) == 0 {
		return r
	}
	r.Warning = true
	r.WarningMessage = strings.Join(warnings, "\n")
	return r
}

// Trimmed drops the response body, which history does not keep
func (r SubmissionResult) Trimmed() SubmissionResult {
	r.ResponseBody = nil
	return r
}

// Status returns "success", "warning" or "error"
func (r SubmissionResult) Status() string {
	switch {
	case !r.Success:
		return "error"
	case r.Warning:
		return "warning"
	default:
		return "success"
	}
}

// HistoryEntry is one immutable record of a past submission attempt
type HistoryEntry struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Request   json.RawMessage  `json:"request"`
	Result    SubmissionResult `json:"result"`
}
