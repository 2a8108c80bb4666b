// Package replay projects a recorded request back into the editable state it
// was built from. It performs no I/O.
package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oicur0t/forwardog/internal/dogstatsd"
	"github.com/oicur0t/forwardog/pkg/models"
)

// ErrEmptyRequest is returned when an entry carries no request snapshot
var ErrEmptyRequest = errors.New("replay: empty request")

// Entry reconstructs the editable state of a history entry
func Entry(entry models.HistoryEntry) (models.EditableState, error) {
	return FromRequest(entry.Kind, entry.Request)
}

// FromRequest reconstructs the editable state for kind from a request snapshot
func FromRequest(kind models.Kind, request json.RawMessage) (models.EditableState, error) {
	if len(bytes.TrimSpace(request)) == 0 {
		return nil, ErrEmptyRequest
	}

	switch kind {
	case models.KindMetricsAPI:
		return models.MetricsJSONState{Raw: editorText(request)}, nil
	case models.KindLogsAPI:
		return models.LogsJSONState{Raw: editorText(request)}, nil
	case models.KindMetricsForm:
		return metricsForm(request)
	case models.KindDogStatsD:
		return dogStatsD(request)
	case models.KindLogsForm:
		return logsForm(request)
	case models.KindAgentFile:
		return agentFile(request)
	}
	return nil, fmt.Errorf("replay: unknown submission kind %q", kind)
}

// editorText returns the JSON editor content for a snapshot. Invalid input is
// recorded as a JSON string holding the raw text, which is restored verbatim.
func editorText(request json.RawMessage) string {
	var raw string
	if err := json.Unmarshal(request, &raw); err == nil {
		return raw
	}
	var out bytes.Buffer
	if err := json.Indent(&out, request, "", "  "); err != nil {
		return string(request)
	}
	return out.String()
}

func metricsForm(request json.RawMessage) (models.EditableState, error) {
	var payload models.MetricsPayload
	if err := json.Unmarshal(request, &payload); err != nil {
		return nil, fmt.Errorf("replay: failed to decode metrics payload: %w", err)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("replay: metrics payload has no series")
	}

	series := payload.Series[0]
	state := models.MetricsFormState{
		Metric: series.Metric,
		Type:   series.Type,
		Tags:   series.Tags,
	}
	if len(series.Points) > 0 {
		state.Timestamp = series.Points[0].Timestamp
		state.Value = series.Points[0].Value
	}
	for _, r := range series.Resources {
		if r.Type == "host" {
			state.Host = r.Name
			break
		}
	}
	return state, nil
}

func dogStatsD(request json.RawMessage) (models.EditableState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(request, &fields); err != nil {
		return nil, fmt.Errorf("replay: failed to decode dogstatsd request: %w", err)
	}

	if _, ok := fields["code"]; ok {
		var req models.CodeExecuteRequest
		if err := json.Unmarshal(request, &req); err != nil {
			return nil, fmt.Errorf("replay: failed to decode code request: %w", err)
		}
		return models.DogStatsDState{Mode: models.DogStatsDModeCode, Code: req.Code}, nil
	}

	if _, ok := fields["line"]; ok {
		var req models.DogStatsDRawRequest
		if err := json.Unmarshal(request, &req); err != nil {
			return nil, fmt.Errorf("replay: failed to decode raw line: %w", err)
		}
		state := models.DogStatsDState{Mode: models.DogStatsDModeRaw, Line: req.Line}
		// Pre-fill the form fields as well when the line parses
		if line, err := dogstatsd.ParseLine(req.Line); err == nil {
			state.Metric = line.Metric
			state.MetricType = line.Type
			state.Tags = line.Tags
			state.SampleRate = line.SampleRate
			if v, err := strconv.ParseFloat(line.Value, 64); err == nil {
				state.Value = v
			}
		}
		return state, nil
	}

	var req models.DogStatsDRequest
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("replay: failed to decode dogstatsd form: %w", err)
	}
	return models.DogStatsDState{
		Mode:       models.DogStatsDModeForm,
		Metric:     req.Metric,
		Value:      req.Value,
		MetricType: req.MetricType,
		Tags:       req.Tags,
		SampleRate: req.SampleRate,
		Namespace:  req.Namespace,
	}, nil
}

func logsForm(request json.RawMessage) (models.EditableState, error) {
	var entries []models.LogEntry
	if err := json.Unmarshal(request, &entries); err != nil {
		return nil, fmt.Errorf("replay: failed to decode logs payload: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("replay: logs payload is empty")
	}

	entry := entries[0]
	state := models.LogsFormState{
		Message:  entry.Message,
		Service:  entry.Service,
		Source:   entry.DDSource,
		Status:   entry.Status,
		Hostname: entry.Hostname,
	}
	if entry.DDTags != "" {
		state.Tags = strings.Split(entry.DDTags, ",")
	}
	return state, nil
}

func agentFile(request json.RawMessage) (models.EditableState, error) {
	var req models.AgentFileRequest
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("replay: failed to decode agent-file request: %w", err)
	}
	return models.AgentFileState{
		Text:    strings.Join(req.Messages, "\n"),
		Service: req.Service,
		Source:  req.Source,
	}, nil
}
