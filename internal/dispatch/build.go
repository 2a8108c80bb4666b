package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oicur0t/forwardog/internal/backend"
	"github.com/oicur0t/forwardog/internal/dogstatsd"
	"github.com/oicur0t/forwardog/pkg/models"
)

// Defaults applied by the form builders
const (
	DefaultService   = "forwardog"
	DefaultSource    = "forwardog"
	DefaultLogStatus = "info"
	DefaultStatsType = "g"
)

// request is a payload ready to send. snapshot is what history records;
// tree and lines feed the timestamp checker.
type request struct {
	path     string
	body     any
	snapshot json.RawMessage
	tree     any
	lines    []string
}

// buildError is a local failure raised before any network call. The
// request snapshot is still recorded.
type buildError struct {
	message  string
	hint     string
	snapshot json.RawMessage
}

func (e *buildError) Error() string { return e.message }

func build(state models.EditableState, now time.Time) (*request, error) {
	switch s := state.(type) {
	case models.MetricsJSONState:
		return buildMetricsJSON(s)
	case models.MetricsFormState:
		return buildMetricsForm(s, now)
	case models.DogStatsDState:
		return buildDogStatsD(s)
	case models.LogsJSONState:
		return buildLogsJSON(s)
	case models.LogsFormState:
		return buildLogsForm(s)
	case models.AgentFileState:
		return buildAgentFile(s)
	}
	return nil, &buildError{message: fmt.Sprintf("Unsupported submission state %T", state)}
}

func buildMetricsJSON(s models.MetricsJSONState) (*request, error) {
	payload, tree, err := parseEditor(s.Raw)
	if err != nil {
		return nil, err
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, invalidPayload(s.Raw, "Metrics payload must be a JSON object")
	}
	if _, ok := root["series"].([]any); !ok {
		return nil, invalidPayload(s.Raw, `Metrics payload must contain a "series" array`)
	}

	return &request{
		path:     backend.PathMetricsSubmitJSON,
		body:     models.PayloadEnvelope{Payload: payload},
		snapshot: payload,
		tree:     tree,
	}, nil
}

func buildLogsJSON(s models.LogsJSONState) (*request, error) {
	payload, tree, err := parseEditor(s.Raw)
	if err != nil {
		return nil, err
	}
	switch v := tree.(type) {
	case map[string]any:
	case []any:
		if len(v) == 0 {
			return nil, invalidPayload(s.Raw, "Logs payload must contain at least one entry")
		}
	default:
		return nil, invalidPayload(s.Raw, "Logs payload must be a JSON object or array")
	}

	return &request{
		path:     backend.PathLogsSubmitJSON,
		body:     models.PayloadEnvelope{Payload: payload},
		snapshot: payload,
		tree:     tree,
	}, nil
}

func buildMetricsForm(s models.MetricsFormState, now time.Time) (*request, error) {
	ts := s.Timestamp
	if ts == 0 {
		ts = now.Unix()
	}

	series := models.MetricSeries{
		Metric: strings.TrimSpace(s.Metric),
		Type:   s.Type,
		Points: []models.MetricPoint{{Timestamp: ts, Value: s.Value}},
		Tags:   cleanTags(s.Tags),
	}
	if host := strings.TrimSpace(s.Host); host != "" {
		series.Resources = []models.MetricResource{{Name: host, Type: "host"}}
	}
	payload := models.MetricsPayload{Series: []models.MetricSeries{series}}

	switch {
	case !finite(s.Value):
		return nil, formError(s, "Value must be a finite number")
	case series.Metric == "":
		return nil, formError(payload, "Metric name is required")
	case !s.Type.Valid():
		return nil, formError(payload, fmt.Sprintf("Metric type must be 0-3 (got %d)", s.Type))
	}

	snapshot, err := json.Marshal(payload)
	if err != nil {
		return nil, &buildError{message: fmt.Sprintf("Failed to encode payload: %v", err)}
	}
	return &request{
		path:     backend.PathMetricsSubmitJSON,
		body:     models.PayloadEnvelope{Payload: payload},
		snapshot: snapshot,
		tree:     toTree(snapshot),
	}, nil
}

func buildDogStatsD(s models.DogStatsDState) (*request, error) {
	switch s.Mode {
	case "", models.DogStatsDModeForm:
		req := models.DogStatsDRequest{
			Metric:     strings.TrimSpace(s.Metric),
			Value:      s.Value,
			MetricType: s.MetricType,
			Tags:       cleanTags(s.Tags),
			SampleRate: s.SampleRate,
			Namespace:  strings.TrimSpace(s.Namespace),
		}
		if req.MetricType == "" {
			req.MetricType = DefaultStatsType
		}
		if req.SampleRate == 0 {
			req.SampleRate = 1
		}
		if req.Tags == nil {
			req.Tags = []string{}
		}

		switch {
		case !finite(req.Value):
			return nil, formError(s, "Value must be a finite number")
		case req.Metric == "":
			return nil, formError(req, "Metric name is required")
		case !dogstatsd.ValidType(req.MetricType):
			return nil, formError(req, fmt.Sprintf("Unknown DogStatsD metric type %q", req.MetricType))
		case !finite(req.SampleRate) || req.SampleRate <= 0 || req.SampleRate > 1:
			return nil, formError(req, "Sample rate must be greater than 0 and at most 1")
		}
		return jsonRequest(backend.PathDogStatsDSubmit, req)

	case models.DogStatsDModeRaw:
		req := models.DogStatsDRawRequest{Line: strings.TrimSpace(s.Line)}
		if req.Line == "" {
			return nil, formError(req, "DogStatsD line is required")
		}
		return jsonRequest(backend.PathDogStatsDSubmitRaw, req)

	case models.DogStatsDModeCode:
		req := models.CodeExecuteRequest{Code: s.Code}
		if strings.TrimSpace(req.Code) == "" {
			return nil, formError(req, "Code is required")
		}
		return jsonRequest(backend.PathDogStatsDExecute, req)
	}
	return nil, formError(s, fmt.Sprintf("Unknown DogStatsD mode %q", s.Mode))
}

func buildLogsForm(s models.LogsFormState) (*request, error) {
	entry := models.LogEntry{
		Message:  s.Message,
		Service:  orDefault(s.Service, DefaultService),
		DDSource: orDefault(s.Source, DefaultSource),
		Status:   orDefault(strings.ToLower(s.Status), DefaultLogStatus),
		DDTags:   strings.Join(cleanTags(s.Tags), ","),
		Hostname: strings.TrimSpace(s.Hostname),
	}
	payload := []models.LogEntry{entry}

	if strings.TrimSpace(entry.Message) == "" {
		return nil, formError(payload, "Log message is required")
	}
	if !validStatus(entry.Status) {
		return nil, formError(payload, fmt.Sprintf("Unknown log status %q", entry.Status))
	}

	snapshot, err := json.Marshal(payload)
	if err != nil {
		return nil, &buildError{message: fmt.Sprintf("Failed to encode payload: %v", err)}
	}
	return &request{
		path:     backend.PathLogsSubmitJSON,
		body:     models.PayloadEnvelope{Payload: payload},
		snapshot: snapshot,
		tree:     toTree(snapshot),
	}, nil
}

func buildAgentFile(s models.AgentFileState) (*request, error) {
	req := models.AgentFileRequest{
		Messages: SplitLines(s.Text),
		Format:   "raw",
		Service:  orDefault(s.Service, DefaultService),
		Source:   orDefault(s.Source, DefaultSource),
	}
	if len(req.Messages) == 0 {
		req.Messages = []string{}
		return nil, formError(req, "At least one log line is required")
	}

	r, err := jsonRequest(backend.PathAgentFileSubmit, req)
	if err != nil {
		return nil, err
	}
	r.lines = req.Messages
	return r, nil
}

// SplitLines turns editor text into agent-file messages. Carriage returns are
// trimmed and blank lines dropped.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseEditor validates JSON editor text. It returns the compacted payload
// and its decoded tree.
func parseEditor(raw string) (json.RawMessage, any, error) {
	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, nil, &buildError{
			message:  fmt.Sprintf("Invalid JSON: %v", err),
			hint:     "Fix the JSON syntax and submit again.",
			snapshot: textSnapshot(raw),
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(raw)); err != nil {
		return nil, nil, &buildError{message: fmt.Sprintf("Invalid JSON: %v", err), snapshot: textSnapshot(raw)}
	}
	return json.RawMessage(compact.Bytes()), tree, nil
}

func invalidPayload(raw, message string) error {
	return &buildError{
		message:  message,
		hint:     "Check the payload structure and required fields.",
		snapshot: textSnapshot(raw),
	}
}

func formError(v any, message string) error {
	snapshot, err := json.Marshal(v)
	if err != nil {
		snapshot = textSnapshot(fmt.Sprintf("%+v", v))
	}
	return &buildError{
		message:  message,
		hint:     "Fill in the required fields and submit again.",
		snapshot: snapshot,
	}
}

func jsonRequest(path string, body any) (*request, error) {
	snapshot, err := json.Marshal(body)
	if err != nil {
		return nil, &buildError{message: fmt.Sprintf("Failed to encode payload: %v", err)}
	}
	return &request{path: path, body: body, snapshot: snapshot}, nil
}

// textSnapshot records editor text verbatim as a JSON string
func textSnapshot(raw string) json.RawMessage {
	data, _ := json.Marshal(raw)
	return data
}

func toTree(data []byte) any {
	var tree any
	_ = json.Unmarshal(data, &tree)
	return tree
}

func cleanTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

func validStatus(status string) bool {
	for _, known := range models.LogStatuses {
		if status == known {
			return true
		}
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
