package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oicur0t/forwardog/internal/dogstatsd"
	"github.com/oicur0t/forwardog/internal/presets"
	"github.com/oicur0t/forwardog/pkg/models"
)

// submitFlags holds every field flag; each kind reads the ones it needs
type submitFlags struct {
	preset   string
	replayID string

	file string
	raw  string
	text string

	metric     string
	metricType string
	value      float64
	timestamp  int64
	host       string
	tags       string

	mode       string
	sampleRate float64
	namespace  string
	line       string
	code       string

	message  string
	service  string
	source   string
	status   string
	hostname string
}

func newSubmitFlagSet(kind models.Kind, f *submitFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("submit "+kind.String(), flag.ContinueOnError)
	fs.StringVar(&f.preset, "preset", "", "Start from the backend preset with this id or name")
	fs.StringVar(&f.replayID, "replay", "", "Re-submit the request of this history entry")

	switch kind {
	case models.KindMetricsAPI, models.KindLogsAPI:
		fs.StringVar(&f.file, "file", "", "Read the JSON payload from a file (- for stdin)")
		fs.StringVar(&f.raw, "raw", "", "JSON payload text")

	case models.KindMetricsForm:
		fs.StringVar(&f.metric, "metric", "", "Metric name")
		fs.StringVar(&f.metricType, "type", "3", "Series type: 0 unspecified, 1 count, 2 rate, 3 gauge")
		fs.Float64Var(&f.value, "value", 0, "Point value")
		fs.Int64Var(&f.timestamp, "timestamp", 0, "Point timestamp in epoch seconds (0 for now)")
		fs.StringVar(&f.host, "host", "", "Host resource name")
		fs.StringVar(&f.tags, "tags", "", "Comma-separated tags")

	case models.KindDogStatsD:
		fs.StringVar(&f.mode, "mode", models.DogStatsDModeForm, "Editor mode: form, raw or code")
		fs.StringVar(&f.metric, "metric", "", "Metric name (form mode)")
		fs.StringVar(&f.metricType, "type", "g", "Metric type: c, g, h, d, s or ms (form mode)")
		fs.Float64Var(&f.value, "value", 0, "Value (form mode)")
		fs.Float64Var(&f.sampleRate, "rate", 1, "Sample rate in (0, 1] (form mode)")
		fs.StringVar(&f.namespace, "namespace", "", "Metric namespace (form mode)")
		fs.StringVar(&f.tags, "tags", "", "Comma-separated tags (form mode)")
		fs.StringVar(&f.line, "line", "", "Raw DogStatsD line (raw mode)")
		fs.StringVar(&f.code, "code", "", "Client code to execute on the backend (code mode)")
		fs.StringVar(&f.file, "file", "", "Read the line or code from a file (- for stdin)")

	case models.KindLogsForm:
		fs.StringVar(&f.message, "message", "", "Log message")
		fs.StringVar(&f.service, "service", "", "Service name")
		fs.StringVar(&f.source, "source", "", "Log source")
		fs.StringVar(&f.status, "status", "", "Log status, e.g. info or error")
		fs.StringVar(&f.tags, "tags", "", "Comma-separated tags")
		fs.StringVar(&f.hostname, "hostname", "", "Hostname")

	case models.KindAgentFile:
		fs.StringVar(&f.file, "file", "", "Read log lines from a file (- for stdin)")
		fs.StringVar(&f.text, "text", "", "Newline-separated log lines")
		fs.StringVar(&f.service, "service", "", "Service name")
		fs.StringVar(&f.source, "source", "", "Log source")
	}
	return fs
}

func runSubmit(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: forwardog submit <kind> [flags]; kinds: %s", kindList())
	}
	kind, err := models.ParseKind(args[0])
	if err != nil {
		return fmt.Errorf("%w; kinds: %s", err, kindList())
	}

	var f submitFlags
	fs := newSubmitFlagSet(kind, &f)
	fs.SetOutput(a.out)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var state models.EditableState
	switch {
	case f.replayID != "":
		state, err = a.replayState(kind, f.replayID)
	case f.preset != "":
		state, err = a.presetState(ctx, kind, f.preset)
	default:
		state, err = stateFromFlags(kind, &f, a.in)
	}
	if err != nil {
		return err
	}

	if line, ok := previewLine(state); ok {
		a.terminalPalette().Muted.Fprintf(a.out, "line: %s\n", line)
	}

	result := a.dispatcher(a.terminal()).Submit(ctx, kind, state)
	if !result.Success {
		return errFailed
	}
	return nil
}

func (a *app) replayState(kind models.Kind, id string) (models.EditableState, error) {
	entry, ok := a.history.FindByID(id)
	if !ok {
		return nil, fmt.Errorf("history entry %q not found", id)
	}
	if entry.Kind != kind {
		return nil, fmt.Errorf("history entry %s is a %s submission, not %s", id, entry.Kind, kind)
	}
	return a.history.Replay(id)
}

func (a *app) presetState(ctx context.Context, kind models.Kind, name string) (models.EditableState, error) {
	list, err := presets.Fetch(ctx, a.client, kind, time.Now())
	if err != nil {
		return nil, err
	}
	p, ok := presets.Find(list, name)
	if !ok {
		return nil, fmt.Errorf("no %s preset named %q", kind, name)
	}
	return presets.Apply(kind, p)
}

// stateFromFlags builds the editable state for kind. Field values are passed
// through as typed; validation happens in the dispatcher so that rejected
// input still lands in history.
func stateFromFlags(kind models.Kind, f *submitFlags, stdin io.Reader) (models.EditableState, error) {
	input, err := readInput(f.file, stdin)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.KindMetricsAPI:
		return models.MetricsJSONState{Raw: firstNonEmpty(f.raw, input)}, nil

	case models.KindLogsAPI:
		return models.LogsJSONState{Raw: firstNonEmpty(f.raw, input)}, nil

	case models.KindMetricsForm:
		t, err := strconv.Atoi(strings.TrimSpace(f.metricType))
		if err != nil {
			return nil, fmt.Errorf("metric type must be a number 0-3 (got %q)", f.metricType)
		}
		return models.MetricsFormState{
			Metric:    f.metric,
			Type:      models.MetricType(t),
			Value:     f.value,
			Timestamp: f.timestamp,
			Host:      f.host,
			Tags:      splitTags(f.tags),
		}, nil

	case models.KindDogStatsD:
		state := models.DogStatsDState{Mode: f.mode}
		switch f.mode {
		case models.DogStatsDModeRaw:
			state.Line = firstNonEmpty(f.line, strings.TrimSpace(input))
		case models.DogStatsDModeCode:
			state.Code = firstNonEmpty(f.code, input)
		default:
			state.Metric = f.metric
			state.Value = f.value
			state.MetricType = f.metricType
			state.SampleRate = f.sampleRate
			state.Namespace = f.namespace
			state.Tags = splitTags(f.tags)
		}
		return state, nil

	case models.KindLogsForm:
		return models.LogsFormState{
			Message:  f.message,
			Service:  f.service,
			Source:   f.source,
			Status:   f.status,
			Tags:     splitTags(f.tags),
			Hostname: f.hostname,
		}, nil

	case models.KindAgentFile:
		return models.AgentFileState{
			Text:    firstNonEmpty(f.text, input),
			Service: f.service,
			Source:  f.source,
		}, nil
	}
	return nil, fmt.Errorf("unknown submission kind %q", kind)
}

// previewLine renders the protocol line a form-mode DogStatsD state
// describes. Other states have nothing to preview.
func previewLine(state models.EditableState) (string, bool) {
	s, ok := state.(models.DogStatsDState)
	if !ok || s.Mode != models.DogStatsDModeForm || s.Metric == "" {
		return "", false
	}
	return dogstatsd.FormatLine(s.Metric, s.Value, s.MetricType, s.Tags, s.SampleRate, s.Namespace), true
}

// readInput returns the content of path, or stdin for "-"
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" {
		return "", nil
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		if stdin == nil {
			return "", errors.New("no stdin available")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func kindList() string {
	names := make([]string, len(models.Kinds))
	for i, k := range models.Kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
