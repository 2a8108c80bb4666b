package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/oicur0t/forwardog/internal/backend"
	"github.com/oicur0t/forwardog/pkg/models"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// fakeGetter serves canned listings by path
type fakeGetter map[string]string

func (f fakeGetter) Get(ctx context.Context, path string, out any) error {
	body, ok := f[path]
	if !ok {
		return fmt.Errorf("backend returned HTTP 404 for %s", path)
	}
	return json.Unmarshal([]byte(body), out)
}

var listings = fakeGetter{
	backend.PathMetricsPresets: `{
		"api_presets": [{"name": "Simple Gauge", "description": "Basic gauge metric",
			"payload": {"series": [{"metric": "forwardog.api.gauge", "type": 3,
				"points": [{"timestamp": 1792411200, "value": 42}],
				"resources": [{"name": "forwardog-test", "type": "host"}],
				"tags": ["env:test", "source:forwardog"]}]}}],
		"dogstatsd_presets": [{"name": "Counter with Sample Rate", "line": "forwardog.test.sampled:1|c|@0.5|#env:test"}]
	}`,
	backend.PathDogStatsDExamples: `{"examples": [{"id": "basic_gauge", "name": "Basic Gauge", "code": "statsd.gauge('x', 1)"}]}`,
	backend.PathLogsPresets: `{
		"api_presets": [{"name": "Simple Info Log", "payload": [{"message": "This is a test log from forwardog",
			"ddsource": "forwardog", "service": "forwardog-test", "status": "info"}]}],
		"agent_file_presets": [
			{"name": "JSON with Timestamp", "messages": ["{\"timestamp\": NOW, \"message\": \"Application started\"}"], "has_timestamp": true},
			{"name": "Syslog Format", "messages": ["<14>NOW_ISO forwardog-host forwardog-app: ok"], "has_timestamp": true}
		]
	}`,
}

func TestSubstitute(t *testing.T) {
	got := Substitute(`NOW_ISO {"timestamp": NOW}`, testNow)
	want := `2026-10-19T12:00:00.000Z {"timestamp": 1792411200}`
	if got != want {
		t.Errorf("Substitute = %q, want %q", got, want)
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		kind  models.Kind
		names []string
	}{
		{models.KindMetricsAPI, []string{"Simple Gauge"}},
		{models.KindMetricsForm, []string{"Simple Gauge"}},
		{models.KindDogStatsD, []string{"Counter with Sample Rate", "Basic Gauge"}},
		{models.KindLogsAPI, []string{"Simple Info Log"}},
		{models.KindLogsForm, []string{"Simple Info Log"}},
		{models.KindAgentFile, []string{"JSON with Timestamp", "Syslog Format"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			list, err := Fetch(ctx, listings, tt.kind, testNow)
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			var names []string
			for _, p := range list {
				names = append(names, p.Name)
			}
			if !reflect.DeepEqual(names, tt.names) {
				t.Errorf("Names = %v, want %v", names, tt.names)
			}
		})
	}

	if _, err := Fetch(ctx, fakeGetter{}, models.KindLogsAPI, testNow); err == nil {
		t.Error("Expected error when the backend has no listing")
	}
}

func TestFetchAgentFileSubstitutes(t *testing.T) {
	list, err := Fetch(context.Background(), listings, models.KindAgentFile, testNow)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := list[0].Messages[0]; got != `{"timestamp": 1792411200, "message": "Application started"}` {
		t.Errorf("Unexpected NOW substitution %q", got)
	}
	if got := list[1].Messages[0]; !strings.HasPrefix(got, "<14>2026-10-19T12:00:00.000Z ") {
		t.Errorf("Unexpected NOW_ISO substitution %q", got)
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	metrics, _ := Fetch(ctx, listings, models.KindMetricsForm, testNow)
	state, err := Apply(models.KindMetricsForm, metrics[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	form := state.(models.MetricsFormState)
	if form.Metric != "forwardog.api.gauge" || form.Value != 42 || form.Host != "forwardog-test" {
		t.Errorf("Unexpected metrics form %+v", form)
	}

	state, err = Apply(models.KindMetricsAPI, metrics[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !strings.Contains(state.(models.MetricsJSONState).Raw, "\n  \"series\": [") {
		t.Errorf("Expected indented JSON, got %q", state.(models.MetricsJSONState).Raw)
	}

	statsd, _ := Fetch(ctx, listings, models.KindDogStatsD, testNow)
	state, err = Apply(models.KindDogStatsD, statsd[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	raw := state.(models.DogStatsDState)
	if raw.Mode != models.DogStatsDModeRaw || raw.Metric != "forwardog.test.sampled" || raw.SampleRate != 0.5 {
		t.Errorf("Unexpected raw state %+v", raw)
	}

	example, ok := Find(statsd, "basic_gauge")
	if !ok {
		t.Fatal("Expected to find example by id")
	}
	state, _ = Apply(models.KindDogStatsD, example)
	if code := state.(models.DogStatsDState); code.Mode != models.DogStatsDModeCode || code.Code == "" {
		t.Errorf("Unexpected code state %+v", code)
	}

	logs, _ := Fetch(ctx, listings, models.KindLogsForm, testNow)
	state, err = Apply(models.KindLogsForm, logs[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if lf := state.(models.LogsFormState); lf.Message != "This is a test log from forwardog" || lf.Status != "info" {
		t.Errorf("Unexpected logs form %+v", lf)
	}

	agent, _ := Fetch(ctx, listings, models.KindAgentFile, testNow)
	state, _ = Apply(models.KindAgentFile, agent[0])
	if af := state.(models.AgentFileState); !strings.Contains(af.Text, "1792411200") {
		t.Errorf("Unexpected agent-file text %q", af.Text)
	}

	if _, err := Apply(models.KindAgentFile, Preset{Name: "empty"}); err == nil {
		t.Error("Expected error for preset without messages")
	}
	if _, ok := Find(agent, "syslog format"); !ok {
		t.Error("Expected case-insensitive name lookup")
	}
}
