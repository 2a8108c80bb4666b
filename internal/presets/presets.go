// Package presets retrieves the backend's example payloads and turns them
// into editable state.
package presets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oicur0t/forwardog/internal/backend"
	"github.com/oicur0t/forwardog/internal/replay"
	"github.com/oicur0t/forwardog/pkg/models"
)

// Placeholders substituted in agent-file presets. NOW_ISO is replaced first
// since it contains NOW.
const (
	PlaceholderNowISO = "NOW_ISO"
	PlaceholderNow    = "NOW"
)

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Preset is one example from a backend listing. Which content field is set
// depends on the listing.
type Preset struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Line         string          `json:"line,omitempty"`
	Code         string          `json:"code,omitempty"`
	Messages     []string        `json:"messages,omitempty"`
	HasTimestamp bool            `json:"has_timestamp,omitempty"`
}

// Getter fetches a backend listing
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

type metricsListing struct {
	API       []Preset `json:"api_presets"`
	DogStatsD []Preset `json:"dogstatsd_presets"`
}

type logsListing struct {
	API       []Preset `json:"api_presets"`
	AgentFile []Preset `json:"agent_file_presets"`
}

type examplesListing struct {
	Examples []Preset `json:"examples"`
}

// Fetch returns the presets usable by kind. Agent-file presets have their
// placeholders substituted with now.
func Fetch(ctx context.Context, g Getter, kind models.Kind, now time.Time) ([]Preset, error) {
	switch kind {
	case models.KindMetricsAPI, models.KindMetricsForm:
		var listing metricsListing
		if err := g.Get(ctx, backend.PathMetricsPresets, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch metrics presets: %w", err)
		}
		return listing.API, nil

	case models.KindDogStatsD:
		var listing metricsListing
		if err := g.Get(ctx, backend.PathMetricsPresets, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch metrics presets: %w", err)
		}
		var examples examplesListing
		if err := g.Get(ctx, backend.PathDogStatsDExamples, &examples); err != nil {
			return nil, fmt.Errorf("failed to fetch dogstatsd examples: %w", err)
		}
		return append(listing.DogStatsD, examples.Examples...), nil

	case models.KindLogsAPI, models.KindLogsForm:
		var listing logsListing
		if err := g.Get(ctx, backend.PathLogsPresets, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch logs presets: %w", err)
		}
		return listing.API, nil

	case models.KindAgentFile:
		var listing logsListing
		if err := g.Get(ctx, backend.PathLogsPresets, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch logs presets: %w", err)
		}
		out := make([]Preset, len(listing.AgentFile))
		for i, p := range listing.AgentFile {
			out[i] = p
			out[i].Messages = make([]string, len(p.Messages))
			for j, msg := range p.Messages {
				out[i].Messages[j] = Substitute(msg, now)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown submission kind %q", kind)
}

// Substitute replaces NOW_ISO with an RFC 3339 UTC timestamp and NOW with
// epoch seconds
func Substitute(s string, now time.Time) string {
	s = strings.ReplaceAll(s, PlaceholderNowISO, now.UTC().Format(isoLayout))
	return strings.ReplaceAll(s, PlaceholderNow, strconv.FormatInt(now.Unix(), 10))
}

// Find looks a preset up by id or case-insensitive name
func Find(list []Preset, name string) (Preset, bool) {
	for _, p := range list {
		if p.ID == name || strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Apply pre-fills the editable state of kind from a preset
func Apply(kind models.Kind, p Preset) (models.EditableState, error) {
	switch kind {
	case models.KindMetricsAPI:
		raw, err := indent(p.Payload)
		if err != nil {
			return nil, err
		}
		return models.MetricsJSONState{Raw: raw}, nil

	case models.KindLogsAPI:
		raw, err := indent(p.Payload)
		if err != nil {
			return nil, err
		}
		return models.LogsJSONState{Raw: raw}, nil

	case models.KindMetricsForm, models.KindLogsForm:
		if len(p.Payload) == 0 {
			return nil, fmt.Errorf("preset %q has no payload", p.Name)
		}
		return replay.FromRequest(kind, p.Payload)

	case models.KindDogStatsD:
		switch {
		case p.Code != "":
			return models.DogStatsDState{Mode: models.DogStatsDModeCode, Code: p.Code}, nil
		case p.Line != "":
			data, _ := json.Marshal(models.DogStatsDRawRequest{Line: p.Line})
			return replay.FromRequest(kind, data)
		}
		return nil, fmt.Errorf("preset %q has neither a line nor code", p.Name)

	case models.KindAgentFile:
		if len(p.Messages) == 0 {
			return nil, fmt.Errorf("preset %q has no messages", p.Name)
		}
		return models.AgentFileState{Text: strings.Join(p.Messages, "\n")}, nil
	}
	return nil, fmt.Errorf("unknown submission kind %q", kind)
}

func indent(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("preset has no payload")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		return "", fmt.Errorf("failed to format preset payload: %w", err)
	}
	return out.String(), nil
}
