package models

import (
	"encoding/json"
	"fmt"
)

// EditableState is the operator-editable input of one submission kind
type EditableState interface {
	Kind() Kind
}

// MetricsJSONState holds the raw text of the metrics JSON editor
type MetricsJSONState struct {
	Raw string `json:"raw"`
}

// MetricsFormState holds the scalar fields of the metrics form.
// A zero Timestamp means "now".
type MetricsFormState struct {
	Metric    string     `json:"metric"`
	Type      MetricType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp int64      `json:"timestamp,omitempty"`
	Host      string     `json:"host,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// DogStatsD editor modes
const (
	DogStatsDModeForm = "form"
	DogStatsDModeRaw  = "raw"
	DogStatsDModeCode = "code"
)

// DogStatsDState holds the line-protocol editor in one of three modes
type DogStatsDState struct {
	Mode       string   `json:"mode"`
	Metric     string   `json:"metric,omitempty"`
	Value      float64  `json:"value,omitempty"`
	MetricType string   `json:"metric_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	SampleRate float64  `json:"sample_rate,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
	Line       string   `json:"line,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// LogsJSONState holds the raw text of the logs JSON editor
type LogsJSONState struct {
	Raw string `json:"raw"`
}

// LogsFormState holds the scalar fields of the logs form
type LogsFormState struct {
	Message  string   `json:"message"`
	Service  string   `json:"service,omitempty"`
	Source   string   `json:"source,omitempty"`
	Status   string   `json:"status,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
}

// AgentFileState holds newline-separated log lines for the agent file
type AgentFileState struct {
	Text    string `json:"text"`
	Service string `json:"service,omitempty"`
	Source  string `json:"source,omitempty"`
}

func (MetricsJSONState) Kind() Kind { return KindMetricsAPI }
func (MetricsFormState) Kind() Kind { return KindMetricsForm }
func (DogStatsDState) Kind() Kind   { return KindDogStatsD }
func (LogsJSONState) Kind() Kind    { return KindLogsAPI }
func (LogsFormState) Kind() Kind    { return KindLogsForm }
func (AgentFileState) Kind() Kind   { return KindAgentFile }

// DecodeState unmarshals data into the editable state type for kind
func DecodeState(kind Kind, data []byte) (EditableState, error) {
	var (
		state EditableState
		err   error
	)
	switch kind {
	case KindMetricsAPI:
		var s MetricsJSONState
		err = json.Unmarshal(data, &s)
		state = s
	case KindMetricsForm:
		var s MetricsFormState
		err = json.Unmarshal(data, &s)
		state = s
	case KindDogStatsD:
		var s DogStatsDState
		err = json.Unmarshal(data, &s)
		state = s
	case KindLogsAPI:
		var s LogsJSONState
		err = json.Unmarshal(data, &s)
		state = s
	case KindLogsForm:
		var s LogsFormState
		err = json.Unmarshal(data, &s)
		state = s
	case KindAgentFile:
		var s AgentFileState
		err = json.Unmarshal(data, &s)
		state = s
	default:
		return nil, fmt.Errorf("unknown submission kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", kind, err)
	}
	return state, nil
}
