package models

// MetricType is the numeric series type accepted by the metrics API
type MetricType int

const (
	MetricTypeUnspecified MetricType = 0
	MetricTypeCount       MetricType = 1
	MetricTypeRate        MetricType = 2
	MetricTypeGauge       MetricType = 3
)

// Valid reports whether t is a known series type
func (t MetricType) Valid() bool {
	return t >= MetricTypeUnspecified && t <= MetricTypeGauge
}

// MetricPoint is a single timestamped value; timestamps are epoch seconds
type MetricPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// MetricResource attaches a series to a host or other resource
type MetricResource struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MetricSeries is one metric with its points
type MetricSeries struct {
	Metric    string           `json:"metric"`
	Type      MetricType       `json:"type"`
	Points    []MetricPoint    `json:"points"`
	Resources []MetricResource `json:"resources,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
	Unit      string           `json:"unit,omitempty"`
	Interval  int64            `json:"interval,omitempty"`
}

// MetricsPayload is the body of a metrics API submission
type MetricsPayload struct {
	Series []MetricSeries `json:"series"`
}

// LogEntry is one log in a logs API submission
type LogEntry struct {
	Message  string `json:"message"`
	Service  string `json:"service"`
	DDSource string `json:"ddsource"`
	Status   string `json:"status"`
	DDTags   string `json:"ddtags,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// LogStatuses lists the accepted log status levels
var LogStatuses = []string{"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug"}

// DogStatsDRequest is the structured line-protocol submission
type DogStatsDRequest struct {
	Metric     string   `json:"metric"`
	Value      float64  `json:"value"`
	MetricType string   `json:"metric_type"`
	Tags       []string `json:"tags"`
	SampleRate float64  `json:"sample_rate"`
	Namespace  string   `json:"namespace,omitempty"`
}

// DogStatsDRawRequest sends a preformatted protocol line
type DogStatsDRawRequest struct {
	Line string `json:"line"`
}

// CodeExecuteRequest asks the backend to run a short script against its statsd client
type CodeExecuteRequest struct {
	Code string `json:"code"`
}

// AgentFileRequest writes raw lines to the file the agent collects
type AgentFileRequest struct {
	Messages []string `json:"messages"`
	Format   string   `json:"format"`
	Service  string   `json:"service"`
	Source   string   `json:"source"`
}

// PayloadEnvelope wraps JSON-editor payloads for the backend
type PayloadEnvelope struct {
	Payload any `json:"payload"`
}
