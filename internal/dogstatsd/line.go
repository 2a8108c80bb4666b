// Package dogstatsd formats and parses DogStatsD protocol lines of the form
// metric:value|type[|@sample_rate][|#tag1,tag2].
package dogstatsd

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric types accepted by the protocol
var MetricTypes = []string{"c", "g", "h", "d", "s", "ms"}

// Line is a decoded protocol line
type Line struct {
	Metric     string
	Value      string
	Type       string
	SampleRate float64
	Tags       []string
}

// ValidType reports whether t is a protocol metric type
func ValidType(t string) bool {
	for _, known := range MetricTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FormatLine renders a metric as a protocol line. Sample rates of 1 (or
// unset) are omitted.
func FormatLine(metric string, value float64, metricType string, tags []string, sampleRate float64, namespace string) string {
	name := metric
	if namespace != "" {
		name = namespace + "." + metric
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(metricType)
	if sampleRate > 0 && sampleRate < 1 {
		b.WriteString("|@")
		b.WriteString(strconv.FormatFloat(sampleRate, 'f', -1, 64))
	}
	if len(tags) > 0 {
		b.WriteString("|#")
		b.WriteString(strings.Join(tags, ","))
	}
	return b.String()
}

// ParseLine decodes the first line of a protocol payload
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}

	parts := strings.Split(raw, "|")
	if len(parts) < 2 {
		return Line{}, fmt.Errorf("missing metric type in %q", raw)
	}

	metric, value, ok := strings.Cut(parts[0], ":")
	if !ok || metric == "" || value == "" {
		return Line{}, fmt.Errorf("expected metric:value in %q", parts[0])
	}
	if !ValidType(parts[1]) {
		return Line{}, fmt.Errorf("unknown metric type %q", parts[1])
	}

	line := Line{Metric: metric, Value: value, Type: parts[1], SampleRate: 1}
	for _, part := range parts[2:] {
		switch {
		case strings.HasPrefix(part, "@"):
			rate, err := strconv.ParseFloat(part[1:], 64)
			if err != nil {
				return Line{}, fmt.Errorf("invalid sample rate %q: %w", part, err)
			}
			line.SampleRate = rate
		case strings.HasPrefix(part, "#"):
			if tags := strings.TrimPrefix(part, "#"); tags != "" {
				line.Tags = strings.Split(tags, ",")
			}
		}
	}
	return line, nil
}
