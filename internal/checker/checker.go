// Package checker flags submissions whose timestamps look implausible,
// usually a unit or timezone mistake. It never blocks a submission; callers
// attach the returned warnings to a successful result.
package checker

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Window is the accepted freshness range around "now"
type Window struct {
	Past        time.Duration
	Future      time.Duration
	PastLabel   string
	FutureLabel string
}

var (
	// MetricsWindow applies to metric points
	MetricsWindow = Window{Past: time.Hour, Future: 10 * time.Minute, PastLabel: "1 hour", FutureLabel: "10 minutes"}

	// LogsWindow applies to log entries and agent-file lines
	LogsWindow = Window{Past: 18 * time.Hour, Future: 2 * time.Hour, PastLabel: "18 hours", FutureLabel: "2 hours"}
)

// Numbers above this are epoch milliseconds, anything else epoch seconds
const millisThreshold = 9_999_999_999

var (
	isoPattern           = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	jsonTimestampPattern = regexp.MustCompile(`"timestamp"\s*:\s*(\d+)`)
)

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
}

// NormalizeEpoch converts a numeric epoch value to a time. Values with up to
// ten digits are seconds, longer values are milliseconds.
func NormalizeEpoch(v float64) time.Time {
	if v > millisThreshold {
		return time.UnixMilli(int64(v))
	}
	return secondsToTime(v)
}

// CheckMetrics screens series[i].points[j].timestamp (epoch seconds) of a
// decoded metrics payload.
func CheckMetrics(payload any, now time.Time) []string {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	series, _ := root["series"].([]any)

	var warnings []string
	for i, s := range series {
		entry, ok := s.(map[string]any)
		if !ok {
			continue
		}
		points, _ := entry["points"].([]any)
		for j, p := range points {
			point, ok := p.(map[string]any)
			if !ok {
				continue
			}
			v, ok := number(point["timestamp"])
			if !ok {
				continue
			}
			ts := secondsToTime(v)
			if msg := MetricsWindow.violation(ts, now); msg != "" {
				warnings = append(warnings, fmt.Sprintf("Series %d, point %d: timestamp %s %s", i+1, j+1, format(ts), msg))
			}
		}
	}
	return warnings
}

// CheckLogs screens the timestamp or date field of a decoded logs payload,
// which is either a single object or an array of objects.
func CheckLogs(payload any, now time.Time) []string {
	var entries []any
	switch v := payload.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return nil
	}

	var warnings []string
	for i, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		// date is consulted whenever timestamp is missing, null, empty or unparseable
		ts, ok := logTime(entry["timestamp"])
		if !ok {
			if ts, ok = logTime(entry["date"]); !ok {
				continue
			}
		}
		if msg := LogsWindow.violation(ts, now); msg != "" {
			warnings = append(warnings, fmt.Sprintf("Log %d: timestamp %s %s", i+1, format(ts), msg))
		}
	}
	return warnings
}

// CheckAgentFile screens raw log lines. Each line contributes its first
// ISO-8601 looking substring, or failing that a "timestamp": <digits> field.
func CheckAgentFile(lines []string, now time.Time) []string {
	var warnings []string
	for i, line := range lines {
		ts, ok := lineTime(line)
		if !ok {
			continue
		}
		if msg := LogsWindow.violation(ts, now); msg != "" {
			warnings = append(warnings, fmt.Sprintf("Line %d: timestamp %s %s", i+1, format(ts), msg))
		}
	}
	return warnings
}

func (w Window) violation(ts, now time.Time) string {
	switch {
	case ts.Before(now.Add(-w.Past)):
		return fmt.Sprintf("is more than %s in the past", w.PastLabel)
	case ts.After(now.Add(w.Future)):
		return fmt.Sprintf("is more than %s in the future", w.FutureLabel)
	}
	return ""
}

func lineTime(line string) (time.Time, bool) {
	if m := isoPattern.FindString(line); m != "" {
		if ts, ok := parseDate(m); ok {
			return ts, true
		}
	}
	if m := jsonTimestampPattern.FindStringSubmatch(line); m != nil {
		var v float64
		if _, err := fmt.Sscan(m[1], &v); err == nil {
			return NormalizeEpoch(v), true
		}
	}
	return time.Time{}, false
}

func logTime(raw any) (time.Time, bool) {
	if s, ok := raw.(string); ok {
		return parseDate(s)
	}
	if v, ok := number(raw); ok {
		return NormalizeEpoch(v), true
	}
	return time.Time{}, false
}

// parseDate accepts the common ISO-8601 and RFC date forms. Values without a
// zone are read as UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' && s[4] == '-' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func secondsToTime(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func format(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
