// Package present implements the presentation side of the submission
// pipeline: a bounded result feed, a terminal surface and an in-memory
// recorder for the local API.
package present

import (
	"sync"
	"time"

	"github.com/oicur0t/forwardog/pkg/models"
)

// DefaultFeedSize bounds the visible result feed
const DefaultFeedSize = 20

// FeedItem is one displayed outcome. It is not persisted.
type FeedItem struct {
	Kind           models.Kind `json:"kind"`
	Status         string      `json:"status"`
	Message        string      `json:"message"`
	WarningMessage string      `json:"warning_message,omitempty"`
	StatusCode     int         `json:"status_code,omitempty"`
	LatencyMS      float64     `json:"latency_ms,omitempty"`
	ErrorHint      string      `json:"error_hint,omitempty"`
	At             time.Time   `json:"at"`
}

// Feed keeps the most recent outcomes, newest first
type Feed struct {
	mu    sync.Mutex
	max   int
	items []FeedItem
	now   func() time.Time
}

// NewFeed creates a feed holding at most max items
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = DefaultFeedSize
	}
	return &Feed{max: max, now: time.Now}
}

// Push adds an outcome and drops the oldest beyond the bound
func (f *Feed) Push(kind models.Kind, result models.SubmissionResult) FeedItem {
	item := FeedItem{
		Kind:           kind,
		Status:         result.Status(),
		Message:        result.Message,
		WarningMessage: result.WarningMessage,
		StatusCode:     result.StatusCode,
		LatencyMS:      result.LatencyMS,
		ErrorHint:      result.ErrorHint,
		At:             f.now().UTC(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append([]FeedItem{item}, f.items...)
	if len(f.items) > f.max {
		f.items = f.items[:f.max]
	}
	return item
}

// Items returns a copy of the feed, newest first
func (f *Feed) Items() []FeedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedItem, len(f.items))
	copy(out, f.items)
	return out
}

// Len returns the number of items
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
