package present

import (
	"sync"

	"github.com/oicur0t/forwardog/pkg/models"
)

// Recorder is a headless surface. It keeps the feed and busy flags in memory
// for the local API to serve.
type Recorder struct {
	feed *Feed

	mu           sync.Mutex
	busy         map[models.Kind]bool
	historyCount int
}

// NewRecorder creates a recorder with a feed of feedSize items
func NewRecorder(feedSize int) *Recorder {
	return &Recorder{
		feed: NewFeed(feedSize),
		busy: make(map[models.Kind]bool),
	}
}

func (r *Recorder) AddResult(kind models.Kind, result models.SubmissionResult) {
	r.feed.Push(kind, result)
}

func (r *Recorder) AddWarningResult(kind models.Kind, result models.SubmissionResult) {
	r.feed.Push(kind, result)
}

func (r *Recorder) UpdateHistoryView(entries []models.HistoryEntry) {
	r.mu.Lock()
	r.historyCount = len(entries)
	r.mu.Unlock()
}

func (r *Recorder) SetBusy(kind models.Kind, busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if busy {
		r.busy[kind] = true
	} else {
		delete(r.busy, kind)
	}
}

// Feed returns the recent outcomes, newest first
func (r *Recorder) Feed() []FeedItem {
	return r.feed.Items()
}

// Busy lists the kinds with a submission in flight
func (r *Recorder) Busy() []models.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kinds []models.Kind
	for _, k := range models.Kinds {
		if r.busy[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// HistoryCount is the history length seen at the last update
func (r *Recorder) HistoryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyCount
}
