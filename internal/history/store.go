// Package history keeps the bounded, newest-first log of submission attempts
// and persists it to client-local storage after every mutation.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oicur0t/forwardog/internal/replay"
	"github.com/oicur0t/forwardog/internal/storage"
	"github.com/oicur0t/forwardog/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxItems bounds the log length
	DefaultMaxItems = 100

	// StorageKey names the persisted record
	StorageKey = "forwardog_history"
)

// Export formats
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// Store is the submission history. Reads and writes go through a mutex
// because the local API may serve requests concurrently.
type Store struct {
	kv       storage.KV
	key      string
	maxItems int
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries []models.HistoryEntry
}

// Option configures a Store
type Option func(*Store)

// WithMaxItems overrides the retention bound
func WithMaxItems(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

// WithLogger sets the logger used for degraded persistence paths
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store backed by kv. Call Load to read persisted state.
func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		key:      StorageKey,
		maxItems: DefaultMaxItems,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted log. Missing or corrupt data yields an empty log;
// problems are logged and never returned.
func (s *Store) Load(ctx context.Context) []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil

	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to read history, starting empty", zap.Error(err))
		}
		return nil
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Persisted history is corrupt, starting empty",
			zap.Error(err),
			zap.Int("bytes", len(data)))
		return nil
	}

	if len(entries) > s.maxItems {
		entries = entries[:s.maxItems]
	}
	s.entries = entries

	s.logger.Debug("History loaded", zap.Int("entries", len(entries)))
	return s.snapshot()
}

// Append records a submission attempt at the front of the log, evicts the
// oldest entries beyond the bound and persists the result.
func (s *Store) Append(ctx context.Context, kind models.Kind, request json.RawMessage, result models.SubmissionResult) models.HistoryEntry {
	// Non-JSON snapshots are kept as a JSON string so the log stays encodable
	if len(request) > 0 && !json.Valid(request) {
		request, _ = json.Marshal(string(request))
	}

	now := s.now()
	entry := models.HistoryEntry{
		ID:        newID(now),
		Kind:      kind,
		Timestamp: now.UTC(),
		Request:   append(json.RawMessage(nil), request...),
		Result:    result,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.HistoryEntry, 0, len(s.entries)+1)
	entries = append(entries, entry)
	entries = append(entries, s.entries...)
	if len(entries) > s.maxItems {
		entries = entries[:s.maxItems]
	}
	s.entries = entries

	if err := s.persist(ctx); err != nil {
		s.logger.Error("Failed to persist history", zap.Error(err), zap.String("entry_id", entry.ID))
	}
	return entry
}

// Clear empties the log and persists the empty state. The in-memory log is
// cleared even when persisting fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.logger.Error("Failed to delete persisted history", zap.Error(err))
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// Entries returns a copy of the log, newest first
func (s *Store) Entries() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ByKind returns up to limit entries of one kind; limit <= 0 means all
func (s *Store) ByKind(kind models.Kind, limit int) []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.HistoryEntry
	for _, e := range s.entries {
		if e.Kind != kind {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// FindByID looks an entry up for replay
func (s *Store) FindByID(id string) (models.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.HistoryEntry{}, false
}

// Replay reconstructs the editable state of the entry with the given id
func (s *Store) Replay(id string) (models.EditableState, error) {
	entry, ok := s.FindByID(id)
	if !ok {
		return nil, fmt.Errorf("history entry %q not found", id)
	}
	return replay.Entry(entry)
}

// Export serializes a snapshot of the log in the given format
func (s *Store) Export(format string) ([]byte, error) {
	entries := s.Entries()
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(entries, "", "  ")
	case FormatYAML, FormatMsgpack:
		// Re-decode so raw JSON requests become plain trees in the target format
		data, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}
		var tree []any
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
		if strings.ToLower(format) == FormatYAML {
			return yaml.Marshal(tree)
		}
		return msgpack.Marshal(tree)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// persist writes the full log; callers hold s.mu
func (s *Store) persist(ctx context.Context) error {
	entries := s.entries
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// snapshot copies the log; callers hold s.mu
func (s *Store) snapshot() []models.HistoryEntry {
	if s.entries == nil {
		return nil
	}
	out := make([]models.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// newID combines a base36 millisecond timestamp with a random suffix
func newID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
