package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/oicur0t/forwardog/internal/storage"
	"github.com/oicur0t/forwardog/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

// memKV is an in-memory storage.KV with optional failure injection
type memKV struct {
	data   map[string][]byte
	getErr error
	setErr error
	delErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, key)
	return nil
}

func (m *memKV) Close(ctx context.Context) error { return nil }

var okResult = models.SubmissionResult{Success: true, Message: "Metrics submitted successfully", StatusCode: 202}

func request(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d}`, n))
}

func requestN(t *testing.T, e models.HistoryEntry) int {
	t.Helper()
	var v struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(e.Request, &v); err != nil {
		t.Fatalf("Bad request snapshot %s: %v", e.Request, err)
	}
	return v.N
}

func TestAppendBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewStore(kv)
	store.Load(ctx)

	for i := 0; i < 105; i++ {
		store.Append(ctx, models.KindMetricsAPI, request(i), okResult)
	}

	entries := store.Entries()
	if len(entries) != 100 {
		t.Fatalf("Expected 100 entries, got %d", len(entries))
	}
	if n := requestN(t, entries[0]); n != 104 {
		t.Errorf("Expected newest entry first (104), got %d", n)
	}
	if n := requestN(t, entries[99]); n != 5 {
		t.Errorf("Expected oldest kept entry to be 5, got %d", n)
	}
	for i := 1; i < len(entries); i++ {
		if requestN(t, entries[i-1]) != requestN(t, entries[i])+1 {
			t.Fatalf("Order broken at %d", i)
		}
	}

	// Persisted state matches and survives a reload
	reloaded := NewStore(kv).Load(ctx)
	if len(reloaded) != 100 {
		t.Fatalf("Expected 100 persisted entries, got %d", len(reloaded))
	}
	if reloaded[0].ID != entries[0].ID || reloaded[99].ID != entries[99].ID {
		t.Error("Reloaded entries do not match in-memory log")
	}
}

func TestAppendBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("length never exceeds the bound", prop.ForAll(
		func(n int, max int) bool {
			store := NewStore(newMemKV(), WithMaxItems(max))
			for i := 0; i < n; i++ {
				store.Append(context.Background(), models.KindLogsAPI, request(i), okResult)
				if store.Len() > max {
					return false
				}
			}
			want := n
			if want > max {
				want = max
			}
			return store.Len() == want
		},
		gen.IntRange(0, 250),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}

func TestAppendEntryFields(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewStore(newMemKV(), WithClock(func() time.Time { return fixed }))

	entry := store.Append(context.Background(), models.KindDogStatsD, json.RawMessage(`{"line":"a:1|c"}`), okResult)
	if entry.ID == "" {
		t.Error("Expected an id")
	}
	if entry.Kind != models.KindDogStatsD {
		t.Errorf("Expected kind dogstatsd, got %s", entry.Kind)
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Errorf("Expected timestamp %v, got %v", fixed, entry.Timestamp)
	}
	if string(entry.Request) != `{"line":"a:1|c"}` {
		t.Errorf("Unexpected request %s", entry.Request)
	}

	found, ok := store.FindByID(entry.ID)
	if !ok || found.ID != entry.ID {
		t.Error("FindByID did not return the appended entry")
	}
	if _, ok := store.FindByID("missing"); ok {
		t.Error("Expected missing id to be not found")
	}
}

func TestIDsAreUnique(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewStore(newMemKV(), WithMaxItems(1000), WithClock(func() time.Time { return fixed }))

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		e := store.Append(context.Background(), models.KindLogsAPI, request(i), okResult)
		if seen[e.ID] {
			t.Fatalf("Duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestAppendNonJSONRequest(t *testing.T) {
	store := NewStore(newMemKV())
	entry := store.Append(context.Background(), models.KindMetricsAPI, json.RawMessage(`{"series": [`), models.Failed("Invalid JSON", ""))

	var raw string
	if err := json.Unmarshal(entry.Request, &raw); err != nil {
		t.Fatalf("Expected a JSON string snapshot, got %s", entry.Request)
	}
	if raw != `{"series": [` {
		t.Errorf("Expected verbatim text, got %q", raw)
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()

	if got := NewStore(newMemKV()).Load(ctx); len(got) != 0 {
		t.Errorf("Expected empty log for missing record, got %d", len(got))
	}

	core, logs := observer.New(zapcore.WarnLevel)
	kv := newMemKV()
	kv.data[StorageKey] = []byte(`{"not": "a list"`)
	store := NewStore(kv, WithLogger(zap.New(core)))
	if got := store.Load(ctx); len(got) != 0 {
		t.Errorf("Expected empty log for corrupt record, got %d", len(got))
	}
	if logs.FilterMessage("Persisted history is corrupt, starting empty").Len() != 1 {
		t.Error("Expected corrupt history to be logged")
	}

	failing := newMemKV()
	failing.getErr = errors.New("disk on fire")
	core, logs = observer.New(zapcore.WarnLevel)
	if got := NewStore(failing, WithLogger(zap.New(core))).Load(ctx); len(got) != 0 {
		t.Errorf("Expected empty log on read error, got %d", len(got))
	}
	if logs.Len() != 1 {
		t.Errorf("Expected one warning, got %d", logs.Len())
	}
}

func TestLoadTruncatesOversizedRecord(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	big := NewStore(kv, WithMaxItems(20))
	for i := 0; i < 20; i++ {
		big.Append(ctx, models.KindLogsAPI, request(i), okResult)
	}

	small := NewStore(kv, WithMaxItems(5))
	got := small.Load(ctx)
	if len(got) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(got))
	}
	if n := requestN(t, got[0]); n != 19 {
		t.Errorf("Expected newest entry kept, got %d", n)
	}
}

func TestAppendPersistFailureDegrades(t *testing.T) {
	kv := newMemKV()
	kv.setErr = errors.New("read-only filesystem")
	core, logs := observer.New(zapcore.ErrorLevel)
	store := NewStore(kv, WithLogger(zap.New(core)))

	entry := store.Append(context.Background(), models.KindAgentFile, request(1), okResult)
	if entry.ID == "" {
		t.Fatal("Expected entry to be created")
	}
	if store.Len() != 1 {
		t.Errorf("Expected in-memory log to keep the entry, got %d", store.Len())
	}
	if logs.FilterMessage("Failed to persist history").Len() != 1 {
		t.Error("Expected persistence failure to be logged")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewStore(kv)
	for i := 0; i < 3; i++ {
		store.Append(ctx, models.KindLogsForm, request(i), okResult)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty log, got %d", store.Len())
	}
	if _, ok := kv.data[StorageKey]; ok {
		t.Errorf("Expected persisted history to be deleted, got %q", kv.data[StorageKey])
	}
	if got := NewStore(kv).Load(ctx); len(got) != 0 {
		t.Errorf("Expected reload to be empty, got %d", len(got))
	}

	// A failed delete still empties the in-memory log
	store.Append(ctx, models.KindLogsForm, request(9), okResult)
	kv.delErr = errors.New("read-only filesystem")
	if err := store.Clear(ctx); err == nil {
		t.Error("Expected Clear to report the delete failure")
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty log after failed delete, got %d", store.Len())
	}
}

func TestByKind(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemKV())
	store.Append(ctx, models.KindLogsAPI, request(1), okResult)
	store.Append(ctx, models.KindMetricsAPI, request(2), okResult)
	store.Append(ctx, models.KindLogsAPI, request(3), okResult)
	store.Append(ctx, models.KindLogsAPI, request(4), okResult)

	logs := store.ByKind(models.KindLogsAPI, 0)
	if len(logs) != 3 {
		t.Fatalf("Expected 3 logs entries, got %d", len(logs))
	}
	if n := requestN(t, logs[0]); n != 4 {
		t.Errorf("Expected newest logs entry first, got %d", n)
	}
	if got := store.ByKind(models.KindLogsAPI, 2); len(got) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(got))
	}
	if got := store.ByKind(models.KindAgentFile, 0); len(got) != 0 {
		t.Errorf("Expected no agent-file entries, got %d", len(got))
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemKV())

	empty, err := store.Export(FormatJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if string(empty) != "[]" {
		t.Errorf("Expected empty JSON list, got %q", empty)
	}

	store.Append(ctx, models.KindMetricsAPI, json.RawMessage(`{"series":[{"metric":"m"}]}`), okResult)
	store.Append(ctx, models.KindLogsAPI, request(2), okResult)

	data, err := store.Export(FormatJSON)
	if err != nil {
		t.Fatalf("Export(json) failed: %v", err)
	}
	var fromJSON []models.HistoryEntry
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("Export(json) not decodable: %v", err)
	}
	if len(fromJSON) != 2 || fromJSON[0].Kind != models.KindLogsAPI {
		t.Errorf("Unexpected JSON export %+v", fromJSON)
	}

	data, err = store.Export(FormatYAML)
	if err != nil {
		t.Fatalf("Export(yaml) failed: %v", err)
	}
	var fromYAML []map[string]any
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("Export(yaml) not decodable: %v", err)
	}
	if len(fromYAML) != 2 || fromYAML[1]["kind"] != "metrics-api" {
		t.Errorf("Unexpected YAML export %v", fromYAML)
	}

	data, err = store.Export(FormatMsgpack)
	if err != nil {
		t.Fatalf("Export(msgpack) failed: %v", err)
	}
	var fromMsgpack []map[string]any
	if err := msgpack.Unmarshal(data, &fromMsgpack); err != nil {
		t.Fatalf("Export(msgpack) not decodable: %v", err)
	}
	if len(fromMsgpack) != 2 || fromMsgpack[0]["kind"] != "logs-api" {
		t.Errorf("Unexpected msgpack export %v", fromMsgpack)
	}

	if _, err := store.Export("xml"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestReplay(t *testing.T) {
	store := NewStore(newMemKV())
	entry := store.Append(context.Background(), models.KindAgentFile,
		json.RawMessage(`{"messages":["a","b"],"format":"raw","service":"svc","source":"src"}`), okResult)

	state, err := store.Replay(entry.ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	agent, ok := state.(models.AgentFileState)
	if !ok || agent.Text != "a\nb" {
		t.Errorf("Unexpected replay state %#v", state)
	}
	if store.Len() != 1 {
		t.Errorf("Replay must not create entries, got %d", store.Len())
	}

	if _, err := store.Replay("missing"); err == nil {
		t.Error("Expected error for missing id")
	}
}
