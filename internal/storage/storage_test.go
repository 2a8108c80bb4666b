package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/oicur0t/forwardog/internal/config"
	"go.uber.org/zap"
)

// exerciseKV runs the behaviour every driver must share
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "forwardog_history"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing key, got %v", err)
	}

	if err := kv.Set(ctx, "forwardog_history", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "forwardog_theme", []byte("light")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := kv.Get(ctx, "forwardog_history")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("Unexpected value %q", got)
	}

	if err := kv.Set(ctx, "forwardog_history", []byte(`[]`)); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = kv.Get(ctx, "forwardog_history")
	if string(got) != `[]` {
		t.Errorf("Expected overwritten value, got %q", got)
	}

	theme, err := kv.Get(ctx, "forwardog_theme")
	if err != nil || string(theme) != "light" {
		t.Errorf("Expected independent theme key, got %q (%v)", theme, err)
	}

	if err := kv.Delete(ctx, "forwardog_history"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := kv.Get(ctx, "forwardog_history"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := kv.Delete(ctx, "forwardog_history"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewFileKV failed: %v", err)
	}
	exerciseKV(t, kv)
}

func TestFileKVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := kv.Set(context.Background(), "forwardog_history", []byte("[]")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "forwardog_history.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected a single history file, got %v", names)
	}
}

func TestFileKVSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	kv, _ := NewFileKV(dir)
	if err := kv.Set(context.Background(), "../escape", []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".._escape.json")); err != nil {
		t.Errorf("Expected sanitized key file inside the directory: %v", err)
	}
}

func TestRedisKV(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKV(client, "forwardog:")
	defer kv.Close(context.Background())

	exerciseKV(t, kv)

	if err := kv.Set(context.Background(), "forwardog_theme", []byte("dark")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, err := mr.Get("forwardog:forwardog_theme"); err != nil || got != "dark" {
		t.Errorf("Expected prefixed key in redis, got %q (%v)", got, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, config.StorageConfig{Driver: config.StorageDriverFile, Dir: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open(file) failed: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Errorf("Expected *FileKV, got %T", kv)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	kv, err = Open(ctx, config.StorageConfig{
		Driver: config.StorageDriverRedis,
		Redis:  config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "fw:"},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open(redis) failed: %v", err)
	}
	defer kv.Close(ctx)
	if _, ok := kv.(*RedisKV); !ok {
		t.Errorf("Expected *RedisKV, got %T", kv)
	}

	if _, err := Open(ctx, config.StorageConfig{Driver: "sqlite"}, zap.NewNop()); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
