package storage

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

func TestMongoKV(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get found", func(mt *mtest.T) {
		kv := newMongoKV(mt.Coll, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "forwardog_history"},
			{Key: "value", Value: []byte(`[{"id":"a"}]`)},
		}))

		got, err := kv.Get(context.Background(), "forwardog_history")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `[{"id":"a"}]` {
			t.Errorf("Unexpected value %q", got)
		}
	})

	mt.Run("get missing", func(mt *mtest.T) {
		kv := newMongoKV(mt.Coll, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		if _, err := kv.Get(context.Background(), "forwardog_theme"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("get server error", func(mt *mtest.T) {
		kv := newMongoKV(mt.Coll, zap.NewNop())
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		_, err := kv.Get(context.Background(), "forwardog_history")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Expected a wrapped server error, got %v", err)
		}
	})

	mt.Run("set and delete", func(mt *mtest.T) {
		kv := newMongoKV(mt.Coll, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		if err := kv.Set(context.Background(), "forwardog_theme", []byte(`"dark"`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := kv.Delete(context.Background(), "forwardog_theme"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	})
}
