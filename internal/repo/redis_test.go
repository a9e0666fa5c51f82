package repo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisStorage(t *testing.T) *RedisStorage {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	s, err := NewRedisStorage(context.Background(), RedisOptions{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage {
		return newMiniredisStorage(t)
	})
}

func TestRedisStorage_ConnectFailure(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := server.Addr()
	server.Close()

	if _, err := NewRedisStorage(context.Background(), RedisOptions{Addr: addr}); err == nil {
		t.Error("expected connection error")
	}
}

func TestRedisStorage_KeyLayout(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	s := NewRedisStorageWithClient(client)
	defer s.Close()

	ctx := context.Background()
	wf := newTestWorkflow("layout", "/hooks/layout")
	if _, err := s.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	if !server.Exists(workflowPrefix + wf.ID.String()) {
		t.Error("expected workflow key")
	}
	owner, err := server.Get(endpointPrefix + "/hooks/layout")
	if err != nil || owner != wf.ID.String() {
		t.Errorf("expected endpoint to point at workflow, got %q, %v", owner, err)
	}
}
