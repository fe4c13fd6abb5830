package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/alumnet-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestLockAcquireReleaseOwnerScoped(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := LockKey("cron-worker:dev")

	ok, err := client.AcquireLock(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := client.AcquireLock(ctx, key, "owner-b", time.Minute); ok {
		t.Fatalf("expected second acquire to lose")
	}
	if mock.ttls[key] != time.Minute {
		t.Fatalf("expected ttl to be forwarded")
	}

	released, err := client.ReleaseLock(ctx, key, "owner-b")
	if err != nil {
		t.Fatalf("release by stranger: %v", err)
	}
	if released {
		t.Fatalf("non-owner must not release")
	}
	if owner, _ := client.LockOwner(ctx, key); owner != "owner-a" {
		t.Fatalf("expected owner-a to keep the lock, got %q", owner)
	}

	released, err = client.ReleaseLock(ctx, key, "owner-a")
	if err != nil || !released {
		t.Fatalf("owner release: released=%v err=%v", released, err)
	}
	if _, err := client.LockOwner(ctx, key); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil once released, got %v", err)
	}
	if mock.lastScript != releaseScript {
		t.Fatalf("release must go through the compare-and-delete script")
	}
}

func TestUninitializedClient(t *testing.T) {
	ctx := context.Background()
	client := &Client{}
	if err := client.Ping(ctx); err == nil {
		t.Fatalf("expected ping error")
	}
	if _, err := client.AcquireLock(ctx, "k", "v", time.Second); err == nil {
		t.Fatalf("expected acquire error")
	}
	if _, err := client.ReleaseLock(ctx, "k", "v"); err == nil {
		t.Fatalf("expected release error")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op: %v", err)
	}
}

func TestLockKey(t *testing.T) {
	if got := LockKey("counter_reconcile"); got != "alumnet:lock:counter_reconcile" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := LockKey("  "); got != "alumnet:lock" {
		t.Fatalf("blank parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:     "localhost:6379",
		DB:          2,
		PoolSize:    7,
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/3", PoolSize: 4})
	if err != nil {
		t.Fatalf("options from url: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 3 || opts.PoolSize != 4 {
		t.Fatalf("unexpected url options %+v", opts)
	}
}

type mockCmdable struct {
	data       map[string]string
	ttls       map[string]time.Duration
	lastScript string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

// Eval emulates releaseScript: delete KEYS[1] when it holds ARGV[1].
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.lastScript = script
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, errors.New("unexpected script arity"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	delete(m.ttls, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
