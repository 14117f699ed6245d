package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestHitFixedWindow_BlocksAfterLimit(t *testing.T) {
	rdb, mr := setupRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, n, err := HitFixedWindow(ctx, rdb, "login:alice", 3, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !ok || n != int64(i) {
			t.Fatalf("hit %d: expected allowed with count %d, got %v/%d", i, i, ok, n)
		}
	}
	ok, _, err := HitFixedWindow(ctx, rdb, "login:alice", 3, time.Minute)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if ok {
		t.Fatalf("expected fourth hit to be rejected")
	}
	if ttl := mr.TTL("login:alice"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl to be set, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	ok, n, err := HitFixedWindow(ctx, rdb, "login:alice", 3, time.Minute)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if !ok || n != 1 {
		t.Fatalf("expected a fresh window, got %v/%d", ok, n)
	}
}

func TestClearWindow(t *testing.T) {
	rdb, mr := setupRedis(t)
	ctx := context.Background()

	if _, _, err := HitFixedWindow(ctx, rdb, "k", 1, time.Minute); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if err := ClearWindow(ctx, rdb, "k"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected key removed")
	}
}

func TestHitFixedWindow_ValidatesArgs(t *testing.T) {
	rdb, _ := setupRedis(t)
	ctx := context.Background()
	if _, _, err := HitFixedWindow(ctx, rdb, "", 1, time.Minute); err == nil {
		t.Fatalf("expected key error")
	}
	if _, _, err := HitFixedWindow(ctx, rdb, "k", 0, time.Minute); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, _, err := HitFixedWindow(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("expected window error")
	}
}
