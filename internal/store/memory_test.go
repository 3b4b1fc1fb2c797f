package store

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/aimorme/datewise-backend/internal/pkg/errors"
)

func TestMemorySetNXOnlyFirstWriteWins(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	ok, err := m.SetNX(ctx, LockKey("r1"), []byte("1"), time.Minute)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if !ok {
		t.Fatalf("first SetNX should win")
	}

	ok, err = m.SetNX(ctx, LockKey("r1"), []byte("2"), time.Minute)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if ok {
		t.Fatalf("second SetNX should lose")
	}

	raw, err := m.Get(ctx, LockKey("r1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(raw) != "1" {
		t.Fatalf("lock value overwritten: %q", raw)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	m.SetClock(func() time.Time { return now })

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	d, err := m.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if d != 10*time.Second {
		t.Fatalf("ttl = %v, want 10s", d)
	}

	now = now.Add(11 * time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemorySetNXAfterExpiryWins(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	now := time.Unix(2000, 0)
	m.SetClock(func() time.Time { return now })

	if ok, _ := m.SetNX(ctx, "lock", []byte("a"), 5*time.Second); !ok {
		t.Fatalf("first SetNX should win")
	}
	now = now.Add(6 * time.Second)
	ok, err := m.SetNX(ctx, "lock", []byte("b"), 5*time.Second)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if !ok {
		t.Fatalf("SetNX should win once the previous holder expired")
	}
}

func TestMemoryExpireAndKeys(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	now := time.Unix(3000, 0)
	m.SetClock(func() time.Time { return now })

	_ = m.Set(ctx, ProgressKey("a"), []byte("{}"), 0)
	_ = m.Set(ctx, ProgressKey("b"), []byte("{}"), 2*time.Second)
	_ = m.Set(ctx, ResultKey("a"), []byte("{}"), time.Hour)

	if d, err := m.TTL(ctx, ProgressKey("a")); err != nil || d != -1 {
		t.Fatalf("no-expiry ttl = %v, %v; want -1, nil", d, err)
	}

	ok, err := m.Expire(ctx, ProgressKey("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expire live key = %v, %v", ok, err)
	}
	if ok, _ := m.Expire(ctx, ProgressKey("missing"), time.Minute); ok {
		t.Fatalf("expire on missing key should report false")
	}

	now = now.Add(3 * time.Second)
	keys, err := m.Keys(ctx, ProgressPrefix())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != ProgressKey("a") {
		t.Fatalf("unexpected keys: %#v", keys)
	}
}
