package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLease(t *testing.T) (*RedisLease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLease(rdb), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := newTestLease(t)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, err := l.Acquire(ctx, "sweep", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should be refused: ok=%v err=%v", ok, err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, ok, err := l.Acquire(ctx, "sweep", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLeaseExpires(t *testing.T) {
	l, mr := newTestLease(t)
	ctx := context.Background()

	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); !ok {
		t.Fatalf("first acquire refused")
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := l.Acquire(ctx, "sweep", time.Minute); err != nil || !ok {
		t.Fatalf("expired lease should be free: ok=%v err=%v", ok, err)
	}
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	l, mr := newTestLease(t)
	ctx := context.Background()

	stale, ok, _ := l.Acquire(ctx, "sweep", time.Minute)
	if !ok {
		t.Fatalf("first acquire refused")
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); !ok {
		t.Fatalf("second acquire refused")
	}

	if err := stale(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(keyPrefix + "sweep") {
		t.Fatalf("stale release removed the new holder's lease")
	}
}

func TestAcquireReportsConnectionErrors(t *testing.T) {
	l, mr := newTestLease(t)
	mr.Close()

	if _, _, err := l.Acquire(context.Background(), "sweep", time.Minute); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestNoopAlwaysGrants(t *testing.T) {
	release, ok, err := Noop{}.Acquire(context.Background(), "sweep", time.Minute)
	if err != nil || !ok || release(context.Background()) != nil {
		t.Fatalf("noop lease should always succeed")
	}
}
