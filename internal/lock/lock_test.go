package lock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	l, err := New("redis://"+mr.Addr(), "", slog.Default())
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	return l, mr
}

func TestAcquireAndRelease(t *testing.T) {
	l, mr := setupTestLocker(t)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	release, err := l.Acquire(ctx, "0xabc", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists(keyPrefix + "0xabc") {
		t.Error("lock key should exist after Acquire")
	}

	release()
	if mr.Exists(keyPrefix + "0xabc") {
		t.Error("lock key should be gone after release")
	}
}

func TestAcquireHeld(t *testing.T) {
	l, mr := setupTestLocker(t)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	release, err := l.Acquire(ctx, "0xabc", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if _, err := l.Acquire(ctx, "0xabc", time.Minute); !errors.Is(err, ErrHeld) {
		t.Errorf("second Acquire error = %v, want ErrHeld", err)
	}
	other, err := l.Acquire(ctx, "0xdef", time.Minute)
	if err != nil {
		t.Errorf("Acquire on a different key: %v", err)
	} else {
		other()
	}
}

func TestAcquireExpires(t *testing.T) {
	l, mr := setupTestLocker(t)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	if _, err := l.Acquire(ctx, "0xabc", time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	release, err := l.Acquire(ctx, "0xabc", time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	release()
}

func TestStaleReleaseKeepsNewOwner(t *testing.T) {
	l, mr := setupTestLocker(t)
	defer mr.Close()
	defer l.Close()

	ctx := context.Background()
	stale, err := l.Acquire(ctx, "0xabc", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := l.Acquire(ctx, "0xabc", time.Minute); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	stale()
	if !mr.Exists(keyPrefix + "0xabc") {
		t.Error("stale release must not remove the new owner's lock")
	}
}

func TestNewUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := New("redis://"+addr, "", nil); err == nil {
		t.Error("New should fail when Redis is down")
	}
}

func TestReleaseFailureIsLogged(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	var buf bytes.Buffer
	l, err := New("redis://"+mr.Addr(), "", slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	release, err := l.Acquire(context.Background(), "0xabc", time.Minute)
	if err != nil {
		mr.Close()
		t.Fatalf("Acquire: %v", err)
	}
	mr.Close()
	release()

	if !strings.Contains(buf.String(), "failed to release signer lock") {
		t.Errorf("release failure not logged: %q", buf.String())
	}
}
