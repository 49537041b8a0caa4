package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	defer p.Close()
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestMemoryProviderMiss(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	defer p.Close()

	if _, err := p.Get(context.Background(), "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	defer p.Close()
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryProviderJanitorSweeps(t *testing.T) {
	p := NewMemoryProvider(10 * time.Millisecond)
	defer p.Close()
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for p.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not sweep expired entry, len=%d", p.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryProviderDel(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	defer p.Close()
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	defer p.Close()
	ctx := context.Background()

	src := []byte("abc")
	if err := p.Set(ctx, "k", src, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	src[0] = 'z'

	got, err := p.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("stored value must not alias the caller's slice, got %q", got)
	}
	got[0] = 'z'

	again, err := p.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(again) != "abc" {
		t.Fatalf("returned value must not alias storage, got %q", again)
	}
}

func TestMemoryProviderCloseIdempotent(t *testing.T) {
	p := NewMemoryProvider(time.Minute)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
