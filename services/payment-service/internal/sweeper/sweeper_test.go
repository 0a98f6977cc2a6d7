package sweeper

import (
	"context"
	"testing"
	"time"
)

func TestTentativeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := TentativeCutoff(now, 24*time.Hour)
	want := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", got, want)
	}

	// Zero and negative TTLs fall back to the 24h default.
	if got := TentativeCutoff(now, 0); !got.Equal(want) {
		t.Fatalf("zero ttl cutoff = %v, want %v", got, want)
	}
	if got := TentativeCutoff(now, -time.Hour); !got.Equal(want) {
		t.Fatalf("negative ttl cutoff = %v, want %v", got, want)
	}
}

func TestSleepCtxReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if sleepCtx(ctx, time.Minute) {
		t.Fatal("sleepCtx reported a full wait on a cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleepCtx did not return promptly on cancellation")
	}
}
