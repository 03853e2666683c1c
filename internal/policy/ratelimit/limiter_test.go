package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacerUnlimitedByDefault(t *testing.T) {
	p := NewPacer(PacerConfig{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		if _, err := p.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("unpaced waits should be immediate, took %v", time.Since(start))
	}
}

func TestPacerSpacesRequests(t *testing.T) {
	// 600 per minute = one token every 100ms.
	p := NewPacer(PacerConfig{RequestsPerMinute: 600, Burst: 1})
	ctx := context.Background()

	if _, err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	waited, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if waited < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", waited)
	}
}

func TestPacerHonorsContext(t *testing.T) {
	p := NewPacer(PacerConfig{RequestsPerMinute: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
