package main

import (
	"context"
	"errors"
	mrand "math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestRunPhaseCountsFailures(t *testing.T) {
	s := runPhase(100, 8, func(_ *mrand.Rand, i int) error {
		if i%10 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if s.ops != 100 || s.failures != 10 {
		t.Fatalf("ops=%d failures=%d", s.ops, s.failures)
	}
}

func TestCodeCatcher(t *testing.T) {
	c := &codeCatcher{}
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = c.Send(context.Background(), "a@example.com", "s", "<p>Your verification code is <strong>042517</strong>.</p>")
	}()
	code, ok := c.await("a@example.com", time.Second)
	if !ok || code != "042517" {
		t.Fatalf("code=%q ok=%v", code, ok)
	}
	if _, ok := c.await("b@example.com", 10*time.Millisecond); ok {
		t.Fatal("unexpected code")
	}
}
