package keypool

import "testing"

func TestRotation(t *testing.T) {
	p := New([]string{"a", "b", "c"})

	idx, key := p.Current()
	if idx != 0 || key != "a" {
		t.Fatalf("expected (0, a), got (%d, %s)", idx, key)
	}

	p.Advance()
	idx, key = p.Current()
	if idx != 1 || key != "b" {
		t.Fatalf("expected (1, b), got (%d, %s)", idx, key)
	}

	p.Advance()
	p.Advance() // wraps
	idx, key = p.Current()
	if idx != 0 || key != "a" {
		t.Fatalf("expected wrap to (0, a), got (%d, %s)", idx, key)
	}
}

func TestSingleKeyPool(t *testing.T) {
	p := New([]string{"only"})

	p.Advance()
	idx, key := p.Current()
	if idx != 0 || key != "only" {
		t.Fatalf("single-key pool should never move, got (%d, %s)", idx, key)
	}

	p.MarkFailed(0)
	if !p.AllFailed() {
		t.Fatal("single failed key should exhaust the pool")
	}
}

func TestFailedTracking(t *testing.T) {
	p := New([]string{"a", "b", "c"})

	p.MarkFailed(0)
	p.MarkFailed(2)
	if p.AllFailed() {
		t.Fatal("pool should not be exhausted with one healthy key")
	}
	if got := p.FailedCount(); got != 2 {
		t.Fatalf("expected 2 failed, got %d", got)
	}
	if !p.IsFailed(0) || p.IsFailed(1) || !p.IsFailed(2) {
		t.Fatal("failed set does not match markings")
	}

	p.MarkFailed(1)
	if !p.AllFailed() {
		t.Fatal("pool should be exhausted with all keys failed")
	}

	p.Reset()
	if p.AllFailed() || p.FailedCount() != 0 {
		t.Fatal("reset should clear the failed set")
	}
}

func TestMarkFailedOutOfRange(t *testing.T) {
	p := New([]string{"a", "b"})
	p.MarkFailed(-1)
	p.MarkFailed(7)
	if p.FailedCount() != 0 {
		t.Fatal("out-of-range indexes must be ignored")
	}
}

func TestExhaustionCounter(t *testing.T) {
	p := New([]string{"a", "b"})

	if got := p.RecordExhaustion(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := p.RecordExhaustion(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := p.Exhaustions(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	// A success anywhere breaks the consecutive streak.
	p.MarkSuccess()
	if got := p.Exhaustions(); got != 0 {
		t.Fatalf("expected 0 after success, got %d", got)
	}
	if got := p.RecordExhaustion(); got != 1 {
		t.Fatalf("counter should restart at 1, got %d", got)
	}
}
