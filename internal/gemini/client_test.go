package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"novel-translator/internal/keypool"
	"novel-translator/internal/types"
)

func okBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":10}}`, text)
}

// recordedSleep collects requested sleep durations without waiting.
type recordedSleep struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
	return nil
}

func newTestClient(t *testing.T, keys []string, handler http.HandlerFunc) (*Client, *recordedSleep) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rs := &recordedSleep{}
	pool := keypool.New(keys)
	c := NewClient(pool, "test-model", 5*time.Second,
		WithBaseURL(srv.URL),
		WithSleep(rs.sleep))
	return c, rs
}

func TestGenerateSuccess(t *testing.T) {
	c, _ := newTestClient(t, []string{"k1"}, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "k1" {
			t.Errorf("expected key k1 in query, got %q", got)
		}
		fmt.Fprint(w, okBody("перевод"))
	})

	text, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "translate this"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "перевод" {
		t.Fatalf("got %q", text)
	}
}

func TestGenerateContentBlockedNoRotation(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, []string{"k1", "k2"}, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if types.CodeOf(err) != types.ErrContentBlocked {
		t.Fatalf("expected CONTENT_BLOCKED, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("content block must not retry, got %d calls", calls)
	}
	if c.pool.FailedCount() != 0 {
		t.Fatal("content block must not mark any key failed")
	}
}

func TestGenerateSafetyFinishReason(t *testing.T) {
	c, _ := newTestClient(t, []string{"k1"}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if types.CodeOf(err) != types.ErrContentBlocked {
		t.Fatalf("expected CONTENT_BLOCKED, got %v", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	c, _ := newTestClient(t, []string{"k1"}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if types.CodeOf(err) != types.ErrEmptyResponse {
		t.Fatalf("expected EMPTY_RESPONSE, got %v", err)
	}
	if c.pool.FailedCount() != 0 {
		t.Fatal("empty response must not mark any key failed")
	}
}

func TestGenerateRotatesOnRateLimit(t *testing.T) {
	var keysSeen []string
	c, _ := newTestClient(t, []string{"k1", "k2", "k3"}, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		keysSeen = append(keysSeen, key)
		if key != "k3" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded"}}`)
			return
		}
		fmt.Fprint(w, okBody("ok"))
	})

	text, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("got %q", text)
	}
	want := []string{"k1", "k2", "k3"}
	if len(keysSeen) != len(want) {
		t.Fatalf("keys seen: %v", keysSeen)
	}
	for i := range want {
		if keysSeen[i] != want[i] {
			t.Fatalf("keys seen: %v, want %v", keysSeen, want)
		}
	}
}

func TestGenerateExhaustionBackoffThenSuccess(t *testing.T) {
	// All three keys rate limited on the first cycle; after the cool-down
	// the quota is back and the first key succeeds.
	var mu sync.Mutex
	calls := 0
	c, rs := newTestClient(t, []string{"k1", "k2", "k3"}, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, okBody("restored"))
	})

	text, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "restored" {
		t.Fatalf("got %q", text)
	}

	if len(rs.slept) == 0 {
		t.Fatal("expected a cool-down sleep")
	}
	if rs.slept[0] != DefaultRetryPolicy().ExhaustionBackoff[0] {
		t.Fatalf("first cool-down = %v, want %v", rs.slept[0], DefaultRetryPolicy().ExhaustionBackoff[0])
	}
	if c.pool.Exhaustions() != 0 {
		t.Fatal("success must clear the exhaustion counter")
	}
}

func TestGenerateKeysExhaustedFatal(t *testing.T) {
	c, rs := newTestClient(t, []string{"k1", "k2"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if types.CodeOf(err) != types.ErrKeysExhausted {
		t.Fatalf("expected KEYS_EXHAUSTED, got %v", err)
	}

	// Both backoff tiers must have been waited out before giving up.
	backoff := DefaultRetryPolicy().ExhaustionBackoff
	if len(rs.slept) != len(backoff) {
		t.Fatalf("slept %v, want the full schedule %v", rs.slept, backoff)
	}
	for i := range backoff {
		if rs.slept[i] != backoff[i] {
			t.Fatalf("sleep %d = %v, want %v", i, rs.slept[i], backoff[i])
		}
	}
}

func TestGenerateAuthErrorRotates(t *testing.T) {
	c, _ := newTestClient(t, []string{"bad", "good"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"key revoked"}}`)
			return
		}
		fmt.Fprint(w, okBody("ok"))
	})

	text, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("got %q", text)
	}
	if !c.pool.IsFailed(0) {
		t.Fatal("auth-failed key must be marked")
	}
}

func TestGenerateServerErrorRetriesSameKey(t *testing.T) {
	var keysSeen []string
	c, rs := newTestClient(t, []string{"k1", "k2"}, func(w http.ResponseWriter, r *http.Request) {
		keysSeen = append(keysSeen, r.URL.Query().Get("key"))
		if len(keysSeen) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, okBody("ok"))
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keysSeen) != 2 || keysSeen[0] != "k1" || keysSeen[1] != "k1" {
		t.Fatalf("5xx should retry the same key once, saw %v", keysSeen)
	}
	if len(rs.slept) != 1 || rs.slept[0] != DefaultRetryPolicy().ServerErrorDelay {
		t.Fatalf("expected one server-error delay, got %v", rs.slept)
	}
	if c.pool.FailedCount() != 0 {
		t.Fatal("a recovered 5xx must not mark the key failed")
	}
}

func TestGeneratePersistentServerErrorsNeverExhaustPool(t *testing.T) {
	// A provider outage: every request on every key returns 500. The call
	// must give up as a plain API error, not burn the exhaustion backoff
	// schedule or mark healthy keys failed.
	c, rs := newTestClient(t, []string{"k1", "k2"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{UserPrompt: "x"})
	if types.CodeOf(err) != types.ErrAPICall {
		t.Fatalf("expected API_CALL, got %v", err)
	}
	if c.pool.FailedCount() != 0 {
		t.Fatal("5xx responses must not mark keys failed")
	}
	if c.pool.Exhaustions() != 0 {
		t.Fatal("5xx responses must not count as pool exhaustion")
	}
	for i, d := range rs.slept {
		if d != DefaultRetryPolicy().ServerErrorDelay {
			t.Fatalf("sleep %d = %v, want only server-error delays", i, d)
		}
	}
}

func TestGenerateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(t, []string{"k1"}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, okBody("never"))
	})

	_, err := c.Generate(ctx, GenerateRequest{UserPrompt: "x"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
