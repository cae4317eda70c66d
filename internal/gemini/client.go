// Package gemini implements the LLM request executor: one generation call
// against the Gemini generateContent endpoint, with response classification,
// key rotation on quota/auth failures, and escalating full-pool backoff.
//
// The crux of this package is telling failure classes apart. Content-policy
// blocks cannot be fixed by switching keys, quota and auth errors can, and
// transient server or network errors only need a short wait. Conflating them
// either wastes retries or abandons recoverable calls.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"novel-translator/internal/keypool"
	"novel-translator/internal/logger"
	"novel-translator/internal/types"
)

// DefaultBaseURL is the Gemini REST endpoint prefix.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GenerateRequest describes one generation call.
type GenerateRequest struct {
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

// StatsRecorder receives per-key usage accounting. Implementations must
// tolerate being called from the executor's retry loop.
type StatsRecorder interface {
	RecordKeyUsage(keyIndex int, success bool, errMsg string)
}

// Client executes generation calls through a key rotation pool.
type Client struct {
	pool    *keypool.Pool
	http    *http.Client
	model   string
	baseURL string
	policy  RetryPolicy
	stats   StatsRecorder

	// sleep is injectable so tests can collapse minute-scale backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint (mock servers).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithStats attaches a per-key usage recorder.
func WithStats(s StatsRecorder) Option {
	return func(c *Client) { c.stats = s }
}

// WithSleep replaces the sleep function (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a Client over pool. Timeout applies per HTTP request and
// is minutes-scale in production: large-chapter responses are slow.
func NewClient(pool *keypool.Pool, model string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		pool:    pool,
		http:    &http.Client{Timeout: timeout},
		model:   model,
		baseURL: DefaultBaseURL,
		policy:  DefaultRetryPolicy(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Generate performs one generation call, rotating keys as needed.
//
// Returns the generated text on success. Content-policy blocks and empty
// responses surface as ErrContentBlocked / ErrEmptyResponse without marking
// any key failed; the caller decides on an alternate strategy such as
// shrinking the input. Quota and auth errors rotate keys; when the whole pool
// is failed the escalating cool-down runs, and repeated exhaustion is fatal.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	maxAttempts := c.pool.Size() * c.policy.MaxCycles
	attempts := 0
	serverRetried := false

	for attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			return "", types.NewAppError(types.ErrInternal, "generation canceled", err)
		}

		idx, key := c.pool.Current()
		if c.pool.IsFailed(idx) {
			c.pool.Advance()
			if c.pool.AllFailed() {
				if err := c.coolDown(ctx); err != nil {
					return "", err
				}
				// Fresh attempt budget after a completed cool-down.
				attempts = 0
			}
			continue
		}

		text, err := c.doRequest(ctx, key, req)
		if err == nil {
			c.pool.MarkSuccess()
			c.record(idx, true, "")
			return text, nil
		}

		switch types.CodeOf(err) {
		case types.ErrContentBlocked, types.ErrEmptyResponse:
			// Not fixable by key switch; do not mark the key failed.
			c.record(idx, false, string(types.CodeOf(err)))
			return "", err

		case types.ErrAPIRateLimit:
			logger.Warn("rate limit hit, rotating key", logger.Int("keyIndex", idx))
			c.record(idx, false, "rate limit")
			c.pool.MarkFailed(idx)
			c.pool.Advance()

		case types.ErrAPIAuth:
			logger.Warn("auth error, rotating key", logger.Int("keyIndex", idx))
			c.record(idx, false, "auth error")
			c.pool.MarkFailed(idx)
			c.pool.Advance()

		case types.ErrNetwork:
			// Network issues are not the key's fault.
			logger.Warn("network error, retrying", logger.Err(err), logger.Int("attempt", attempts+1))
			c.record(idx, false, "network error")
			if serr := c.sleep(ctx, c.policy.NetworkErrorDelay); serr != nil {
				return "", types.NewAppError(types.ErrInternal, "generation canceled", serr)
			}

		default:
			if isServerError(err) && !serverRetried {
				// One same-key retry after a brief pause, then rotate.
				serverRetried = true
				logger.Warn("server error, retrying same key", logger.Err(err), logger.Int("keyIndex", idx))
				c.record(idx, false, "server error")
				if serr := c.sleep(ctx, c.policy.ServerErrorDelay); serr != nil {
					return "", types.NewAppError(types.ErrInternal, "generation canceled", serr)
				}
			} else {
				// Provider-side trouble is not the key's fault: rotate
				// without marking, so an outage never burns the
				// quota-exhaustion backoff schedule. Only 429/401/403
				// count against key health.
				serverRetried = false
				logger.Warn("API error, rotating key", logger.Err(err), logger.Int("keyIndex", idx))
				c.record(idx, false, err.Error())
				c.pool.Advance()
			}
		}

		attempts++

		if c.pool.AllFailed() {
			if err := c.coolDown(ctx); err != nil {
				return "", err
			}
			attempts = 0
		}
	}

	return "", types.NewAppErrorWithDetails(types.ErrAPICall,
		"request attempts exhausted",
		fmt.Sprintf("gave up after %d attempts", maxAttempts), nil)
}

// coolDown handles the situation where every key is marked failed: wait out
// the escalating schedule, clear the failed set, and try again. Running past
// the end of the schedule is fatal.
func (c *Client) coolDown(ctx context.Context) error {
	n := c.pool.RecordExhaustion()
	if n > len(c.policy.ExhaustionBackoff) {
		return types.NewAppErrorWithDetails(types.ErrKeysExhausted,
			"all API keys unavailable",
			fmt.Sprintf("pool of %d keys exhausted %d times in a row", c.pool.Size(), n), nil)
	}
	wait := c.policy.ExhaustionBackoff[n-1]
	logger.Warn("all keys exhausted, cooling down",
		logger.Int("exhaustion", n),
		logger.Duration("wait", wait))
	if err := c.sleep(ctx, wait); err != nil {
		return types.NewAppError(types.ErrInternal, "cool-down canceled", err)
	}
	c.pool.Reset()
	return nil
}

func (c *Client) record(idx int, success bool, errMsg string) {
	if c.stats != nil {
		c.stats.RecordKeyUsage(idx, success, errMsg)
	}
}

// isServerError reports whether err is a 5xx-class API error.
func isServerError(err error) bool {
	appErr, ok := err.(*types.AppError)
	if !ok {
		return false
	}
	return appErr.Code == types.ErrAPICall && strings.Contains(appErr.Details, "status 5")
}
