// Package keypool holds a rotating pool of API credentials for one LLM
// endpoint. It tracks which keys have been marked failed during the current
// cycle and how many times the whole pool has been exhausted in a row.
//
// The pool is process-local state: it performs no I/O and is not meant to be
// shared across orchestrator processes.
package keypool

import "sync"

// Pool rotates through a fixed, ordered list of credentials.
type Pool struct {
	mu          sync.Mutex
	keys        []string
	current     int
	failed      map[int]bool
	exhaustions int
}

// New creates a pool over keys. The caller guarantees len(keys) > 0.
func New(keys []string) *Pool {
	ks := make([]string, len(keys))
	copy(ks, keys)
	return &Pool{keys: ks, failed: make(map[int]bool)}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Current returns the active credential and its index.
func (p *Pool) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.keys[p.current]
}

// Advance moves the pointer to the next credential, wrapping around. It has
// no side effects beyond the pointer move.
func (p *Pool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = (p.current + 1) % len(p.keys)
}

// MarkFailed records index as failed for this cycle. The marking is advisory:
// failed keys are skipped, not removed, and Reset clears the set.
func (p *Pool) MarkFailed(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= 0 && index < len(p.keys) {
		p.failed[index] = true
	}
}

// IsFailed reports whether index is marked failed in the current cycle.
func (p *Pool) IsFailed(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed[index]
}

// AllFailed reports whether every credential is marked failed.
func (p *Pool) AllFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed) == len(p.keys)
}

// FailedCount returns how many credentials are currently marked failed.
func (p *Pool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

// Reset clears the failed set. Called after a full-cycle backoff completes.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = make(map[int]bool)
}

// RecordExhaustion increments the consecutive full-pool exhaustion counter
// and returns the new count.
func (p *Pool) RecordExhaustion() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhaustions++
	return p.exhaustions
}

// Exhaustions returns the consecutive full-pool exhaustion count.
func (p *Pool) Exhaustions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhaustions
}

// MarkSuccess clears the consecutive exhaustion counter after a successful
// request.
func (p *Pool) MarkSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhaustions = 0
}
