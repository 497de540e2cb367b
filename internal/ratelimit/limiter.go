// Package ratelimit implements fixed-window admission control for outbound
// calls, keyed by principal and operation class. State lives only in memory;
// it is owned by the limiter instance and torn down with it, never shared
// through package globals.
package ratelimit

import (
	"sync"
	"time"
)

// Op is a class of limited operation.
type Op string

const (
	// OpSearch guards provider queries.
	OpSearch Op = "search"
	// OpSend guards notification sends.
	OpSend Op = "send"
)

// Config carries the window parameters. They are deployment tuning, not part
// of the worker's contract.
type Config struct {
	Window    time.Duration
	Limits    map[Op]int
	Retention time.Duration
}

// Result is the outcome of an admission check. RetryAfter is only meaningful
// when Allowed is false and estimates the time left in the current window.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type key struct {
	principal int64
	op        Op
}

type window struct {
	count    int
	start    time.Time
	lastSeen time.Time
}

// Limiter counts requests per (principal, op) in fixed windows and prunes
// state for principals that have gone quiet.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[key]*window

	now func() time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		windows: map[key]*window{},
		now:     time.Now,
	}
}

// Check admits or denies one request for the principal's operation class.
func (l *Limiter) Check(principal int64, op Op) Result {
	limit, ok := l.cfg.Limits[op]
	if !ok || limit <= 0 {
		return Result{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{principal: principal, op: op}
	w, ok := l.windows[k]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.windows[k] = &window{count: 1, start: now, lastSeen: now}
		return Result{Allowed: true}
	}
	w.lastSeen = now
	if w.count < limit {
		w.count++
		return Result{Allowed: true}
	}
	return Result{
		Allowed:    false,
		RetryAfter: l.cfg.Window - now.Sub(w.start),
	}
}

// Reset clears all windows for the principal.
func (l *Limiter) Reset(principal int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.windows {
		if k.principal == principal {
			delete(l.windows, k)
		}
	}
}

// Sweep removes windows for principals inactive past the retention threshold
// and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.cfg.Retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if w.lastSeen.Before(cutoff) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// Size returns the number of live windows. Surfaced as a gauge after sweeps.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
