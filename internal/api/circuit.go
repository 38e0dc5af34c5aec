package api

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a host's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open: remote service is failing, backing off")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker trips open after threshold consecutive 429/5xx responses,
// stays open for resetTimeout, then lets one probe through.
type circuitBreaker struct {
	mu           sync.Mutex
	state        circuitState
	consecutive  int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
}

func newCircuitBreaker(threshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetTimeout: resetTimeout}
}

// Allow returns the current state and whether the request may proceed.
func (cb *circuitBreaker) Allow() (circuitState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return circuitOpen, false
		}
		cb.state = circuitHalfOpen
	}
	return cb.state, true
}

// RecordSuccess closes the circuit and returns the previous state.
func (cb *circuitBreaker) RecordSuccess() circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	prev := cb.state
	cb.consecutive = 0
	cb.state = circuitClosed
	return prev
}

// RecordFailure counts a 429/5xx and returns the resulting state.
func (cb *circuitBreaker) RecordFailure() circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutive++
	if cb.state == circuitHalfOpen || cb.consecutive >= cb.threshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
	return cb.state
}

// breakerSet keeps one breaker per host so a failing Deezer endpoint does not
// block Audible requests.
type breakerSet struct {
	mu           sync.Mutex
	byHost       map[string]*circuitBreaker
	threshold    int
	resetTimeout time.Duration
}

func newBreakerSet(threshold int, resetTimeout time.Duration) *breakerSet {
	return &breakerSet{
		byHost:       make(map[string]*circuitBreaker),
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

func (bs *breakerSet) For(host string) *circuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	cb, ok := bs.byHost[host]
	if !ok {
		cb = newCircuitBreaker(bs.threshold, bs.resetTimeout)
		bs.byHost[host] = cb
	}
	return cb
}
