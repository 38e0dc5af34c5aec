package api

import (
	"context"
	"sync"
	"time"
)

// pacer spaces requests to one host. Each call reserves the next free slot;
// up to burst calls may land at once after an idle period.
type pacer struct {
	mu       sync.Mutex
	interval time.Duration
	slack    time.Duration
	next     time.Time
}

func newPacer(ratePerSec float64, burst int) *pacer {
	if ratePerSec <= 0 {
		return nil
	}
	interval := time.Duration(float64(time.Second) / ratePerSec)
	return &pacer{interval: interval, slack: time.Duration(max(burst-1, 0)) * interval}
}

func (p *pacer) reserve(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if floor := now.Add(-p.slack); p.next.Before(floor) {
		p.next = floor
	}
	delay := max(p.next.Sub(now), 0)
	p.next = p.next.Add(p.interval)
	return delay
}

func (p *pacer) release() {
	p.mu.Lock()
	p.next = p.next.Add(-p.interval)
	p.mu.Unlock()
}

// Wait sleeps until the reserved slot. A nil pacer never waits. A slot given
// up through ctx is handed back to later callers.
func (p *pacer) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil || p == nil {
		return 0, err
	}
	delay := p.reserve(time.Now())
	if delay == 0 {
		return 0, nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		p.release()
		return 0, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}

// pacerSet paces each host on its own, so a slow Deezer catalog walk does
// not hold up an Audible license request.
type pacerSet struct {
	mu         sync.Mutex
	byHost     map[string]*pacer
	ratePerSec float64
	burst      int
}

func newPacerSet(ratePerSec float64, burst int) *pacerSet {
	return &pacerSet{byHost: make(map[string]*pacer), ratePerSec: ratePerSec, burst: burst}
}

func (ps *pacerSet) For(host string) *pacer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.byHost[host]
	if !ok {
		p = newPacer(ps.ratePerSec, ps.burst)
		ps.byHost[host] = p
	}
	return p
}
