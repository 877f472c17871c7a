package transferdemo

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// StubProvider is an in-memory transfer provider, selected by permit-demo's
// --provider=stub (the default). It simulates variable upload latency
// proportional to size so permit-demo's utilization display has something
// non-trivial to show, without requiring any network access.
type StubProvider struct {
	mu      sync.Mutex
	stored  map[string]int64
	perByte time.Duration
}

// NewStubProvider builds a StubProvider. perByte, if zero, defaults to a
// small simulated per-byte delay.
func NewStubProvider(perByte time.Duration) *StubProvider {
	if perByte <= 0 {
		perByte = 200 * time.Nanosecond
	}
	return &StubProvider{stored: make(map[string]int64), perByte: perByte}
}

// Name identifies this provider for logging/display.
func (p *StubProvider) Name() string { return "stub" }

// Upload simulates a transfer by sleeping proportionally to t.Size plus a
// small amount of jitter, then recording the transfer as stored.
func (p *StubProvider) Upload(ctx context.Context, t Transfer) error {
	delay := time.Duration(t.Size) * p.perByte
	jitter := time.Duration(rand.Int63n(int64(20 * time.Millisecond)))
	timer := time.NewTimer(delay + jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	p.mu.Lock()
	p.stored[t.Name] = t.Size
	p.mu.Unlock()
	return nil
}

// Stored returns a snapshot of transfers the stub has "uploaded" so far.
func (p *StubProvider) Stored() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.stored))
	for k, v := range p.stored {
		out[k] = v
	}
	return out
}
