package transferdemo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rescale-labs/permitcoord/internal/permit"
)

// inProcessCoordinator is a minimal in-process CoordinatorClient stand-in
// that grants up to a fixed pool, used to exercise Runner against a real
// permit.Limiter without a socket-based coordinator.
type inProcessCoordinator struct {
	mu        sync.Mutex
	available int
	notifCh   chan struct{}
}

func newInProcessCoordinator(n int) *inProcessCoordinator {
	return &inProcessCoordinator{available: n, notifCh: make(chan struct{}, 1)}
}

func (c *inProcessCoordinator) TryAcquire(ctx context.Context, seq int64, k int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k > c.available {
		k = c.available
	}
	c.available -= k
	return k, nil
}

func (c *inProcessCoordinator) Release(ctx context.Context, seq int64, k int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available += k
	return nil
}

func (c *inProcessCoordinator) RefreshLease(ctx context.Context) error { return nil }
func (c *inProcessCoordinator) Unregister(ctx context.Context) error   { return nil }
func (c *inProcessCoordinator) EnsureCallback(ctx context.Context) error { return nil }
func (c *inProcessCoordinator) Notifications() <-chan struct{}        { return c.notifCh }

// countingProvider records the maximum number of concurrent Upload calls
// it observed, to verify the limiter actually bounds concurrency.
type countingProvider struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	delay       time.Duration
	failNames   map[string]bool
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Upload(ctx context.Context, t Transfer) error {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.inFlight--
	fail := p.failNames[t.Name]
	p.mu.Unlock()

	if fail {
		return errors.New("simulated upload failure")
	}
	return nil
}

func TestRunnerBoundsConcurrencyToPermitPool(t *testing.T) {
	const pool = 3
	coord := newInProcessCoordinator(pool)
	cfg := permit.Config{
		GlobalPermitCount:          pool,
		TargetPermitsPerClient:     pool,
		QueueLimit:                 50,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: 10 * time.Millisecond,
	}
	limiter, err := permit.NewLimiter(cfg, coord, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer limiter.Close()

	prov := &countingProvider{delay: 30 * time.Millisecond}
	runner := NewRunner(limiter, prov, zerolog.Nop())

	transfers := buildTestTransfers(10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := runner.RunBatch(ctx, transfers)
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected transfer error: %v", r.Err)
		}
	}

	prov.mu.Lock()
	maxInFlight := prov.maxInFlight
	prov.mu.Unlock()
	if maxInFlight > pool {
		t.Fatalf("observed %d concurrent uploads, want <= %d", maxInFlight, pool)
	}
}

func TestRunnerRecordsProviderErrors(t *testing.T) {
	const pool = 5
	coord := newInProcessCoordinator(pool)
	cfg := permit.Config{
		GlobalPermitCount:          pool,
		TargetPermitsPerClient:     pool,
		QueueLimit:                 50,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: 10 * time.Millisecond,
	}
	limiter, err := permit.NewLimiter(cfg, coord, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer limiter.Close()

	transfers := buildTestTransfers(4)
	prov := &countingProvider{failNames: map[string]bool{transfers[0].Name: true}}
	runner := NewRunner(limiter, prov, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results := runner.RunBatch(ctx, transfers)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func buildTestTransfers(n int) []Transfer {
	out := make([]Transfer, n)
	for i := range out {
		out[i] = Transfer{Name: "t" + string(rune('a'+i)), Size: 1024}
	}
	return out
}
