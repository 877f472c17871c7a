package permit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig() Config {
	return Config{
		GlobalPermitCount:          100,
		TargetPermitsPerClient:     20,
		QueueLimit:                 200,
		IdleClientTimeout:          200 * time.Millisecond,
		ClientLeaseRefreshInterval: 20 * time.Millisecond,
	}
}

func newTestLimiter(t *testing.T, available int) (*Limiter, *fakeCoordinatorClient) {
	t.Helper()
	fc := newFakeCoordinatorClient(available)
	l, err := NewLimiter(testConfig(), fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	t.Cleanup(l.Close)
	return l, fc
}

func TestAttemptAcquireInvalidArgument(t *testing.T) {
	l, _ := newTestLimiter(t, 100)
	if _, err := l.AttemptAcquire(-1); err == nil {
		t.Fatal("expected error for negative k")
	}
	if _, err := l.AttemptAcquire(101); err == nil {
		t.Fatal("expected error for k > N")
	}
}

func TestAttemptAcquireZeroNoOp(t *testing.T) {
	l, _ := newTestLimiter(t, 100)
	waitForAvailable(t, l, 1)

	lease, err := l.AttemptAcquire(0)
	if err != nil {
		t.Fatalf("AttemptAcquire: %v", err)
	}
	if !lease.Acquired() || lease.Count() != 0 {
		t.Fatalf("expected acquired no-op lease, got %+v", lease)
	}
	lease.Dispose()
	lease.Dispose() // must be a no-op
}

func TestAttemptAcquireFailsWhenEmpty(t *testing.T) {
	fc := newFakeCoordinatorClient(0)
	l, err := NewLimiter(Config{
		GlobalPermitCount:          100,
		TargetPermitsPerClient:     20,
		QueueLimit:                 200,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: time.Minute,
	}, fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer l.Close()

	lease, err := l.AttemptAcquire(5)
	if err != nil {
		t.Fatalf("AttemptAcquire: %v", err)
	}
	if lease.Acquired() {
		t.Fatal("expected failed lease when local cache is empty")
	}
}

func TestAcquireAsyncImmediate(t *testing.T) {
	l, _ := newTestLimiter(t, 100)
	waitForAvailable(t, l, 20)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := l.AcquireAsync(ctx, 10)
	if err != nil {
		t.Fatalf("AcquireAsync: %v", err)
	}
	if !lease.Acquired() || lease.Count() != 10 {
		t.Fatalf("unexpected lease: %+v", lease)
	}
	lease.Dispose()
}

func TestAcquireAsyncQueuesAndFulfills(t *testing.T) {
	fc := newFakeCoordinatorClient(15)
	l, err := NewLimiter(Config{
		GlobalPermitCount:          100,
		TargetPermitsPerClient:     10,
		QueueLimit:                 200,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: 15 * time.Millisecond,
	}, fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lease, err := l.AcquireAsync(ctx, 15)
	if err != nil {
		t.Fatalf("AcquireAsync: %v", err)
	}
	if !lease.Acquired() || lease.Count() != 15 {
		t.Fatalf("expected a queued request fulfilled for 15, got %+v", lease)
	}
	lease.Dispose()
}

func TestAcquireAsyncQueueFull(t *testing.T) {
	fc := newFakeCoordinatorClient(0)
	l, err := NewLimiter(Config{
		GlobalPermitCount:          100,
		TargetPermitsPerClient:     10,
		QueueLimit:                 5,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: time.Minute,
	}, fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Fill the queue, but don't block this test on the reconciler ever
	// satisfying it: the fake has zero permits available, so the call
	// below returns immediately as queue-full. Use a cancellable context
	// on a background goroutine so the first waiter doesn't block the test.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go l.AcquireAsync(bgCtx, 5)
	time.Sleep(20 * time.Millisecond) // let it enqueue

	lease, err := l.AcquireAsync(ctx, 1)
	if err != nil {
		t.Fatalf("AcquireAsync: %v", err)
	}
	if lease.Acquired() {
		t.Fatal("expected queue-full failure")
	}
	if lease.Reason() != ReasonQueueLimitReached {
		t.Fatalf("Reason = %q, want %q", lease.Reason(), ReasonQueueLimitReached)
	}
}

func TestAcquireAsyncCancellation(t *testing.T) {
	fc := newFakeCoordinatorClient(0)
	l, err := NewLimiter(Config{
		GlobalPermitCount:          100,
		TargetPermitsPerClient:     10,
		QueueLimit:                 200,
		IdleClientTimeout:          time.Hour,
		ClientLeaseRefreshInterval: time.Hour,
	}, fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var lease *Lease
	var acquireErr error
	go func() {
		lease, acquireErr = l.AcquireAsync(ctx, 10)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AcquireAsync did not return after cancellation")
	}

	if acquireErr == nil {
		t.Fatal("expected cancellation error")
	}
	if lease != nil {
		t.Fatalf("expected nil lease on true cancellation, got %+v", lease)
	}

	l.mu.Lock()
	outstanding := l.outstandingWaiterPermits
	l.mu.Unlock()
	if outstanding != 0 {
		t.Fatalf("outstandingWaiterPermits = %d, want 0 after cancellation", outstanding)
	}
}

func TestAcquireAfterCloseReturnsErrShutdown(t *testing.T) {
	fc := newFakeCoordinatorClient(100)
	l, err := NewLimiter(testConfig(), fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	waitForAvailable(t, l, 1)
	l.Close()

	if _, err := l.AttemptAcquire(1); !errors.Is(err, ErrShutdown) {
		t.Fatalf("AttemptAcquire after Close: err = %v, want ErrShutdown", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.AcquireAsync(ctx, 1); !errors.Is(err, ErrShutdown) {
		t.Fatalf("AcquireAsync after Close: err = %v, want ErrShutdown", err)
	}
}

func TestReleaseDoubleDisposeIsNoOp(t *testing.T) {
	l, _ := newTestLimiter(t, 100)
	waitForAvailable(t, l, 10)

	lease, err := l.AttemptAcquire(10)
	if err != nil || !lease.Acquired() {
		t.Fatalf("AttemptAcquire failed: %v %+v", err, lease)
	}
	before := l.AvailablePermits()
	lease.Dispose()
	mid := l.AvailablePermits()
	lease.Dispose()
	after := l.AvailablePermits()
	if mid != before+10 {
		t.Fatalf("first dispose: available = %d, want %d", mid, before+10)
	}
	if after != mid {
		t.Fatalf("second dispose mutated state: %d -> %d", mid, after)
	}
}

func TestIdleDuration(t *testing.T) {
	l, _ := newTestLimiter(t, 100)
	if _, idle := l.IdleDuration(); !idle {
		t.Fatal("expected idle immediately after construction")
	}

	waitForAvailable(t, l, 5)
	lease, err := l.AttemptAcquire(5)
	if err != nil || !lease.Acquired() {
		t.Fatalf("AttemptAcquire: %v %+v", err, lease)
	}
	if _, idle := l.IdleDuration(); idle {
		t.Fatal("expected not idle while a lease is held")
	}
	lease.Dispose()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, idle := l.IdleDuration(); idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected idle again after disposing the only lease")
}

// waitForAvailable polls until the limiter's local cache holds at least n
// permits, letting the background reconciler pull from the fake
// coordinator before the test proceeds.
func waitForAvailable(t *testing.T, l *Limiter, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if l.AvailablePermits() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d available permits (have %d)", n, l.AvailablePermits())
}
