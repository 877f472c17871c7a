package permit

import (
	"context"
	"sync"
)

// fakeCoordinatorClient is an in-process stand-in for CoordinatorClient,
// used to unit test the Limiter's fast paths, queueing, and cancellation
// accounting without a real coordinator process.
type fakeCoordinatorClient struct {
	mu sync.Mutex

	available int
	tryCalls  int
	relCalls  int
	refreshes int
	unregs    int
	failNext  bool

	notifCh chan struct{}
}

func newFakeCoordinatorClient(available int) *fakeCoordinatorClient {
	return &fakeCoordinatorClient{available: available, notifCh: make(chan struct{}, 1)}
}

func (f *fakeCoordinatorClient) TryAcquire(ctx context.Context, seq int64, k int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryCalls++
	if f.failNext {
		f.failNext = false
		return 0, errFakeTransport
	}
	if k > f.available {
		k = f.available
	}
	f.available -= k
	return k, nil
}

func (f *fakeCoordinatorClient) Release(ctx context.Context, seq int64, k int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relCalls++
	if f.failNext {
		f.failNext = false
		return errFakeTransport
	}
	f.available += k
	return nil
}

func (f *fakeCoordinatorClient) RefreshLease(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeCoordinatorClient) Unregister(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregs++
	return nil
}

func (f *fakeCoordinatorClient) EnsureCallback(ctx context.Context) error { return nil }

func (f *fakeCoordinatorClient) Notifications() <-chan struct{} { return f.notifCh }

type fakeTransportError struct{ msg string }

func (e *fakeTransportError) Error() string { return e.msg }

var errFakeTransport = &fakeTransportError{msg: "fake transport failure"}
