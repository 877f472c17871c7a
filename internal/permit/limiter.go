package permit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limiter is the process-local Client Limiter: a fast-path cache of
// permits backed by a cluster-wide Coordinator, reached through a
// CoordinatorClient. Construct with NewLimiter; the returned Limiter owns
// a background reconciler goroutine and must be closed with Close.
type Limiter struct {
	cfg    Config
	client CoordinatorClient
	log    zerolog.Logger

	mu                       sync.Mutex
	localAvailable           int
	waiters                  []*waiter
	outstandingWaiterPermits int
	permitsHeld              int
	nextSeq                  int64
	idleSince                time.Time
	shutdown                 bool

	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	closeWG sync.Once
}

// NewLimiter validates cfg and starts a Limiter talking to client over the
// reconciler's background loop. The local cache starts empty; the first
// reconciler tick requests up to TargetPermitsPerClient from the
// coordinator.
func NewLimiter(cfg Config, client CoordinatorClient, log zerolog.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrInvalidArgument)
	}
	l := &Limiter{
		cfg:       cfg,
		client:    client,
		log:       log.With().Str("component", "permit.Limiter").Logger(),
		nextSeq:   1,
		idleSince: time.Now(),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go l.reconcileLoop()
	return l, nil
}

func (l *Limiter) signalReconciler() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// updateIdleLocked recomputes idleSince. Must be called with mu held,
// after any mutation of permitsHeld or outstandingWaiterPermits.
func (l *Limiter) updateIdleLocked() {
	if l.permitsHeld == 0 && l.outstandingWaiterPermits == 0 {
		if l.idleSince.IsZero() {
			l.idleSince = time.Now()
		}
	} else {
		l.idleSince = time.Time{}
	}
}

// AttemptAcquire performs a non-blocking acquisition of k permits. Returns
// ErrShutdown once the limiter has started disposing; a request that is
// merely denied for lack of permits comes back as a non-acquired Lease with
// a nil error, not an error return.
func (l *Limiter) AttemptAcquire(k int) (*Lease, error) {
	if k < 0 || k > l.cfg.GlobalPermitCount {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidArgument, k)
	}
	if k == 0 {
		l.mu.Lock()
		shutdown, ok := l.shutdown, l.localAvailable > 0
		l.mu.Unlock()
		if shutdown {
			return nil, ErrShutdown
		}
		return newLease(ok, 0, "", l.release), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return nil, ErrShutdown
	}
	if l.localAvailable >= k && l.outstandingWaiterPermits == 0 {
		l.localAvailable -= k
		l.permitsHeld += k
		l.updateIdleLocked()
		return newLease(true, k, "", l.release), nil
	}
	return newLease(false, 0, "", l.release), nil
}

// AcquireAsync may suspend until k permits become available, the waiter
// queue is full, the limiter shuts down, or ctx is cancelled. A full queue
// is reported as a non-acquired Lease carrying ReasonQueueLimitReached, with
// a nil error, since the caller already holds a result to inspect; a
// limiter that has started disposing returns ErrShutdown instead, since
// there is no Lease to return. Cancellation via ctx never leaks accounting:
// if the waiter was already fulfilled by the time the cancellation is
// observed, the acquired lease is returned instead of being discarded.
func (l *Limiter) AcquireAsync(ctx context.Context, k int) (*Lease, error) {
	if k < 0 || k > l.cfg.GlobalPermitCount {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidArgument, k)
	}
	if k == 0 {
		l.mu.Lock()
		shutdown, ok := l.shutdown, l.localAvailable > 0
		l.mu.Unlock()
		if shutdown {
			return nil, ErrShutdown
		}
		return newLease(ok, 0, "", l.release), nil
	}

	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return nil, ErrShutdown
	}
	if l.localAvailable >= k && l.outstandingWaiterPermits == 0 {
		l.localAvailable -= k
		l.permitsHeld += k
		l.updateIdleLocked()
		l.mu.Unlock()
		return newLease(true, k, "", l.release), nil
	}
	if l.outstandingWaiterPermits+k > l.cfg.QueueLimit {
		l.mu.Unlock()
		return newLease(false, 0, ReasonQueueLimitReached, l.release), nil
	}
	w := newWaiter(k)
	l.waiters = append(l.waiters, w)
	l.outstandingWaiterPermits += k
	l.updateIdleLocked()
	l.mu.Unlock()
	l.signalReconciler()

	select {
	case <-ctx.Done():
		if lease := l.cancelWaiter(w); lease != nil {
			return lease, nil
		}
		return nil, ctx.Err()
	case lease := <-w.resultCh:
		return lease, nil
	}
}

// cancelWaiter removes w from the queue if it is still pending and
// returns nil to signal a genuine cancellation. If w was already dequeued,
// its completed lease is received from resultCh and returned instead of
// being lost. release's drain removes w and sends under l.mu, so that lease
// is already buffered by the time this call fails to find w; Close removes
// w under l.mu but sends its not-acquired lease just after unlocking, so
// the receive may wait briefly for it.
func (l *Limiter) cancelWaiter(w *waiter) *Lease {
	l.mu.Lock()
	for i, cur := range l.waiters {
		if cur == w {
			l.waiters = append(l.waiters[:i:i], l.waiters[i+1:]...)
			l.outstandingWaiterPermits -= w.count
			l.updateIdleLocked()
			l.mu.Unlock()
			l.signalReconciler()
			return nil
		}
	}
	l.mu.Unlock()
	return <-w.resultCh
}

// release credits k permits back to the local cache and drains waiters
// from the head of the queue while they can be satisfied. A dequeued head
// is never concurrently cancelled: both release and cancelWaiter remove
// waiters only under l.mu, so whichever runs first wins outright.
func (l *Limiter) release(k int) {
	if k <= 0 {
		return
	}
	l.mu.Lock()
	l.localAvailable += k
	if l.localAvailable > l.cfg.GlobalPermitCount {
		l.log.Warn().Int("localAvailable", l.localAvailable).Int("cap", l.cfg.GlobalPermitCount).Msg("local cache exceeded global permit count; clamping")
		l.localAvailable = l.cfg.GlobalPermitCount
	}
	if k <= l.permitsHeld {
		l.permitsHeld -= k
	} else {
		l.permitsHeld = 0
	}

	for len(l.waiters) > 0 && l.waiters[0].count <= l.localAvailable {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.outstandingWaiterPermits -= w.count
		l.localAvailable -= w.count
		l.permitsHeld += w.count
		w.resultCh <- newLease(true, w.count, "", l.release)
	}
	l.updateIdleLocked()
	l.mu.Unlock()
	l.signalReconciler()
}

// AvailablePermits returns a snapshot of the local cache. Advisory only —
// never treated as authoritative anywhere in this repo.
func (l *Limiter) AvailablePermits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localAvailable
}

// IdleDuration reports how long the limiter has held no permits and had
// no queued waiters. The second return value is false while active.
func (l *Limiter) IdleDuration() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idleSince.IsZero() {
		return 0, false
	}
	return time.Since(l.idleSince), true
}

// Close disposes the limiter: queued waiters fail immediately, the
// reconciler is stopped, and a best-effort Unregister is sent. Safe to
// call more than once.
func (l *Limiter) Close() {
	l.closeWG.Do(func() {
		l.mu.Lock()
		l.shutdown = true
		pending := l.waiters
		l.waiters = nil
		l.outstandingWaiterPermits = 0
		l.updateIdleLocked()
		l.mu.Unlock()

		for _, w := range pending {
			w.resultCh <- newLease(false, 0, "", l.release)
		}

		close(l.stopCh)
		<-l.doneCh

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Unregister(ctx); err != nil {
			l.log.Debug().Err(err).Msg("unregister on close failed")
		}
	})
}
