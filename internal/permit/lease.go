package permit

import "sync/atomic"

// Lease represents a (possibly zero) number of acquired permits. A Lease
// that failed to acquire carries an optional reason phrase. Disposal is
// idempotent: only the first Dispose call has any effect.
type Lease struct {
	acquired bool
	count    int
	reason   string

	disposed int32
	release  func(int)
}

func newLease(acquired bool, count int, reason string, release func(int)) *Lease {
	return &Lease{acquired: acquired, count: count, reason: reason, release: release}
}

// Acquired reports whether the lease represents a successful acquisition
// (including the zero-permit no-op case).
func (l *Lease) Acquired() bool { return l.acquired }

// Count is the number of permits this lease owes on disposal.
func (l *Lease) Count() int { return l.count }

// Reason carries the failure phrase for a not-acquired lease, e.g.
// ReasonQueueLimitReached. Empty for acquired leases and for failures with
// no reason phrase (an AttemptAcquire denial, a waiter failed by Close). A
// cancelled AcquireAsync returns no Lease at all.
func (l *Lease) Reason() string { return l.reason }

// Dispose returns any held permits to the limiter. Safe to call multiple
// times and from multiple goroutines; only the first call has effect.
func (l *Lease) Dispose() {
	if !atomic.CompareAndSwapInt32(&l.disposed, 0, 1) {
		return
	}
	if l.count > 0 && l.release != nil {
		l.release(l.count)
	}
}
