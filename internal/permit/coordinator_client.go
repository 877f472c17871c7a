package permit

import "context"

// CoordinatorClient is the reconciler's view of the RPC surface exposed by
// the cluster-wide Coordinator. It is defined here, in the domain package,
// and implemented by coordinator.Client — the same split the teacher uses
// between internal/ratelimit (CoordinatorClient interface) and
// internal/ratelimit/coordinator (the concrete implementation) to avoid a
// circular import between the two packages.
type CoordinatorClient interface {
	// TryAcquire requests k additional permits under sequence number seq.
	// Returns the number actually granted (which may be less than k, or
	// the idempotent replay of a prior call at the same seq).
	TryAcquire(ctx context.Context, seq int64, k int) (granted int, err error)

	// Release returns k permits under sequence number seq.
	Release(ctx context.Context, seq int64, k int) error

	// RefreshLease is a heartbeat proving the client is still alive.
	RefreshLease(ctx context.Context) error

	// Unregister tells the coordinator this client is going away; its
	// in-use permits are credited back to the pool immediately.
	Unregister(ctx context.Context) error

	// EnsureCallback lazily establishes the reverse-direction channel the
	// coordinator dials to deliver OnPermitsAvailable notifications. Safe
	// to call repeatedly; only the first call does any work.
	EnsureCallback(ctx context.Context) error

	// Notifications delivers a (coalesced, non-blocking) signal each time
	// the coordinator pushes an OnPermitsAvailable notification.
	Notifications() <-chan struct{}
}
