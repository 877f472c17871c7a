package permit

import (
	"fmt"
	"time"
)

// Config holds the immutable tunables of a Client Limiter. GlobalPermitCount
// and IdleClientTimeout mirror the coordinator's own settings; Validate
// checks only the constraints below and does not compare them with the
// values a running coordinator uses.
type Config struct {
	// GlobalPermitCount is the cluster-wide cap (N). Must be >= 1.
	GlobalPermitCount int

	// TargetPermitsPerClient is the desired local cache size (T).
	// Must satisfy 1 <= T <= GlobalPermitCount.
	TargetPermitsPerClient int

	// QueueLimit bounds the sum of outstanding waiter permits (Q). >= 0.
	QueueLimit int

	// IdleClientTimeout is the coordinator-side purge threshold (I). > 0.
	IdleClientTimeout time.Duration

	// ClientLeaseRefreshInterval is the heartbeat period (R).
	// Must satisfy 0 < R < IdleClientTimeout.
	ClientLeaseRefreshInterval time.Duration
}

// Validate checks the constraints in the configuration table. It returns
// ErrInvalidArgument wrapped with the offending field name.
func (c Config) Validate() error {
	if c.GlobalPermitCount < 1 {
		return fmt.Errorf("%w: GlobalPermitCount must be >= 1, got %d", ErrInvalidArgument, c.GlobalPermitCount)
	}
	if c.TargetPermitsPerClient < 1 || c.TargetPermitsPerClient > c.GlobalPermitCount {
		return fmt.Errorf("%w: TargetPermitsPerClient must be in [1, %d], got %d", ErrInvalidArgument, c.GlobalPermitCount, c.TargetPermitsPerClient)
	}
	if c.QueueLimit < 0 {
		return fmt.Errorf("%w: QueueLimit must be >= 0, got %d", ErrInvalidArgument, c.QueueLimit)
	}
	if c.IdleClientTimeout <= 0 {
		return fmt.Errorf("%w: IdleClientTimeout must be > 0, got %s", ErrInvalidArgument, c.IdleClientTimeout)
	}
	if c.ClientLeaseRefreshInterval <= 0 || c.ClientLeaseRefreshInterval >= c.IdleClientTimeout {
		return fmt.Errorf("%w: ClientLeaseRefreshInterval must be in (0, %s), got %s", ErrInvalidArgument, c.IdleClientTimeout, c.ClientLeaseRefreshInterval)
	}
	return nil
}
