// Package permit implements the process-local half of a cluster-wide
// concurrency permit limiter: a bounded local cache backed by a
// cross-process Coordinator (see the coordinator subpackage).
package permit

import "errors"

// ErrInvalidArgument is returned synchronously from AttemptAcquire/AcquireAsync
// when the requested permit count is negative or exceeds the configured
// global permit count. Never queued, never retried.
var ErrInvalidArgument = errors.New("permit: invalid argument")

// ErrShutdown is returned by AttemptAcquire and AcquireAsync when called
// after the limiter has started disposing (Close has been invoked).
var ErrShutdown = errors.New("permit: limiter is shutting down")

// ReasonQueueLimitReached is the lease failure reason carried when
// AcquireAsync would push outstandingWaiterPermits past QueueLimit.
const ReasonQueueLimitReached = "Queue limit reached"
