// Package transferdemo is the host-application stand-in for permit-demo:
// it performs simulated bounded-concurrency cloud "uploads", each one
// holding a single permit leased from a permit.Limiter for its duration.
// This is the kind of workload spec.md explicitly places outside the
// protocol's scope ("the host application that calls Acquire") but a
// real repo still ships a runnable example against the public API, the
// way the teacher ships cmd/rescale-int against internal/cloud.
package transferdemo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rescale-labs/permitcoord/internal/permit"
)

// Transfer describes one simulated unit of upload work.
type Transfer struct {
	Name string
	Size int64
}

// Provider performs the actual transfer of a single object. Implementations
// wrap a real cloud SDK client (S3, Azure Blob), a retrying HTTP client, or
// an in-memory stub.
type Provider interface {
	Upload(ctx context.Context, t Transfer) error
	Name() string
}

// Result records the outcome of one transfer attempt.
type Result struct {
	Transfer Transfer
	Err      error
	Duration time.Duration
}

// Runner drives a batch of transfers through a Provider, bounding how many
// run concurrently by the permits available from a Limiter. Each transfer
// acquires exactly one permit for its duration; this demonstrates the
// limiter bounding real cloud SDK concurrency, the problem statement in
// spec.md section 1 applied to a concrete workload.
type Runner struct {
	limiter  *permit.Limiter
	provider Provider
	log      zerolog.Logger

	// OnResult, if set, is invoked synchronously as each transfer
	// completes — permit-demo wires this to its utilization display.
	OnResult func(Result)
}

// NewRunner builds a Runner bounded by limiter and backed by provider.
func NewRunner(limiter *permit.Limiter, provider Provider, log zerolog.Logger) *Runner {
	return &Runner{
		limiter:  limiter,
		provider: provider,
		log:      log.With().Str("component", "transferdemo.Runner").Logger(),
	}
}

// RunBatch runs every transfer in transfers, at most as many concurrently
// as permits the limiter will grant, and returns once all have completed
// or ctx is cancelled. A transfer whose AcquireAsync is cancelled by ctx
// is recorded as an error result rather than aborting the whole batch.
func (r *Runner) RunBatch(ctx context.Context, transfers []Transfer) []Result {
	results := make([]Result, len(transfers))
	done := make(chan struct{}, len(transfers))

	for i, t := range transfers {
		i, t := i, t
		go func() {
			defer func() { done <- struct{}{} }()
			results[i] = r.runOne(ctx, t)
			if r.OnResult != nil {
				r.OnResult(results[i])
			}
		}()
	}

	for range transfers {
		<-done
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, t Transfer) Result {
	start := time.Now()

	lease, err := r.limiter.AcquireAsync(ctx, 1)
	if err != nil {
		return Result{Transfer: t, Err: fmt.Errorf("acquire permit: %w", err), Duration: time.Since(start)}
	}
	defer lease.Dispose()

	if !lease.Acquired() {
		reason := lease.Reason()
		if reason == "" {
			reason = "not acquired"
		}
		return Result{Transfer: t, Err: fmt.Errorf("permit denied: %s", reason), Duration: time.Since(start)}
	}

	err = r.provider.Upload(ctx, t)
	return Result{Transfer: t, Err: err, Duration: time.Since(start)}
}
