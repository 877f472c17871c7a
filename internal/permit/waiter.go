package permit

// waiter is a suspended AcquireAsync call queued on a Client Limiter.
// Exactly one of three things happens to a waiter: it is fulfilled by
// release's drain step, cancelled by its caller's context, or failed
// outright by Close. resultCh is buffered so the completing side never
// blocks while holding the limiter lock.
type waiter struct {
	count    int
	resultCh chan *Lease
}

func newWaiter(count int) *waiter {
	return &waiter{count: count, resultCh: make(chan *Lease, 1)}
}
