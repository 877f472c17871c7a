package permit

import (
	"context"
	"sync"
	"time"
)

// reconcileLoop is the single long-lived background task per Limiter. It
// registers the reverse callback channel once, heartbeats on a schedule,
// and otherwise brokers deficit/surplus with the coordinator, following
// the per-tick algorithm: wait for work, heartbeat if due, pull a
// deficit, push a surplus, back off a second on any RPC failure.
func (l *Limiter) reconcileLoop() {
	defer close(l.doneCh)

	ctx := context.Background()
	var registerOnce sync.Once
	lastHeartbeat := time.Now()

	for {
		wait := l.cfg.ClientLeaseRefreshInterval - time.Since(lastHeartbeat)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-l.stopCh:
			timer.Stop()
			return
		case <-l.wakeCh:
			timer.Stop()
		case <-l.client.Notifications():
			timer.Stop()
		case <-timer.C:
		}

		registerOnce.Do(func() {
			if err := l.client.EnsureCallback(ctx); err != nil {
				l.log.Warn().Err(err).Msg("callback registration failed; falling back to heartbeat/poll")
			}
		})

		if time.Since(lastHeartbeat) >= l.cfg.ClientLeaseRefreshInterval {
			if err := l.client.RefreshLease(ctx); err != nil {
				l.log.Warn().Err(err).Msg("lease refresh failed")
				l.backoff()
			} else {
				lastHeartbeat = time.Now()
			}
		}

		l.reconcileOnce(ctx)

		select {
		case <-l.stopCh:
			return
		default:
		}
	}
}

// reconcileOnce computes and settles one round of deficit/surplus with the
// coordinator.
func (l *Limiter) reconcileOnce(ctx context.Context) {
	l.mu.Lock()
	deficit := l.cfg.TargetPermitsPerClient - l.localAvailable
	if deficit < 0 {
		deficit = 0
	}
	maxDeficit := l.cfg.TargetPermitsPerClient
	if len(l.waiters) > 0 {
		head := l.waiters[0]
		if need := head.count - l.localAvailable; need > deficit {
			deficit = need
		}
		if head.count > maxDeficit {
			maxDeficit = head.count
		}
	}
	if deficit > maxDeficit {
		deficit = maxDeficit
	}
	seq := l.nextSeq
	l.mu.Unlock()

	if deficit > 0 {
		granted, err := l.client.TryAcquire(ctx, seq, deficit)
		if err != nil {
			l.log.Warn().Err(err).Int64("seq", seq).Int("deficit", deficit).Msg("TryAcquire failed")
			l.backoff()
		} else {
			l.mu.Lock()
			l.nextSeq++
			l.mu.Unlock()
			if granted > 0 {
				// release subtracts its argument from permitsHeld as for a
				// returning lease; count the grant as held first so a grant
				// from the coordinator leaves permitsHeld unchanged.
				l.mu.Lock()
				l.permitsHeld += granted
				l.mu.Unlock()
				l.release(granted)
			}
		}
	}

	l.mu.Lock()
	surplus := l.localAvailable - l.cfg.TargetPermitsPerClient
	if surplus > 0 {
		l.localAvailable -= surplus
		seq = l.nextSeq
	}
	l.mu.Unlock()

	if surplus > 0 {
		if err := l.client.Release(ctx, seq, surplus); err != nil {
			l.log.Warn().Err(err).Int64("seq", seq).Int("surplus", surplus).Msg("Release failed")
			l.mu.Lock()
			l.localAvailable += surplus
			l.mu.Unlock()
			l.backoff()
			return
		}
		l.mu.Lock()
		l.nextSeq++
		l.mu.Unlock()
	}
}

// backoff pauses a second before the next reconcile iteration, unless the
// limiter is shutting down.
func (l *Limiter) backoff() {
	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case <-l.stopCh:
	case <-t.C:
	}
}
