// Package permitui renders a live view of a permit.Limiter's utilization
// for permit-demo: how much of its local cache is in use and how many
// simulated transfers have completed. Grounded in the teacher's
// internal/progress package — uploadui.go's mpb bar construction for the
// terminal case, progress.go's schollz/progressbar usage for the non-TTY
// fallback — with EWMA throughput decorators replaced by permit-count
// decorators, since this UI tracks concurrency slots rather than bytes.
package permitui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UtilizationUI displays how many transfers have completed against the
// total batch size, the last reported in-flight count, and the limiter's
// advisory local-availability figure.
type UtilizationUI struct {
	isTerminal bool
	target     int

	mpbProgress *mpb.Progress
	mpbBar      *mpb.Bar

	fallbackBar *progressbar.ProgressBar

	available int32 // atomic; advisory, see permit.Limiter.AvailablePermits
	inFlight  int32 // atomic
}

// NewUtilizationUI creates a UI for a batch of total transfers, bounded by
// a limiter whose target local cache size is target (used only to label
// the advisory availability figure, never as an authoritative bound).
func NewUtilizationUI(total, target int) *UtilizationUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	u := &UtilizationUI{isTerminal: isTerminal, target: target}

	if isTerminal {
		u.mpbProgress = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(200*time.Millisecond),
			mpb.WithWidth(80),
		)
		u.mpbBar = u.mpbProgress.New(int64(total),
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("transfers %d/%d  in-flight %d  local avail %d (target %d)",
						s.Current, s.Total, atomic.LoadInt32(&u.inFlight), atomic.LoadInt32(&u.available), target)
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
		)
	} else {
		u.fallbackBar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("transfers"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	return u
}

// SetSnapshot records the limiter's current advisory availability and the
// number of transfers presently in flight; picked up by the next bar
// refresh.
func (u *UtilizationUI) SetSnapshot(available, inFlight int) {
	atomic.StoreInt32(&u.available, int32(available))
	atomic.StoreInt32(&u.inFlight, int32(inFlight))
}

// Completed advances the bar by one completed transfer.
func (u *UtilizationUI) Completed() {
	if u.isTerminal {
		u.mpbBar.Increment()
		return
	}
	_ = u.fallbackBar.Add(1)
}

// Finish marks the UI as done and flushes any remaining output.
func (u *UtilizationUI) Finish() {
	if u.isTerminal {
		u.mpbProgress.Wait()
		return
	}
	_ = u.fallbackBar.Finish()
	fmt.Fprint(os.Stderr, "\n")
}

// Writer returns a writer safe to send interleaved log lines through
// without corrupting the progress bar's redraws (mpb's own writer when a
// terminal bar is active, stderr otherwise).
func (u *UtilizationUI) Writer() io.Writer {
	if u.isTerminal {
		return u.mpbProgress
	}
	return os.Stderr
}
