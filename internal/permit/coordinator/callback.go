package coordinator

import (
	"bufio"
	"context"
	"time"
)

const notifyTimeout = 500 * time.Millisecond

// dispatchNotifications delivers a set of OnPermitsAvailable pushes after
// the coordinator lock has been released. Per the design note on callback
// lifetimes, failures are expected (a client's transport may have gone
// away) and are swallowed: the client will retry via heartbeat or the next
// TryAcquire, or will eventually be purged as idle.
func (c *Coordinator) dispatchNotifications(notes []notification) {
	for _, n := range notes {
		c.notifyClient(n)
	}
}

func (c *Coordinator) notifyClient(n notification) {
	if n.callbackAddr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	conn, err := dialAddr(ctx, n.callbackAddr, notifyTimeout)
	if err != nil {
		c.log.Debug().Err(err).Str("client", n.clientRef).Msg("callback unreachable; swallowed")
		return
	}
	defer conn.Close()

	req := &NotifyRequest{Type: MsgPermitsAvailable, ApproxAvailable: n.available}
	data, err := req.Encode()
	if err != nil {
		return
	}
	data = append(data, '\n')

	conn.SetDeadline(time.Now().Add(notifyTimeout))
	if _, err := conn.Write(data); err != nil {
		c.log.Debug().Err(err).Str("client", n.clientRef).Msg("callback write failed; swallowed")
		return
	}

	// Best-effort ack; a missing or malformed reply doesn't change
	// anything coordinator-side, so errors here aren't even logged.
	_, _ = DecodeNotifyResponse(bufio.NewReader(conn))
}
