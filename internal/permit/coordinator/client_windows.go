//go:build windows

package coordinator

import (
	"context"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// dialAddr connects to a named pipe at addr. Shared by Client's RPC dial
// and the coordinator's reverse-callback dial.
func dialAddr(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return winio.DialPipeContext(ctx, addr)
}

// dial creates a connection to the coordinator via Windows named pipe.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	return dialAddr(ctx, c.socketPath, c.timeout)
}
