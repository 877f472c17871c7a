package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// ErrCoordinatorUnreachable is returned when the coordinator cannot be
// reached at all (as opposed to responding with an error).
var ErrCoordinatorUnreachable = errors.New("coordinator: unreachable")

// Client is the low-level synchronous RPC client a Limiter's reconciler
// uses to talk to the Coordinator. It also owns the client-side half of
// the reverse callback channel: a small listener the coordinator dials to
// deliver OnPermitsAvailable pushes. Client satisfies
// permit.CoordinatorClient structurally; internal/permit never imports this
// package, so there is no cycle.
type Client struct {
	clientRef  string
	timeout    time.Duration
	socketPath string

	mu     sync.Mutex
	closed bool

	registerOnce     sync.Once
	callbackAddr     string
	callbackListener net.Listener
	notifCh          chan struct{}
}

// NewClient creates a Client identified by the current process's PID,
// talking to the coordinator at its well-known socket path.
func NewClient() *Client {
	return NewClientWithPath(SocketPath())
}

// NewClientWithPath creates a Client talking to the coordinator at a
// specific socket path — primarily for tests.
func NewClientWithPath(socketPath string) *Client {
	return &Client{
		clientRef:  fmt.Sprintf("pid-%d", os.Getpid()),
		timeout:    5 * time.Second,
		socketPath: socketPath,
		notifCh:    make(chan struct{}, 1),
	}
}

func (c *Client) sendRequest(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator client closed")
	}
	req.ClientRef = c.clientRef
	req.CallbackAddr = c.callbackAddr
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCoordinatorUnreachable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	data, err := req.Encode()
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCoordinatorUnreachable, err)
	}

	resp, err := DecodeResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCoordinatorUnreachable, err)
	}
	if !resp.Success && resp.Type == MsgError {
		return resp, fmt.Errorf("coordinator: %s", resp.Error)
	}
	return resp, nil
}

// TryAcquire requests k additional permits under sequence number seq.
func (c *Client) TryAcquire(ctx context.Context, seq int64, k int) (int, error) {
	resp, err := c.sendRequest(ctx, &Request{Type: MsgTryAcquire, Seq: seq, Permits: k})
	if err != nil {
		return 0, err
	}
	return resp.Granted, nil
}

// Release returns k permits under sequence number seq.
func (c *Client) Release(ctx context.Context, seq int64, k int) error {
	_, err := c.sendRequest(ctx, &Request{Type: MsgRelease, Seq: seq, Permits: k})
	return err
}

// RefreshLease sends a heartbeat.
func (c *Client) RefreshLease(ctx context.Context) error {
	_, err := c.sendRequest(ctx, &Request{Type: MsgRefreshLease})
	return err
}

// Unregister tells the coordinator this client is going away.
func (c *Client) Unregister(ctx context.Context) error {
	_, err := c.sendRequest(ctx, &Request{Type: MsgUnregister})
	return err
}

// GetState fetches the coordinator's observability snapshot.
func (c *Client) GetState(ctx context.Context) (*StateInfo, error) {
	resp, err := c.sendRequest(ctx, &Request{Type: MsgGetState})
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

// Shutdown asks the coordinator to stop shortly after replying.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.sendRequest(ctx, &Request{Type: MsgShutdown})
	return err
}

// Ping is a minimal reachability probe used by EnsureCoordinator.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.sendRequest(ctx, &Request{Type: MsgPing})
	return err
}

// EnsureCallback lazily starts the reverse callback listener and registers
// its address with subsequent requests. Safe to call repeatedly.
func (c *Client) EnsureCallback(ctx context.Context) error {
	var err error
	c.registerOnce.Do(func() {
		l, addr, lerr := ListenCallback(os.Getpid())
		if lerr != nil {
			err = lerr
			return
		}
		c.mu.Lock()
		c.callbackListener = l
		c.callbackAddr = addr
		c.mu.Unlock()
		go c.acceptCallbacks(l)
	})
	return err
}

// Notifications delivers a coalesced signal each time the coordinator
// pushes an OnPermitsAvailable notification.
func (c *Client) Notifications() <-chan struct{} {
	return c.notifCh
}

func (c *Client) acceptCallbacks(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		c.handleCallback(conn)
	}
}

func (c *Client) handleCallback(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := DecodeNotifyRequest(bufio.NewReader(conn)); err != nil {
		return
	}
	select {
	case c.notifCh <- struct{}{}:
	default:
	}
	resp := &NotifyResponse{Success: true}
	data, err := resp.Encode()
	if err != nil {
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

// Close releases the client's callback listener, if any. The underlying
// per-call connections are already closed as each RPC completes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.callbackListener != nil {
		c.callbackListener.Close()
		CleanupCallbackSocket(os.Getpid())
	}
	return nil
}
