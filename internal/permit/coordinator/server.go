package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidArgument is the coordinator's own invalid-argument sentinel. It
// is a separate value from permit.ErrInvalidArgument: errors.Is against one
// does not match the other.
var ErrInvalidArgument = fmt.Errorf("coordinator: invalid argument")

const idlePurgeInterval = 5 * time.Second

// Config holds the coordinator's view of the global permit pool sizing.
// GlobalPermitCount and IdleClientTimeout mirror permit.Config's N and I;
// the coordinator keeps its own type with just these two fields, and the
// values must agree across a deployment.
type Config struct {
	GlobalPermitCount int
	IdleClientTimeout time.Duration
}

func (c Config) validate() error {
	if c.GlobalPermitCount < 1 {
		return fmt.Errorf("%w: GlobalPermitCount must be >= 1", ErrInvalidArgument)
	}
	if c.IdleClientTimeout <= 0 {
		return fmt.Errorf("%w: IdleClientTimeout must be > 0", ErrInvalidArgument)
	}
	return nil
}

// clientState is the coordinator's bookkeeping for one client identity.
type clientState struct {
	inUse         int
	lastSeen      time.Time
	seq           int64
	lastGrant     int
	hasPending    bool
	pendingAmount int
	callbackAddr  string
}

// Coordinator is the cluster-wide singleton owning the global permit pool.
// All state mutation happens under mu; outbound notification RPCs to
// clients are dispatched after the lock is released, matching the "no
// suspension while holding the lock" rule that also governs the Client
// Limiter.
type Coordinator struct {
	cfg Config
	log zerolog.Logger

	mu               sync.Mutex
	availablePermits int
	clients          map[string]*clientState
	pending          []string

	startTime time.Time
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	doneCh    chan struct{}
}

// NewServer constructs a Coordinator with a full permit pool and no known
// clients.
func NewServer(cfg Config, log zerolog.Logger) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:              cfg,
		log:              log.With().Str("component", "coordinator.Coordinator").Logger(),
		availablePermits: cfg.GlobalPermitCount,
		clients:          make(map[string]*clientState),
		startTime:        time.Now(),
		ctx:              ctx,
		cancel:           cancel,
		doneCh:           make(chan struct{}),
	}, nil
}

// Start begins serving on listener: an accept loop and the idle-purge
// timer each run in their own goroutine.
func (c *Coordinator) Start(listener net.Listener) {
	c.listener = listener
	c.wg.Add(2)
	go c.acceptLoop()
	go c.idlePurgeLoop()
}

// Stop cancels the accept loop and idle-purge timer and waits for both to
// exit.
func (c *Coordinator) Stop() {
	c.cancel()
	if c.listener != nil {
		c.listener.Close()
	}
	c.wg.Wait()
	close(c.doneCh)
}

// Done is closed once the coordinator has been told to stop, either by
// Stop or by a Shutdown RPC.
func (c *Coordinator) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Coordinator) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				c.log.Debug().Err(err).Msg("accept failed")
				continue
			}
		}
		go c.handleConnection(conn)
	}
}

func (c *Coordinator) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
		req, err := DecodeRequest(reader)
		if err != nil {
			return
		}
		resp := c.HandleRequest(req)
		if err := c.sendResponse(conn, resp); err != nil {
			return
		}
		if req.Type == MsgShutdown {
			time.AfterFunc(50*time.Millisecond, c.cancel)
			return
		}
	}
}

func (c *Coordinator) sendResponse(conn net.Conn, resp *Response) error {
	data, err := resp.Encode()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

// HandleRequest dispatches a single decoded Request. Exported so tests can
// exercise the coordinator's logic directly without going through sockets.
func (c *Coordinator) HandleRequest(req *Request) *Response {
	switch req.Type {
	case MsgTryAcquire:
		granted, err := c.TryAcquire(req.ClientRef, req.Seq, req.Permits, req.CallbackAddr)
		if err != nil {
			return NewErrorResponse(MsgError, err.Error())
		}
		return NewGrantedResponse(granted)
	case MsgRelease:
		if err := c.Release(req.ClientRef, req.Seq, req.Permits); err != nil {
			return NewErrorResponse(MsgError, err.Error())
		}
		return NewOKResponse()
	case MsgRefreshLease:
		c.RefreshLease(req.ClientRef, req.CallbackAddr)
		return NewOKResponse()
	case MsgUnregister:
		c.Unregister(req.ClientRef)
		return NewOKResponse()
	case MsgGetState:
		return NewStateResponse(c.GetState())
	case MsgPing:
		return NewPongResponse()
	case MsgShutdown:
		return NewOKResponse()
	default:
		return NewErrorResponse(MsgError, fmt.Sprintf("unknown message type %q", req.Type))
	}
}

func (c *Coordinator) getOrCreateClientLocked(clientRef string) *clientState {
	s, ok := c.clients[clientRef]
	if !ok {
		s = &clientState{lastSeen: time.Now()}
		c.clients[clientRef] = s
	}
	return s
}

// TryAcquire implements the coordinator's four-operation RPC surface for
// acquiring permits; see HandleRequest for the wire entry point.
func (c *Coordinator) TryAcquire(clientRef string, seq int64, k int, callbackAddr string) (int, error) {
	if k < 0 || k > c.cfg.GlobalPermitCount {
		return 0, fmt.Errorf("%w: permits=%d", ErrInvalidArgument, k)
	}

	c.mu.Lock()
	s := c.getOrCreateClientLocked(clientRef)
	s.lastSeen = time.Now()
	if callbackAddr != "" {
		s.callbackAddr = callbackAddr
	}

	if seq <= s.seq {
		granted := s.lastGrant
		c.mu.Unlock()
		return granted, nil
	}

	c.dropIdleClientsLocked()

	var granted int
	if c.availablePermits >= k {
		c.availablePermits -= k
		s.inUse += k
		s.hasPending = false
		granted = k
	} else {
		granted = 0
		if !s.hasPending {
			s.hasPending = true
			s.pendingAmount = k
			c.pending = append(c.pending, clientRef)
		}
	}
	s.seq = seq
	s.lastGrant = granted

	notes := c.servicePendingLocked()
	c.mu.Unlock()

	c.dispatchNotifications(notes)
	return granted, nil
}

// Release implements the coordinator's permit-return RPC.
func (c *Coordinator) Release(clientRef string, seq int64, k int) error {
	if k < 0 || k > c.cfg.GlobalPermitCount {
		return fmt.Errorf("%w: permits=%d", ErrInvalidArgument, k)
	}

	c.mu.Lock()
	s := c.getOrCreateClientLocked(clientRef)
	s.lastSeen = time.Now()

	if seq <= s.seq {
		c.mu.Unlock()
		return nil
	}

	c.dropIdleClientsLocked()

	if k > s.inUse {
		c.log.Warn().Str("client", clientRef).Int("inUse", s.inUse).Int("release", k).Msg("release exceeds known in-use; clamping")
		k = s.inUse
	}
	s.inUse -= k
	c.availablePermits += k
	if c.availablePermits > c.cfg.GlobalPermitCount {
		c.availablePermits = c.cfg.GlobalPermitCount
	}
	s.seq = seq
	s.lastGrant = 0

	notes := c.servicePendingLocked()
	c.mu.Unlock()

	c.dispatchNotifications(notes)
	return nil
}

// RefreshLease touches a known client's lastSeen. Unknown clients are left
// unregistered — a heartbeat never implicitly registers a client.
func (c *Coordinator) RefreshLease(clientRef string, callbackAddr string) {
	c.mu.Lock()
	if s, ok := c.clients[clientRef]; ok {
		s.lastSeen = time.Now()
		if callbackAddr != "" {
			s.callbackAddr = callbackAddr
		}
	}
	c.mu.Unlock()
}

// Unregister credits a known client's in-use permits back to the pool and
// removes it. Entries left behind in the pending queue are filtered out
// lazily by servicePendingLocked.
func (c *Coordinator) Unregister(clientRef string) {
	c.mu.Lock()
	s, ok := c.clients[clientRef]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.availablePermits += s.inUse
	if c.availablePermits > c.cfg.GlobalPermitCount {
		c.availablePermits = c.cfg.GlobalPermitCount
	}
	delete(c.clients, clientRef)
	notes := c.servicePendingLocked()
	c.mu.Unlock()

	c.dispatchNotifications(notes)
}

// GetState snapshots the coordinator for observability. Participates in no
// invariant.
func (c *Coordinator) GetState() *StateInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &StateInfo{
		AvailablePermits: c.availablePermits,
		GlobalPermits:    c.cfg.GlobalPermitCount,
		PendingDepth:     len(c.pending),
		UptimeSeconds:    time.Since(c.startTime).Seconds(),
	}
	for ref, s := range c.clients {
		snap.Clients = append(snap.Clients, ClientSnapshot{
			ClientRef:   ref,
			InUse:       s.inUse,
			Seq:         s.seq,
			HasPending:  s.hasPending,
			IdleSeconds: time.Since(s.lastSeen).Seconds(),
		})
	}
	return snap
}

type notification struct {
	clientRef    string
	callbackAddr string
	available    int
}

// servicePendingLocked drains the pending queue from the head while each
// head's request can now be satisfied, building a best-effort notification
// list. Must be called with mu held.
func (c *Coordinator) servicePendingLocked() []notification {
	var notes []notification
	for len(c.pending) > 0 {
		ref := c.pending[0]
		s, ok := c.clients[ref]
		if !ok {
			c.pending = c.pending[1:]
			continue
		}
		if !s.hasPending {
			c.pending = c.pending[1:]
			continue
		}
		if c.availablePermits < s.pendingAmount {
			break
		}
		notes = append(notes, notification{clientRef: ref, callbackAddr: s.callbackAddr, available: c.availablePermits})
		s.hasPending = false
		c.pending = c.pending[1:]
	}
	return notes
}

// dropIdleClientsLocked purges clients unseen for longer than
// IdleClientTimeout, crediting their in-use permits back to the pool.
// Must be called with mu held.
func (c *Coordinator) dropIdleClientsLocked() {
	now := time.Now()
	for ref, s := range c.clients {
		if now.Sub(s.lastSeen) > c.cfg.IdleClientTimeout {
			c.availablePermits += s.inUse
			if c.availablePermits > c.cfg.GlobalPermitCount {
				c.availablePermits = c.cfg.GlobalPermitCount
			}
			delete(c.clients, ref)
			c.log.Debug().Str("client", ref).Msg("purged idle client")
		}
	}
}

// idlePurgeLoop fires dropIdleClientsLocked every 5s, then re-services the
// pending queue since newly-freed capacity may satisfy a waiting client.
func (c *Coordinator) idlePurgeLoop() {
	defer c.wg.Done()
	t := time.NewTicker(idlePurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			c.dropIdleClientsLocked()
			notes := c.servicePendingLocked()
			c.mu.Unlock()
			c.dispatchNotifications(notes)
		}
	}
}
