package coordinator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, n int) *Coordinator {
	t.Helper()
	c, err := NewServer(Config{GlobalPermitCount: n, IdleClientTimeout: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return c
}

func TestTryAcquireGrantsWhenAvailable(t *testing.T) {
	c := newTestServer(t, 100)
	granted, err := c.TryAcquire("c1", 1, 30, "")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if granted != 30 {
		t.Fatalf("granted = %d, want 30", granted)
	}
	if c.availablePermits != 70 {
		t.Fatalf("availablePermits = %d, want 70", c.availablePermits)
	}
}

func TestTryAcquireDeniedWhenInsufficient(t *testing.T) {
	c := newTestServer(t, 10)
	granted, err := c.TryAcquire("c1", 1, 20, "")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if granted != 0 {
		t.Fatalf("granted = %d, want 0", granted)
	}
	c.mu.Lock()
	s := c.clients["c1"]
	pending := s.hasPending
	c.mu.Unlock()
	if !pending {
		t.Fatal("expected client marked pending")
	}
}

func TestTryAcquireIdempotentReplay(t *testing.T) {
	c := newTestServer(t, 100)
	g1, err := c.TryAcquire("c1", 7, 10, "")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	g2, err := c.TryAcquire("c1", 7, 10, "")
	if err != nil {
		t.Fatalf("TryAcquire replay: %v", err)
	}
	if g1 != 10 || g2 != 10 {
		t.Fatalf("got g1=%d g2=%d, want both 10", g1, g2)
	}
	if c.availablePermits != 90 {
		t.Fatalf("availablePermits = %d, want 90 (replay must not double-debit)", c.availablePermits)
	}
}

func TestReleaseCreditsPool(t *testing.T) {
	c := newTestServer(t, 100)
	if _, err := c.TryAcquire("c1", 1, 40, ""); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if err := c.Release("c1", 2, 40); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if c.availablePermits != 100 {
		t.Fatalf("availablePermits = %d, want 100", c.availablePermits)
	}
}

func TestInvalidArgument(t *testing.T) {
	c := newTestServer(t, 10)
	if _, err := c.TryAcquire("c1", 1, -1, ""); err == nil {
		t.Fatal("expected error for negative permits")
	}
	if _, err := c.TryAcquire("c1", 1, 11, ""); err == nil {
		t.Fatal("expected error for permits > N")
	}
}

func TestUnregisterCreditsInUse(t *testing.T) {
	c := newTestServer(t, 100)
	if _, err := c.TryAcquire("c1", 1, 50, ""); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	c.Unregister("c1")
	if c.availablePermits != 100 {
		t.Fatalf("availablePermits = %d, want 100 after unregister", c.availablePermits)
	}
	if _, ok := c.clients["c1"]; ok {
		t.Fatal("expected client removed")
	}
}

func TestServicePendingNotifiesWhenCapacityFrees(t *testing.T) {
	c := newTestServer(t, 10)
	if _, err := c.TryAcquire("c1", 1, 10, ""); err != nil {
		t.Fatalf("TryAcquire c1: %v", err)
	}
	// c2 cannot be satisfied yet, becomes pending.
	granted, err := c.TryAcquire("c2", 1, 5, "unix:///does/not/matter")
	if err != nil {
		t.Fatalf("TryAcquire c2: %v", err)
	}
	if granted != 0 {
		t.Fatalf("granted = %d, want 0", granted)
	}

	// c1 releases enough for c2's pending request.
	if err := c.Release("c1", 2, 5); err != nil {
		t.Fatalf("Release: %v", err)
	}

	c.mu.Lock()
	pendingDepth := len(c.pending)
	hasPending := c.clients["c2"].hasPending
	c.mu.Unlock()
	if pendingDepth != 0 {
		t.Fatalf("pending depth = %d, want 0", pendingDepth)
	}
	if hasPending {
		t.Fatal("expected c2's pendingRequest cleared")
	}
}

func TestDropIdleClientsReclaimsInUse(t *testing.T) {
	c := newTestServer(t, 100)
	if _, err := c.TryAcquire("c1", 1, 40, ""); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	c.mu.Lock()
	c.clients["c1"].lastSeen = time.Now().Add(-2 * time.Minute)
	c.dropIdleClientsLocked()
	available := c.availablePermits
	_, stillPresent := c.clients["c1"]
	c.mu.Unlock()

	if available != 100 {
		t.Fatalf("availablePermits = %d, want 100 after idle purge", available)
	}
	if stillPresent {
		t.Fatal("expected idle client purged")
	}
}

func TestGetStateSnapshot(t *testing.T) {
	c := newTestServer(t, 50)
	if _, err := c.TryAcquire("c1", 1, 20, ""); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	state := c.GetState()
	if state.AvailablePermits != 30 {
		t.Fatalf("AvailablePermits = %d, want 30", state.AvailablePermits)
	}
	if state.GlobalPermits != 50 {
		t.Fatalf("GlobalPermits = %d, want 50", state.GlobalPermits)
	}
	if len(state.Clients) != 1 || state.Clients[0].InUse != 20 {
		t.Fatalf("unexpected client snapshot: %+v", state.Clients)
	}
}

func TestHandleRequestUnknownType(t *testing.T) {
	c := newTestServer(t, 10)
	resp := c.HandleRequest(&Request{Type: "bogus", ClientRef: "c1"})
	if resp.Success {
		t.Fatal("expected failure response for unknown message type")
	}
}
