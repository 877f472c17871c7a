// Package coordinator implements the cluster-wide singleton that owns the
// global permit pool and a wire protocol over newline-delimited JSON, the
// same transport shape the teacher's rate-limit coordinator uses: a
// net.Listener accepting connections (Unix domain socket on POSIX, a named
// pipe via go-winio on Windows), each request/response pair encoded on its
// own line.
package coordinator

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// MessageType identifies the RPC or callback being carried.
type MessageType string

const (
	// Client -> coordinator.
	MsgTryAcquire   MessageType = "try_acquire"
	MsgRelease      MessageType = "release"
	MsgRefreshLease MessageType = "refresh_lease"
	MsgUnregister   MessageType = "unregister"
	MsgGetState     MessageType = "get_state"
	MsgShutdown     MessageType = "shutdown"
	MsgPing         MessageType = "ping"

	// Coordinator -> client, replies.
	MsgGranted   MessageType = "granted"
	MsgOK        MessageType = "ok"
	MsgError     MessageType = "error"
	MsgStateData MessageType = "state_data"
	MsgPong      MessageType = "pong"

	// Coordinator -> client, pushed on the reverse callback channel.
	MsgPermitsAvailable MessageType = "permits_available"
)

// Request is a single client -> coordinator RPC call.
type Request struct {
	Type MessageType `json:"type"`

	// ClientRef identifies the calling client. Set by Client on every
	// call; the coordinator treats it as the map key into its clients
	// table.
	ClientRef string `json:"client_ref"`

	// CallbackAddr is the client's reverse-callback transport address, so
	// the coordinator can dial back OnPermitsAvailable notifications. May
	// be empty if the client's callback listener failed to start, in
	// which case the coordinator silently skips notifying it.
	CallbackAddr string `json:"callback_addr,omitempty"`

	// Seq is the client's per-call monotonic sequence number. Required
	// for TryAcquire and Release, the idempotent operations; ignored
	// otherwise.
	Seq int64 `json:"seq,omitempty"`

	// Permits is the requested/returned permit count for TryAcquire and
	// Release.
	Permits int `json:"permits,omitempty"`
}

// Response is a single coordinator -> client reply.
type Response struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`

	// Granted is TryAcquire's result.
	Granted int `json:"granted,omitempty"`

	State *StateInfo `json:"state,omitempty"`
}

// StateInfo is the GetState snapshot, purely for observability: it
// participates in no invariant and sits off the acquire/release hot path.
type StateInfo struct {
	AvailablePermits int              `json:"available_permits"`
	GlobalPermits    int              `json:"global_permits"`
	PendingDepth     int              `json:"pending_depth"`
	Clients          []ClientSnapshot `json:"clients"`
	UptimeSeconds    float64          `json:"uptime_seconds"`
}

// ClientSnapshot describes one coordinator-side ClientState for GetState.
type ClientSnapshot struct {
	ClientRef   string  `json:"client_ref"`
	InUse       int     `json:"in_use"`
	Seq         int64   `json:"seq"`
	HasPending  bool    `json:"has_pending"`
	IdleSeconds float64 `json:"idle_seconds"`
}

// NotifyRequest is the coordinator -> client push delivered over the
// reverse callback channel.
type NotifyRequest struct {
	Type            MessageType `json:"type"`
	ApproxAvailable int         `json:"approx_available"`
}

// NotifyResponse is the client's best-effort acknowledgement.
type NotifyResponse struct {
	Success bool `json:"success"`
}

// Encode serializes a Request as a single JSON line (no trailing newline).
func (r *Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Encode serializes a Response as a single JSON line (no trailing newline).
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Encode serializes a NotifyRequest as a single JSON line.
func (n *NotifyRequest) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// Encode serializes a NotifyResponse as a single JSON line.
func (n *NotifyResponse) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeRequest reads one newline-delimited JSON Request from r.
func DecodeRequest(r *bufio.Reader) (*Request, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	var req Request
	if jerr := json.Unmarshal(line, &req); jerr != nil {
		return nil, fmt.Errorf("decode request: %w", jerr)
	}
	return &req, nil
}

// DecodeResponse reads one newline-delimited JSON Response from r.
func DecodeResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	var resp Response
	if jerr := json.Unmarshal(line, &resp); jerr != nil {
		return nil, fmt.Errorf("decode response: %w", jerr)
	}
	return &resp, nil
}

// DecodeNotifyRequest reads one newline-delimited JSON NotifyRequest from r.
func DecodeNotifyRequest(r *bufio.Reader) (*NotifyRequest, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	var n NotifyRequest
	if jerr := json.Unmarshal(line, &n); jerr != nil {
		return nil, fmt.Errorf("decode notify request: %w", jerr)
	}
	return &n, nil
}

// DecodeNotifyResponse reads one newline-delimited JSON NotifyResponse.
func DecodeNotifyResponse(r *bufio.Reader) (*NotifyResponse, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	var n NotifyResponse
	if jerr := json.Unmarshal(line, &n); jerr != nil {
		return nil, fmt.Errorf("decode notify response: %w", jerr)
	}
	return &n, nil
}

// NewGrantedResponse builds a successful TryAcquire response.
func NewGrantedResponse(granted int) *Response {
	return &Response{Type: MsgGranted, Success: true, Granted: granted}
}

// NewOKResponse builds a plain success response (Release, RefreshLease,
// Unregister, Shutdown).
func NewOKResponse() *Response {
	return &Response{Type: MsgOK, Success: true}
}

// NewErrorResponse builds a failure response carrying msg.
func NewErrorResponse(respType MessageType, msg string) *Response {
	return &Response{Type: respType, Success: false, Error: msg}
}

// NewStateResponse builds a GetState response.
func NewStateResponse(state *StateInfo) *Response {
	return &Response{Type: MsgStateData, Success: true, State: state}
}

// NewPongResponse builds a Ping reply.
func NewPongResponse() *Response {
	return &Response{Type: MsgPong, Success: true}
}
