// Package hub implements the Connection Hub (§4.6): session lifecycle,
// the room-based fan-out model, origin policy and client-IP derivation.
// It is transport-agnostic about protocol semantics — decoding events and
// deciding what they mean is the Dispatcher's job (internal/dispatch); the
// Hub only knows about sessions, rooms and raw outbound frames.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/ircultra/gateway/internal/ratelimit"
)

// outboundBuffer is the size of each session's outbound frame queue. A full
// buffer means the client isn't draining fast enough; the Hub disconnects
// it with INTERNAL rather than blocking the rest of the system (§5
// "Back-pressure").
const outboundBuffer = 256

// Session states.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// OutboundFrame is a decoded, not-yet-serialized outbound event. Each
// transport (native JSON-over-websocket, classical wire) reads its own
// session's frames and renders them in its own wire format.
type OutboundFrame struct {
	Event   string
	Payload interface{}
}

// Session is the Hub's per-connection state (§4.6). Only the Dispatcher
// goroutine handling this session's inbound reads ever mutates the
// exported fields below — each session's events are processed sequentially
// by the goroutine that owns its read loop, so no additional locking is
// needed for them. The outbound frame channel is safe for concurrent send
// because other sessions' goroutines may broadcast into it.
type Session struct {
	ID              string
	IP              string
	DeviceID        string
	DevicePublicKey string
	Alias           string
	ReclaimNonce    string
	ResumeToken     string
	Status          string
	Color           string
	// ContextChannel is the channel used for command_exec and bare-text
	// messages when the caller doesn't specify one: the contextChannel most
	// recently supplied to command_exec, otherwise the first channel this
	// session joined (replaced by another joined channel when it is parted).
	ContextChannel string
	Transport      string

	Channels map[string]bool
	Ignored  map[string]bool

	RateWindow *ratelimit.Window

	out       chan OutboundFrame
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSession allocates a Session with the given rate-limit preset. transport
// is "native" or "wire", used only for logging/metrics labeling.
func NewSession(id, ip, transport string, rateMaxCount, rateWindowMs int) *Session {
	return &Session{
		ID:         id,
		IP:         ip,
		Transport:  transport,
		Status:     StatusOnline,
		Channels:   make(map[string]bool),
		Ignored:    make(map[string]bool),
		RateWindow: ratelimit.New(rateMaxCount, rateWindowMs),
		out:        make(chan OutboundFrame, outboundBuffer),
		closed:     make(chan struct{}),
	}
}

// Send enqueues an outbound frame. It returns false if the outbound buffer
// is full — the caller must then disconnect the session (back-pressure,
// §5).
func (s *Session) Send(event string, payload interface{}) bool {
	select {
	case s.out <- OutboundFrame{Event: event, Payload: payload}:
		return true
	default:
		return false
	}
}

// ServerError is a convenience wrapper for the server_error outbound event
// shape in §6.
func (s *Session) ServerError(code, message string) bool {
	return s.Send("server_error", map[string]string{"code": code, "message": message})
}

// Out exposes the outbound frame channel for the owning transport's write
// loop to drain.
func (s *Session) Out() <-chan OutboundFrame {
	return s.out
}

// Close marks the session closed, idempotently. Safe to call from multiple
// goroutines (e.g. read loop error and a concurrent forced disconnect).
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Done reports session closure.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// MarshalNative renders an OutboundFrame the way the native session
// transport does: {"event": ..., "payload": ...}.
func MarshalNative(f OutboundFrame) ([]byte, error) {
	return json.Marshal(struct {
		Event   string      `json:"event"`
		Payload interface{} `json:"payload"`
	}{f.Event, f.Payload})
}
