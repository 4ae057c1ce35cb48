package hub

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
)

// Dispatcher is implemented by internal/dispatch.Dispatcher. The Hub holds
// only this interface, not a concrete dependency, so the two packages don't
// form an import cycle: dispatch depends on hub, not the other way around.
type Dispatcher interface {
	// HandleEvent decodes and authorizes a single inbound event for sess.
	HandleEvent(sess *Session, event string, payload json.RawMessage)
	// HandleDisconnect releases whatever state sess held (alias, presence)
	// when its connection ends, per §5 cancellation semantics.
	HandleDisconnect(sess *Session)
}

// Metrics is the subset of internal/metrics.Metrics the Hub updates. Kept
// as a small interface so the Hub can be exercised in tests without pulling
// in the Prometheus registry.
type Metrics interface {
	SessionConnected()
	SessionDisconnected()
}

// Hub owns every live session and the room membership graph: one room per
// live alias ("alias:<A>") and one per channel ("channel:<name>"), per
// §4.6.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[string]*Session
	sessions   map[string]*Session
	dispatcher Dispatcher
	metrics    Metrics
}

// New returns an empty Hub. metrics may be nil.
func New(metrics Metrics) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Session),
		sessions: make(map[string]*Session),
		metrics:  metrics,
	}
}

// SetDispatcher wires the Dispatcher after both are constructed, breaking
// the natural hub<->dispatcher initialization cycle.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// AliasRoom and ChannelRoom name the two room kinds from §4.6.
func AliasRoom(alias string) string   { return "alias:" + alias }
func ChannelRoom(channel string) string { return "channel:" + channel }

// Register adds a newly-connected session to the Hub's session registry. It
// does not join any room — rooms are joined explicitly on alias claim /
// channel join.
func (h *Hub) Register(sess *Session) {
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SessionConnected()
	}
}

// Unregister removes sess from every room and the session registry, then
// notifies the Dispatcher so it can release the session's alias and flip
// presence to offline (§5 "Cancellation & timeouts").
func (h *Hub) Unregister(sess *Session) {
	h.mu.Lock()
	for room, members := range h.rooms {
		if _, ok := members[sess.ID]; ok {
			delete(members, sess.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.sessions, sess.ID)
	h.mu.Unlock()

	sess.Close()
	if h.metrics != nil {
		h.metrics.SessionDisconnected()
	}
	if h.dispatcher != nil {
		h.dispatcher.HandleDisconnect(sess)
	}
}

// JoinRoom adds sess to room's membership set.
func (h *Hub) JoinRoom(room string, sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Session)
		h.rooms[room] = members
	}
	members[sess.ID] = sess
}

// LeaveRoom removes sess from room's membership set.
func (h *Hub) LeaveRoom(room string, sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, sess.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomMembers returns a stable-ordered snapshot of a room's sessions.
func (h *Hub) RoomMembers(room string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	out := make([]*Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSessions returns a snapshot of every registered session.
func (h *Hub) AllSessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SessionByAlias finds the live session currently holding alias, via its
// alias room (which has at most one member by invariant 1).
func (h *Hub) SessionByAlias(alias string) (*Session, bool) {
	members := h.RoomMembers(AliasRoom(alias))
	if len(members) == 0 {
		return nil, false
	}
	return members[0], true
}

// Broadcast fans payload out to every session in room for which filter
// returns true (or every session, if filter is nil). Fan-out order within
// a room matches the iteration order of the room's membership snapshot,
// which in turn matches Store insertion order for the event that triggered
// the broadcast, since the caller builds that order before calling
// Broadcast (§8 "Fan-out order within a room equals Store insertion
// order").
func (h *Hub) Broadcast(room, event string, payload interface{}, filter func(*Session) bool) {
	for _, sess := range h.RoomMembers(room) {
		if filter != nil && !filter(sess) {
			continue
		}
		if !sess.Send(event, payload) {
			log.Printf("hub: session %s outbound buffer full, disconnecting", sess.ID)
			h.Disconnect(sess, "INTERNAL", "outbound buffer overflow")
		}
	}
}

// SendTo delivers a single event to one session, disconnecting it on
// back-pressure overflow exactly like Broadcast.
func (h *Hub) SendTo(sess *Session, event string, payload interface{}) {
	if !sess.Send(event, payload) {
		log.Printf("hub: session %s outbound buffer full, disconnecting", sess.ID)
		h.Disconnect(sess, "INTERNAL", "outbound buffer overflow")
	}
}

// Disconnect sends a final server_error (best-effort) and closes the
// session; the owning transport's read/write loop notices closure and
// calls Unregister.
func (h *Hub) Disconnect(sess *Session, code, message string) {
	sess.ServerError(code, message)
	sess.Close()
}
