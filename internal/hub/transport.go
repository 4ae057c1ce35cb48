package hub

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/ircultra/gateway/internal/id"
)

// OriginPolicy decides whether a connection's Origin header is acceptable,
// per §4.6. An empty allow-list still implicitly accepts localhost,
// loopback and RFC-1918 addresses; a client that sends no Origin header at
// all is always accepted.
type OriginPolicy struct {
	Allowed map[string]bool
}

// NewOriginPolicy builds a policy from the allow-list entries already split
// out of IRC_ALLOWED_ORIGINS.
func NewOriginPolicy(allowed []string) *OriginPolicy {
	m := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return &OriginPolicy{Allowed: m}
}

// Accept reports whether origin is allowed.
func (p *OriginPolicy) Accept(origin string) bool {
	if origin == "" {
		return true
	}
	if p.Allowed[origin] {
		return true
	}

	u := origin
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	host := u
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i >= 0 {
			host = host[1:i]
		}
	} else if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return isRFC1918(ip.To4())
	}
	return false
}

func isRFC1918(ip4 net.IP) bool {
	switch {
	case ip4[0] == 10:
		return true
	case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return true
	case ip4[0] == 192 && ip4[1] == 168:
		return true
	default:
		return false
	}
}

// ClientIP derives the originating client address from an *http.Request,
// preferring X-Forwarded-For's first hop, then X-Real-IP, then
// CF-Connecting-IP, then the TCP peer address, stripping an IPv4-mapped
// "::ffff:" prefix (§4.6).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(stripZone(first)) != nil {
			return stripMapped(first)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripMapped(xri)
	}
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return stripMapped(cf)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return stripMapped(r.RemoteAddr)
	}
	return stripMapped(host)
}

func stripZone(ip string) string {
	if i := strings.Index(ip, "%"); i >= 0 {
		return ip[:i]
	}
	return ip
}

func stripMapped(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeWS upgrades a request to the native session-multiplexed transport
// (Transport A): frame-delimited JSON {event, payload} messages, per §6.
func (h *Hub) ServeWS(origins *OriginPolicy, rateMaxCount, rateWindowMs int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !origins.Accept(r.Header.Get("Origin")) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("hub: websocket upgrade failed: %v", err)
			return
		}

		sess := NewSession(id.Next(), ClientIP(r), "native", rateMaxCount, rateWindowMs)
		h.Register(sess)

		go h.writeLoopNative(sess, conn)
		h.readLoopNative(sess, conn)
	}
}

func (h *Hub) writeLoopNative(sess *Session, conn *websocket.Conn) {
	for {
		select {
		case frame, ok := <-sess.Out():
			if !ok {
				conn.Close()
				return
			}
			data, err := MarshalNative(frame)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}
		case <-sess.Done():
			conn.Close()
			return
		}
	}
}

func (h *Hub) readLoopNative(sess *Session, conn *websocket.Conn) {
	defer h.Unregister(sess)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			sess.ServerError("BAD_REQUEST", "malformed frame")
			continue
		}
		if h.dispatcher != nil {
			h.dispatcher.HandleEvent(sess, envelope.Event, envelope.Payload)
		}
		select {
		case <-sess.Done():
			return
		default:
		}
	}
}
