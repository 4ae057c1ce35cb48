// Package wireadaptor implements the classical-wire transport (C9, §4.9): a
// line-framed subset of the IRC protocol served over the same websocket
// upgrade mechanism as the native transport, but rendering text lines
// instead of JSON frames. It bypasses the Hub's native JSON dispatch
// entirely and calls Dispatcher primitives directly, re-entering the Hub
// only to join rooms and observe its outbound events.
package wireadaptor

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ircultra/gateway/internal/dispatch"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/id"
	"github.com/ircultra/gateway/internal/store"
)

const serverName = "ircultra"

var upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096}

// Adaptor serves Transport B.
type Adaptor struct {
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	st         *store.Store
}

// New builds a wire Adaptor over the same Hub and Dispatcher the native
// transport uses.
func New(h *hub.Hub, d *dispatch.Dispatcher, st *store.Store) *Adaptor {
	return &Adaptor{hub: h, dispatcher: d, st: st}
}

// ServeHTTP upgrades a request to the classical line-based transport.
func (a *Adaptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wireadaptor: upgrade failed: %v", err)
		return
	}

	sess := hub.NewSession(id.Next(), hub.ClientIP(r), "wire", 10, 5000)
	a.hub.Register(sess)

	go a.writeLoop(sess, conn)
	a.readLoop(sess, conn)
}

func (a *Adaptor) writeLoop(sess *hub.Session, conn *websocket.Conn) {
	for {
		select {
		case frame, ok := <-sess.Out():
			if !ok {
				conn.Close()
				return
			}
			line := render(frame, sess)
			if line == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				conn.Close()
				return
			}
		case <-sess.Done():
			conn.Close()
			return
		}
	}
}

func (a *Adaptor) readLoop(sess *hub.Session, conn *websocket.Conn) {
	defer a.hub.Unregister(sess)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(data), "\r\n"), "\n") {
			a.handleLine(sess, conn, strings.TrimRight(line, "\r"))
		}
		select {
		case <-sess.Done():
			return
		default:
		}
	}
}

func (a *Adaptor) handleLine(sess *hub.Session, conn *websocket.Conn, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "PING":
		token := ""
		if len(fields) > 1 {
			token = fields[1]
		}
		send(conn, "PONG "+serverName+" :"+token)

	case "NICK":
		if len(fields) < 2 {
			sendNumeric(conn, sess, "461", "NICK :not enough parameters")
			return
		}
		alias := fields[1]
		if _, ok := a.hub.SessionByAlias(alias); ok {
			sendNumeric(conn, sess, "433", alias+" :nickname is already in use")
			return
		}
		if sess.DeviceID == "" {
			sess.DeviceID = id.Next()
			a.st.UpsertDevice(sess.DeviceID, "wire:"+sess.ID)
		}
		if err := a.claimViaNick(sess, alias); err != nil {
			sendNumeric(conn, sess, "432", alias+" :erroneous nickname")
			return
		}
		sendNumeric(conn, sess, "001", "Welcome, "+alias)

	case "JOIN":
		if len(fields) < 2 {
			sendNumeric(conn, sess, "461", "JOIN :not enough parameters")
			return
		}
		if err := a.dispatcher.JoinChannel(sess, fields[1]); err != nil {
			sendNumeric(conn, sess, "401", fields[1]+" :"+err.Error())
			return
		}
		a.sendNames(conn, sess, fields[1])

	case "LIST":
		for _, c := range a.dispatcher.ListChannelSummaries() {
			sendNumeric(conn, sess, "322", fmt.Sprintf("%s %d :%s", c.Name, c.MemberCount, c.Topic))
		}
		sendNumeric(conn, sess, "323", ":End of /LIST")

	case "PRIVMSG":
		if len(fields) < 2 {
			sendNumeric(conn, sess, "461", "PRIVMSG :not enough parameters")
			return
		}
		target := fields[1]
		text := strings.TrimPrefix(line, fields[0]+" "+fields[1])
		text = strings.TrimPrefix(strings.TrimSpace(text), ":")
		if text == "" {
			sendNumeric(conn, sess, "412", ":no text to send")
			return
		}
		if strings.HasPrefix(target, "#") {
			if err := a.dispatcher.SendChannelMessage(sess, target, text, store.KindText, "", ""); err != nil {
				sendNumeric(conn, sess, "401", target+" :"+err.Error())
			}
			return
		}
		// Targeted PRIVMSG to a nick echoes to the sender only; it is not
		// delivered to the named live alias in this version (§9 open
		// question 2 — carried forward unresolved, matching the base
		// design's documented behavior rather than guessing intent).
		send(conn, fmt.Sprintf(":%s!%s@wire PRIVMSG %s :%s", sess.Alias, sess.Alias, target, text))

	default:
		// Unrecognized verbs are silently ignored: the recognized reply set
		// in this version is limited to the classical subset in §4.9.
	}
}

func (a *Adaptor) claimViaNick(sess *hub.Session, alias string) error {
	payload, _ := json.Marshal(map[string]string{"alias": alias})
	a.dispatcher.HandleEvent(sess, "claim_alias", payload)
	if sess.Alias != alias {
		return fmt.Errorf("alias rejected")
	}
	return nil
}

func (a *Adaptor) sendNames(conn *websocket.Conn, sess *hub.Session, channel string) {
	members, err := a.dispatcher.ListMembers(channel)
	if err != nil {
		return
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Alias)
	}
	sendNumeric(conn, sess, "353", "= "+channel+" :"+strings.Join(names, " "))
	sendNumeric(conn, sess, "366", channel+" :End of /NAMES list")
}

func send(conn *websocket.Conn, line string) {
	conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func sendNumeric(conn *websocket.Conn, sess *hub.Session, code, rest string) {
	nick := sess.Alias
	if nick == "" {
		nick = "*"
	}
	send(conn, fmt.Sprintf(":%s %s %s %s", serverName, code, nick, rest))
}

// render translates a hub.OutboundFrame (produced by the same Dispatcher
// broadcasts the native transport observes) into a classical wire line.
func render(frame hub.OutboundFrame, sess *hub.Session) string {
	switch frame.Event {
	case "message_event":
		payload, ok := frame.Payload.(map[string]interface{})
		if !ok {
			return ""
		}
		msg, ok := payload["message"].(store.Message)
		if !ok {
			return ""
		}
		if msg.Body == nil {
			return ""
		}
		target := msg.Scope.Channel
		if target == "" {
			target = sess.Alias
		}
		return fmt.Sprintf(":%s!%s@wire PRIVMSG %s :%s", msg.SenderAlias, msg.SenderAlias, target, *msg.Body)
	default:
		return ""
	}
}
