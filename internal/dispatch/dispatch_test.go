package dispatch

import (
	"path/filepath"
	"testing"

	"github.com/ircultra/gateway/internal/color"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/id"
	"github.com/ircultra/gateway/internal/store"
)

func TestMain(m *testing.M) {
	if err := id.Init(0); err != nil {
		panic(err)
	}
	m.Run()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hub.Hub) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Shutdown() })

	h := hub.New(nil)
	d := New(st, h, color.NewAllocator(), nil, "welcome")
	h.SetDispatcher(d)
	return d, h
}

// connectAndClaim drives a session through hello_device + claim_alias so
// tests can exercise post-alias operations without re-deriving the wire
// payload shapes for every case.
func connectAndClaim(t *testing.T, d *Dispatcher, h *hub.Hub, alias, ip string) *hub.Session {
	t.Helper()
	sess := hub.NewSession(alias+"-sess", ip, "native", 25, 5000)
	h.Register(sess)
	d.helloDevice(sess, helloDevicePayload{DevicePublicKey: "pub-" + alias})
	d.claimAlias(sess, alias, "")
	if sess.Alias != alias {
		t.Fatalf("claimAlias failed to assign alias %q, session alias is %q", alias, sess.Alias)
	}
	return sess
}

func TestClaimAliasAutoJoinsLobby(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")

	if !sess.Channels["#lobby"] {
		t.Error("first alias claim should auto-join #lobby")
	}
	if _, ok := h.SessionByAlias("nova"); !ok {
		t.Error("alias room should contain the claiming session")
	}
}

func TestClaimAliasRejectsInUseFromDifferentIP(t *testing.T) {
	d, h := newTestDispatcher(t)
	connectAndClaim(t, d, h, "nova", "1.2.3.4")

	other := hub.NewSession("other-sess", "9.9.9.9", "native", 25, 5000)
	h.Register(other)
	d.helloDevice(other, helloDevicePayload{DevicePublicKey: "pub-other"})
	d.claimAlias(other, "nova", "")

	if other.Alias == "nova" {
		t.Error("a live alias held from a different IP must not be claimable without the reclaim nonce")
	}
}

func TestJoinChannelCreatorBecomesOwner(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")

	if err := d.JoinChannel(sess, "#newroom"); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}
	m, ok := d.store.GetMembership("#newroom", "nova")
	if !ok || m.Role != store.RoleOwner {
		t.Errorf("channel creator should be OWNER, got role=%q ok=%v", m.Role, ok)
	}
}

func TestSendChannelMessageRequiresMembership(t *testing.T) {
	d, h := newTestDispatcher(t)
	connectAndClaim(t, d, h, "nova", "1.2.3.4")
	// #general is created by a different alias, so nova is never a member.
	connectAndClaim(t, d, h, "zed", "5.6.7.8")
	zedSess, _ := h.SessionByAlias("zed")
	if err := d.JoinChannel(zedSess, "#general"); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}

	novaSess, _ := h.SessionByAlias("nova")
	if err := d.SendChannelMessage(novaSess, "#general", "hi", store.KindText, "", ""); err != ErrNotMember {
		t.Errorf("expected ErrNotMember for a non-member send, got %v", err)
	}
}

func TestEditMessageIsAuthorOnly(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(sess, "#general")
	if err := d.SendChannelMessage(sess, "#general", "hello", store.KindText, "", ""); err != nil {
		t.Fatalf("SendChannelMessage: %v", err)
	}
	msgs := d.store.ListHistory(store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, 10, nil)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	other := connectAndClaim(t, d, h, "zed", "5.6.7.8")
	d.JoinChannel(other, "#general")
	if err := d.EditMessage(other, msgs[0].MessageID, "hijacked"); err != store.ErrNotAuthor {
		t.Errorf("expected ErrNotAuthor when a non-author edits, got %v", err)
	}
	if err := d.EditMessage(sess, msgs[0].MessageID, "hello edited"); err != nil {
		t.Errorf("author edit should succeed: %v", err)
	}
}

func TestReactToggleAddsThenRemoves(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(sess, "#general")
	if err := d.SendChannelMessage(sess, "#general", "hello", store.KindText, "", ""); err != nil {
		t.Fatalf("SendChannelMessage: %v", err)
	}
	msgs := d.store.ListHistory(store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, 10, nil)
	msgID := msgs[0].MessageID

	if err := d.ReactToggle(sess, msgID, "👍"); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	msg, _ := d.store.FindMessage(msgID)
	if len(msg.Reactions) != 1 {
		t.Fatalf("expected 1 reaction after first toggle, got %d", len(msg.Reactions))
	}

	if err := d.ReactToggle(sess, msgID, "👍"); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	msg, _ = d.store.FindMessage(msgID)
	if len(msg.Reactions) != 0 {
		t.Fatalf("expected reaction removed after second toggle, got %d", len(msg.Reactions))
	}
}

func TestSendDMMessageNeverCarriesBody(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	connectAndClaim(t, d, h, "zed", "5.6.7.8")

	payload := store.EncryptedPayload{Algorithm: "x", Nonce: "n", Ciphertext: "c"}
	if err := d.SendDMMessage(sess, "zed", payload); err != nil {
		t.Fatalf("SendDMMessage: %v", err)
	}

	convo := d.store.GetOrCreateDmConversation("nova", "zed")
	msgs := d.store.ListHistory(store.Scope{Kind: store.ScopeDM, ConvoID: convo.ConvoID}, 10, nil)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 DM message, got %d", len(msgs))
	}
	if msgs[0].Body != nil {
		t.Error("DM-scope messages must never carry a plaintext body")
	}
	if msgs[0].EncryptedPayload == nil {
		t.Error("DM-scope messages must carry an EncryptedPayload")
	}
}

func TestDirectMessagePlainExceptionCarriesBody(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	connectAndClaim(t, d, h, "zed", "5.6.7.8")

	if err := d.DirectMessagePlain(sess, "zed", "hello in the clear"); err != nil {
		t.Fatalf("DirectMessagePlain: %v", err)
	}
	convo := d.store.GetOrCreateDmConversation("nova", "zed")
	msgs := d.store.ListHistory(store.Scope{Kind: store.ScopeDM, ConvoID: convo.ConvoID}, 10, nil)
	if len(msgs) != 1 || msgs[0].Body == nil || *msgs[0].Body != "hello in the clear" {
		t.Fatalf("expected one plaintext DM message, got %+v", msgs)
	}
}

func TestHistoryFetchClampsLimit(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(sess, "#general")
	for i := 0; i < 3; i++ {
		d.SendChannelMessage(sess, "#general", "hi", store.KindText, "", "")
	}
	// Drain the session's outbound channel so the next frame read is the
	// history_snapshot rather than one of the earlier broadcasts.
	for len(sess.Out()) > 0 {
		<-sess.Out()
	}
	negative := -5
	d.HistoryFetch(sess, store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, nil, &negative)
	frame := <-sess.Out()
	if frame.Event != "history_snapshot" {
		t.Fatalf("expected history_snapshot, got %s", frame.Event)
	}
	payload, _ := frame.Payload.(map[string]interface{})
	if messages, _ := payload["messages"].([]store.Message); len(messages) != 1 {
		t.Fatalf("limit=-5 should clamp to 1, got %d messages", len(messages))
	}
}

func TestHistoryFetchLimitZeroClampsToOneButOmittedDefaultsTo50(t *testing.T) {
	d, h := newTestDispatcher(t)
	sess := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(sess, "#general")
	for i := 0; i < 3; i++ {
		d.SendChannelMessage(sess, "#general", "hi", store.KindText, "", "")
	}
	for len(sess.Out()) > 0 {
		<-sess.Out()
	}

	zero := 0
	d.HistoryFetch(sess, store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, nil, &zero)
	frame := <-sess.Out()
	payload, _ := frame.Payload.(map[string]interface{})
	messages, _ := payload["messages"].([]store.Message)
	if len(messages) != 1 {
		t.Fatalf("limit=0 should clamp to 1, got %d messages", len(messages))
	}

	d.HistoryFetch(sess, store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, nil, nil)
	frame = <-sess.Out()
	payload, _ = frame.Payload.(map[string]interface{})
	messages, _ = payload["messages"].([]store.Message)
	if len(messages) != 3 {
		t.Fatalf("omitted limit should default to 50 (all 3 available), got %d messages", len(messages))
	}
}
