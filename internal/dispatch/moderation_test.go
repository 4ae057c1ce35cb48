package dispatch

import (
	"testing"

	"github.com/ircultra/gateway/internal/store"
)

func TestSetRoleRequiresOp(t *testing.T) {
	d, h := newTestDispatcher(t)
	owner := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	if err := d.JoinChannel(owner, "#general"); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}

	member := connectAndClaim(t, d, h, "zed", "5.6.7.8")
	d.JoinChannel(member, "#general")

	// zed is a plain MEMBER, not OP, and must not be able to promote anyone.
	third := connectAndClaim(t, d, h, "ivy", "8.8.8.8")
	d.JoinChannel(third, "#general")
	if err := d.SetRole(member, "#general", "ivy", "op"); err != ErrInsufficientRole {
		t.Errorf("expected ErrInsufficientRole for a MEMBER trying to set roles, got %v", err)
	}

	// The channel creator is OWNER, which outranks OP, so this must succeed.
	if err := d.SetRole(owner, "#general", "zed", "op"); err != nil {
		t.Errorf("owner promoting a member to op should succeed: %v", err)
	}
	m, _ := d.store.GetMembership("#general", "zed")
	if m.Role != store.RoleOp {
		t.Errorf("zed's role = %q, want OP", m.Role)
	}
}

func TestKickRemovesMembershipAndLiveRoom(t *testing.T) {
	d, h := newTestDispatcher(t)
	owner := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(owner, "#general")
	target := connectAndClaim(t, d, h, "zed", "5.6.7.8")
	d.JoinChannel(target, "#general")

	if err := d.Kick(owner, "#general", "zed", "spamming"); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if _, ok := d.store.GetMembership("#general", "zed"); ok {
		t.Error("membership should be removed after kick")
	}
	if target.Channels["#general"] {
		t.Error("kicked session's live channel set should no longer include the channel")
	}
}

func TestMutedMemberCannotSend(t *testing.T) {
	d, h := newTestDispatcher(t)
	owner := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(owner, "#general")
	target := connectAndClaim(t, d, h, "zed", "5.6.7.8")
	d.JoinChannel(target, "#general")

	if err := d.Mute(owner, "#general", "zed", 60_000_000_000); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if err := d.SendChannelMessage(target, "#general", "hi", store.KindText, "", ""); err != ErrMuted {
		t.Errorf("expected ErrMuted, got %v", err)
	}
}

func TestPinUnpinClearPersistEffect(t *testing.T) {
	d, h := newTestDispatcher(t)
	owner := connectAndClaim(t, d, h, "nova", "1.2.3.4")
	d.JoinChannel(owner, "#general")
	if err := d.SendChannelMessage(owner, "#general", "important", store.KindText, "", ""); err != nil {
		t.Fatalf("SendChannelMessage: %v", err)
	}
	msgs := d.store.ListHistory(store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, 10, nil)
	msgID := msgs[0].MessageID

	if err := d.Pin(owner, "#general", msgID); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if pinned := d.store.ListPinned("#general"); len(pinned) != 1 {
		t.Fatalf("expected 1 pinned message, got %d", len(pinned))
	}

	if err := d.Unpin(owner, "#general", msgID); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if pinned := d.store.ListPinned("#general"); len(pinned) != 0 {
		t.Fatalf("expected 0 pinned messages after unpin, got %d", len(pinned))
	}

	n, err := d.Clear(owner, "#general")
	if err != nil || n != 1 {
		t.Fatalf("Clear: n=%d err=%v, want n=1", n, err)
	}
	if live := d.store.ListHistory(store.Scope{Kind: store.ScopeChannel, Channel: "#general"}, 10, nil); len(live) != 0 {
		t.Errorf("expected no live messages after clear, got %d", len(live))
	}
}
