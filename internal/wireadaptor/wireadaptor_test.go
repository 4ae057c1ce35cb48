package wireadaptor

import (
	"testing"

	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/store"
)

func TestRenderMessageEventToPrivmsg(t *testing.T) {
	sess := hub.NewSession("sess-1", "1.2.3.4", "wire", 10, 5000)
	sess.Alias = "nova"
	body := "hello there"
	frame := hub.OutboundFrame{
		Event: "message_event",
		Payload: map[string]interface{}{
			"message": store.Message{
				SenderAlias: "zed",
				Scope:       store.Scope{Kind: store.ScopeChannel, Channel: "#general"},
				Body:        &body,
			},
		},
	}
	line := render(frame, sess)
	want := ":zed!zed@wire PRIVMSG #general :hello there"
	if line != want {
		t.Errorf("render = %q, want %q", line, want)
	}
}

func TestRenderSkipsEncryptedDMPayload(t *testing.T) {
	sess := hub.NewSession("sess-1", "1.2.3.4", "wire", 10, 5000)
	frame := hub.OutboundFrame{
		Event: "message_event",
		Payload: map[string]interface{}{
			"message": store.Message{
				SenderAlias:      "zed",
				Scope:            store.Scope{Kind: store.ScopeDM, ConvoID: "c1"},
				EncryptedPayload: &store.EncryptedPayload{Ciphertext: "opaque"},
			},
		},
	}
	if line := render(frame, sess); line != "" {
		t.Errorf("render of a body-less (encrypted) message should be empty, got %q", line)
	}
}

func TestRenderIgnoresOtherEvents(t *testing.T) {
	sess := hub.NewSession("sess-1", "1.2.3.4", "wire", 10, 5000)
	frame := hub.OutboundFrame{Event: "presence_event", Payload: map[string]interface{}{}}
	if line := render(frame, sess); line != "" {
		t.Errorf("render of a non-message_event frame should be empty, got %q", line)
	}
}
