package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Shutdown() })
	return st
}

func TestOpenSeedsEchoBot(t *testing.T) {
	st := openTestStore(t)
	if _, ok := st.GetBot("echo"); !ok {
		t.Fatal("expected echo bot to be pre-seeded on empty state")
	}
}

func TestClaimAliasRejectsMismatchedReclaim(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.ClaimAlias("nova", "dev-1", "sess-1", "1.2.3.4", ""); err != nil {
		t.Fatalf("first claim should succeed: %v", err)
	}
	// A second device, without the live session's deviceID or the correct
	// nonce, must not be able to steal the alias from a live session.
	if _, err := st.ClaimAlias("nova", "dev-2", "sess-2", "5.6.7.8", "wrong-nonce"); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClaimAliasAllowsSameDeviceReclaim(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.ClaimAlias("nova", "dev-1", "sess-1", "1.2.3.4", ""); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	st.ReleaseAlias("nova")
	if _, err := st.ClaimAlias("nova", "dev-1", "sess-2", "1.2.3.4", ""); err != nil {
		t.Fatalf("same-device reclaim after release should succeed: %v", err)
	}
}

func TestMessageEditPreservesIdentity(t *testing.T) {
	st := openTestStore(t)
	scope := Scope{Kind: ScopeChannel, Channel: "#general"}
	body := "hello"
	m := st.InsertMessage(Message{Scope: scope, SenderAlias: "nova", Kind: KindText, Body: &body})

	edited, err := st.EditMessage(m.MessageID, "hello edited")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if edited.MessageID != m.MessageID || edited.SenderAlias != m.SenderAlias || !edited.Timestamp.Equal(m.Timestamp) {
		t.Errorf("edit must preserve id/sender/timestamp: got %+v want base %+v", edited, m)
	}
	if diff := cmp.Diff(m.Scope, edited.Scope); diff != "" {
		t.Errorf("edit must preserve scope (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Reactions, edited.Reactions); diff != "" {
		t.Errorf("edit must preserve reactions (-want +got):\n%s", diff)
	}
	if edited.Body == nil || *edited.Body != "hello edited" {
		t.Errorf("Body = %v, want %q", edited.Body, "hello edited")
	}
}

func TestToggleReactionUniquePerAliasEmoji(t *testing.T) {
	st := openTestStore(t)
	body := "hi"
	m := st.InsertMessage(Message{Scope: Scope{Kind: ScopeChannel, Channel: "#general"}, SenderAlias: "nova", Kind: KindText, Body: &body})

	after, added, err := st.ToggleReaction(m.MessageID, "zed", "👍")
	if err != nil || !added {
		t.Fatalf("first toggle should add: added=%v err=%v", added, err)
	}
	if len(after.Reactions) != 1 || len(after.Reactions[0].Aliases) != 1 {
		t.Fatalf("expected one reaction with one alias, got %+v", after.Reactions)
	}

	after, added, err = st.ToggleReaction(m.MessageID, "zed", "👍")
	if err != nil || added {
		t.Fatalf("second toggle by the same alias/emoji should remove: added=%v err=%v", added, err)
	}
	if len(after.Reactions) != 0 {
		t.Fatalf("reaction entry should be pruned once empty, got %+v", after.Reactions)
	}
}

func TestDMConversationIdentityIsOrderIndependent(t *testing.T) {
	st := openTestStore(t)
	c1 := st.GetOrCreateDmConversation("zed", "nova")
	c2 := st.GetOrCreateDmConversation("nova", "zed")
	if c1.ConvoID != c2.ConvoID {
		t.Errorf("GetOrCreateDmConversation should be order-independent: %q != %q", c1.ConvoID, c2.ConvoID)
	}
	if c1.AliasA != "nova" || c1.AliasB != "zed" {
		t.Errorf("expected sorted pair nova<zed, got AliasA=%q AliasB=%q", c1.AliasA, c1.AliasB)
	}
}

func TestListHistoryExcludesTombstonesAndClampsToLimit(t *testing.T) {
	st := openTestStore(t)
	scope := Scope{Kind: ScopeChannel, Channel: "#general"}
	var last Message
	for i := 0; i < 5; i++ {
		body := "msg"
		last = st.InsertMessage(Message{Scope: scope, SenderAlias: "nova", Kind: KindText, Body: &body})
	}
	st.DeleteMessage(last.MessageID)

	got := st.ListHistory(scope, 2, nil)
	if len(got) != 2 {
		t.Fatalf("expected history clamped to limit 2, got %d", len(got))
	}
	for _, m := range got {
		if m.MessageID == last.MessageID {
			t.Errorf("tombstoned message %q should not appear in history", last.MessageID)
		}
	}
}

func TestClearChannelMessagesTombstonesAllLiveRows(t *testing.T) {
	st := openTestStore(t)
	scope := Scope{Kind: ScopeChannel, Channel: "#general"}
	for i := 0; i < 3; i++ {
		body := "msg"
		st.InsertMessage(Message{Scope: scope, SenderAlias: "nova", Kind: KindText, Body: &body})
	}
	n := st.ClearChannelMessages("#general")
	if n != 3 {
		t.Fatalf("expected 3 messages cleared, got %d", n)
	}
	if got := st.ListHistory(scope, 50, nil); len(got) != 0 {
		t.Fatalf("expected no live history after clear, got %d", len(got))
	}
}
