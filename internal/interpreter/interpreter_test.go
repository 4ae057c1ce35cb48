package interpreter

import (
	"errors"
	"testing"
	"time"

	"github.com/ircultra/gateway/internal/command"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/store"
)

// fakeRunner is a minimal, call-recording stand-in for *dispatch.Dispatcher,
// letting these tests exercise command parsing and argument plumbing without
// a real Store or Hub.
type fakeRunner struct {
	joinedChannel    string
	partedChannel    string
	partedReason     string
	status           string
	quit             bool
	sentChannel      string
	sentBody         string
	sentKind         string
	sentReplyTo      string
	sentThreadID     string
	dmTarget         string
	dmBody           string
	topicErr         error
	channelSummaries []ChannelSummary
	claimedAlias     string
}

func (f *fakeRunner) SetStatus(sess *hub.Session, status string) { f.status = status }
func (f *fakeRunner) Quit(sess *hub.Session)                     { f.quit = true }
func (f *fakeRunner) ClaimAlias(sess *hub.Session, alias string) { f.claimedAlias = alias }

func (f *fakeRunner) JoinChannel(sess *hub.Session, channel string) error {
	f.joinedChannel = channel
	return nil
}
func (f *fakeRunner) PartChannel(sess *hub.Session, channel, reason string) error {
	f.partedChannel, f.partedReason = channel, reason
	return nil
}
func (f *fakeRunner) ListChannelSummaries() []ChannelSummary { return f.channelSummaries }
func (f *fakeRunner) ListMembers(channel string) ([]store.Membership, error) {
	return nil, nil
}
func (f *fakeRunner) ListOnlineAliases() []string { return nil }
func (f *fakeRunner) Whois(alias string) (WhoisResult, error) {
	return WhoisResult{}, errors.New("offline")
}

func (f *fakeRunner) GetTopic(channel string) (string, error) { return "", f.topicErr }
func (f *fakeRunner) SetTopic(sess *hub.Session, channel, topic string) (string, error) {
	return topic, nil
}
func (f *fakeRunner) SetMode(sess *hub.Session, channel, token string) ([]string, error) {
	return nil, nil
}
func (f *fakeRunner) SetRole(sess *hub.Session, channel, targetAlias, roleCmd string) error {
	return nil
}
func (f *fakeRunner) Ban(sess *hub.Session, channel, targetAlias, reason string) error   { return nil }
func (f *fakeRunner) Unban(sess *hub.Session, channel, targetAlias string) error         { return nil }
func (f *fakeRunner) Mute(sess *hub.Session, channel, targetAlias string, d time.Duration) error {
	return nil
}
func (f *fakeRunner) Unmute(sess *hub.Session, channel, targetAlias string) error   { return nil }
func (f *fakeRunner) Kick(sess *hub.Session, channel, targetAlias, reason string) error { return nil }
func (f *fakeRunner) Invite(sess *hub.Session, channel, targetAlias string) error   { return nil }

func (f *fakeRunner) SendChannelMessage(sess *hub.Session, channel, body, kind, replyTo, threadID string) error {
	f.sentChannel, f.sentBody, f.sentKind, f.sentReplyTo, f.sentThreadID = channel, body, kind, replyTo, threadID
	return nil
}
func (f *fakeRunner) DirectMessagePlain(sess *hub.Session, targetAlias, body string) error {
	f.dmTarget, f.dmBody = targetAlias, body
	return nil
}
func (f *fakeRunner) Search(channel, term string, limit int) []store.Message { return nil }
func (f *fakeRunner) Pin(sess *hub.Session, channel, messageID string) error   { return nil }
func (f *fakeRunner) Unpin(sess *hub.Session, channel, messageID string) error { return nil }
func (f *fakeRunner) Clear(sess *hub.Session, channel string) (int, error)     { return 0, nil }

func (f *fakeRunner) BotList() []store.Bot { return nil }
func (f *fakeRunner) BotInvoke(sess *hub.Session, botID, command string, args []string, channel string) error {
	return nil
}

var _ Runner = (*fakeRunner)(nil)

func newSession() *hub.Session {
	return hub.NewSession("sess-1", "1.2.3.4", "native", 25, 5000)
}

func TestExecuteJoin(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/join #general"), r)
	if r.joinedChannel != "#general" {
		t.Errorf("JoinChannel called with %q, want #general", r.joinedChannel)
	}
}

func TestExecuteNickReclaimsAlias(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/nick nova"), r)
	if r.claimedAlias != "nova" {
		t.Errorf("ClaimAlias called with %q, want nova", r.claimedAlias)
	}
}

func TestExecuteMsgSplitsAliasFromFreeTextBody(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/msg nova   hello there friend"), r)
	if r.dmTarget != "nova" {
		t.Errorf("dmTarget = %q, want nova", r.dmTarget)
	}
	if r.dmBody != "hello there friend" {
		t.Errorf("dmBody = %q, want %q", r.dmBody, "hello there friend")
	}
}

func TestExecuteMeRequiresContextChannel(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/me waves"), r)
	if r.sentChannel != "" {
		t.Error("SendChannelMessage should not be called without a context channel")
	}

	sess.ContextChannel = "#general"
	Execute(sess, command.Parse("/me waves"), r)
	if r.sentChannel != "#general" || r.sentKind != store.KindAction {
		t.Errorf("expected ACTION sent to #general, got channel=%q kind=%q", r.sentChannel, r.sentKind)
	}
}

func TestExecuteReplyCarriesReplyToID(t *testing.T) {
	sess := newSession()
	sess.ContextChannel = "#general"
	r := &fakeRunner{}
	Execute(sess, command.Parse("/reply msg-42 thanks for that"), r)
	if r.sentReplyTo != "msg-42" {
		t.Errorf("sentReplyTo = %q, want msg-42", r.sentReplyTo)
	}
	if r.sentBody != "thanks for that" {
		t.Errorf("sentBody = %q, want %q", r.sentBody, "thanks for that")
	}
}

func TestExecuteIgnoreUnignore(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/ignore troll"), r)
	if !sess.Ignored["troll"] {
		t.Error("expected troll to be on the ignore list")
	}
	Execute(sess, command.Parse("/unignore troll"), r)
	if sess.Ignored["troll"] {
		t.Error("expected troll to be removed from the ignore list")
	}
}

func TestExecuteUnknownCommandSendsServerError(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/bogus"), r)
	frame := <-sess.Out()
	if frame.Event != "server_error" {
		t.Errorf("expected server_error for an unknown command, got %s", frame.Event)
	}
}

func TestExecuteHelpIsEphemeralNotice(t *testing.T) {
	sess := newSession()
	r := &fakeRunner{}
	Execute(sess, command.Parse("/help"), r)
	frame := <-sess.Out()
	if frame.Event != "message_event" {
		t.Fatalf("expected message_event for /help, got %s", frame.Event)
	}
	payload, ok := frame.Payload.(map[string]interface{})
	if !ok || payload["type"] != "CREATED" {
		t.Errorf("expected CREATED message_event payload, got %+v", frame.Payload)
	}
}
