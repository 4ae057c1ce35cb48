// Package interpreter executes the slash-command language from §4.8 by
// composing the primitives a Runner exposes. It is decoupled from
// internal/dispatch the same way internal/hub is decoupled from dispatch:
// Runner is an interface satisfied structurally by *dispatch.Dispatcher, so
// dispatch imports interpreter (to call Execute) without interpreter ever
// importing dispatch back.
package interpreter

import (
	"time"

	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/store"
)

// ChannelSummary is one row of a /list reply.
type ChannelSummary struct {
	Name        string
	Topic       string
	MemberCount int
}

// WhoisResult is the answer to /whois.
type WhoisResult struct {
	Alias    string
	Status   string
	Channels []string
}

// Runner is the set of domain primitives the Command Interpreter composes.
// Every method here is implemented by *dispatch.Dispatcher.
type Runner interface {
	// Presence / session.
	SetStatus(sess *hub.Session, status string)
	Quit(sess *hub.Session)
	ClaimAlias(sess *hub.Session, alias string)

	// Channel membership.
	JoinChannel(sess *hub.Session, channel string) error
	PartChannel(sess *hub.Session, channel, reason string) error
	ListChannelSummaries() []ChannelSummary
	ListMembers(channel string) ([]store.Membership, error)
	ListOnlineAliases() []string
	Whois(alias string) (WhoisResult, error)

	// Channel administration.
	GetTopic(channel string) (string, error)
	SetTopic(sess *hub.Session, channel, topic string) (string, error)
	SetMode(sess *hub.Session, channel, token string) ([]string, error)
	SetRole(sess *hub.Session, channel, targetAlias, roleCmd string) error
	Ban(sess *hub.Session, channel, targetAlias, reason string) error
	Unban(sess *hub.Session, channel, targetAlias string) error
	Mute(sess *hub.Session, channel, targetAlias string, duration time.Duration) error
	Unmute(sess *hub.Session, channel, targetAlias string) error
	Kick(sess *hub.Session, channel, targetAlias, reason string) error
	Invite(sess *hub.Session, channel, targetAlias string) error

	// Messaging.
	SendChannelMessage(sess *hub.Session, channel, body, kind, replyTo, threadID string) error
	DirectMessagePlain(sess *hub.Session, targetAlias, body string) error
	Search(channel, term string, limit int) []store.Message
	Pin(sess *hub.Session, channel, messageID string) error
	Unpin(sess *hub.Session, channel, messageID string) error
	Clear(sess *hub.Session, channel string) (int, error)

	// Bots.
	BotList() []store.Bot
	BotInvoke(sess *hub.Session, botID, command string, args []string, channel string) error
}
