package dispatch

import (
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/interpreter"
	"github.com/ircultra/gateway/internal/store"
)

// SetStatus updates a session's presence status and rebroadcasts it.
func (d *Dispatcher) SetStatus(sess *hub.Session, status string) {
	sess.Status = status
	d.broadcastPresence(sess)
}

// Quit closes the session; the owning transport's read/write loop notices
// closure and the Hub calls HandleDisconnect.
func (d *Dispatcher) Quit(sess *hub.Session) {
	d.hub.Disconnect(sess, CodeInternal, "client requested disconnect")
}

// ListChannelSummaries lists every channel with its count of non-banned
// memberships (online or not), for /list.
func (d *Dispatcher) ListChannelSummaries() []interpreter.ChannelSummary {
	channels := d.store.ListChannels()
	out := make([]interpreter.ChannelSummary, 0, len(channels))
	for _, c := range channels {
		members := d.store.ListMembers(c.Name, false)
		out = append(out, interpreter.ChannelSummary{Name: c.Name, Topic: c.Topic, MemberCount: len(members)})
	}
	return out
}

// ListMembers lists a channel's non-banned memberships, for /names.
func (d *Dispatcher) ListMembers(channel string) ([]store.Membership, error) {
	if _, ok := d.store.GetChannel(channel); !ok {
		return nil, store.ErrChannelNotFound
	}
	return d.store.ListMembers(channel, false), nil
}

// ListOnlineAliases lists every alias currently held by a live session, for
// /who.
func (d *Dispatcher) ListOnlineAliases() []string {
	out := make([]string, 0)
	for _, s := range d.hub.AllSessions() {
		if s.Alias != "" {
			out = append(out, s.Alias)
		}
	}
	return out
}

// Whois answers /whois: status and joined channels of a live alias, or an
// error if the alias is not currently online.
func (d *Dispatcher) Whois(alias string) (interpreter.WhoisResult, error) {
	sess, ok := d.hub.SessionByAlias(alias)
	if !ok {
		return interpreter.WhoisResult{}, store.ErrChannelNotFound
	}
	channels := make([]string, 0, len(sess.Channels))
	for c := range sess.Channels {
		channels = append(channels, c)
	}
	return interpreter.WhoisResult{Alias: sess.Alias, Status: sess.Status, Channels: channels}, nil
}

// GetTopic returns a channel's topic text.
func (d *Dispatcher) GetTopic(channel string) (string, error) {
	c, ok := d.store.GetChannel(channel)
	if !ok {
		return "", store.ErrChannelNotFound
	}
	return c.Topic, nil
}

// Search performs a bounded body-substring search in a channel, for
// /search.
func (d *Dispatcher) Search(channel, term string, limit int) []store.Message {
	return d.store.SearchChannelMessages(channel, term, limit)
}

// BotList lists every registered bot, for /bot list.
func (d *Dispatcher) BotList() []store.Bot {
	return d.store.ListBots()
}
