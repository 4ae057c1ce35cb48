package store

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ircultra/gateway/internal/id"
)

// flushDelay is the write-behind coalescing window (§4.2: "~800ms later").
const flushDelay = 800 * time.Millisecond

// Store is the single authoritative, in-memory domain model, persisted by
// write-behind to a single JSON document. All mutation happens under mu; §5
// permits either a single-writer task or a mutex guarding aggregate state —
// this implementation takes the mutex approach, matching the lighter
// concurrency style of the teacher's in-process adapters.
type Store struct {
	mu   sync.Mutex
	path string

	dirty      bool
	flushTimer *time.Timer
	closed     bool

	devices        map[string]Device
	aliases        map[string]Alias
	sessions       map[string]Session
	channels       map[string]Channel
	channelMembers map[string]map[string]Membership
	dmConvos       map[string]DMConversation
	dmByPair       map[string]string
	messages       []Message
	messageIndex   map[string]int
	modActions     []ModerationAction
	bots           map[string]Bot
	auditEvents    []AuditEvent
}

// Open loads path (or initializes empty state) and returns a ready Store.
// On a missing or corrupt file it writes an initial empty document
// immediately, per §4.2.
func Open(path string) (*Store, error) {
	doc, existed := load(path)

	s := &Store{
		path:           path,
		devices:        doc.Devices,
		aliases:        doc.Aliases,
		sessions:       doc.Sessions,
		channels:       doc.Channels,
		channelMembers: doc.ChannelMembers,
		dmConvos:       doc.DMConversations,
		dmByPair:       make(map[string]string, len(doc.DMConversations)),
		messages:       doc.Messages,
		messageIndex:   make(map[string]int, len(doc.Messages)),
		modActions:     doc.ModerationActions,
		bots:           doc.BotApps,
		auditEvents:    doc.AuditEvents,
	}
	for convoID, c := range s.dmConvos {
		s.dmByPair[pairKey(c.AliasA, c.AliasB)] = convoID
	}
	for i, m := range s.messages {
		s.messageIndex[m.MessageID] = i
	}

	if len(s.bots) == 0 {
		s.bots["echo"] = Bot{
			BotID:           "echo",
			Name:            "echo",
			Version:         "1.0.0",
			Permissions:     []string{"channel.read", "channel.write"},
			EnabledChannels: nil,
			CreatedAt:       time.Now(),
		}
	}

	if !existed {
		if err := writeAtomic(path, s.snapshotLocked()); err != nil {
			log.Printf("store: initial write failed: %v", err)
		}
	}
	return s, nil
}

func (s *Store) snapshotLocked() document {
	return document{
		Devices:           s.devices,
		Aliases:           s.aliases,
		Sessions:          s.sessions,
		Channels:          s.channels,
		ChannelMembers:    s.channelMembers,
		DMConversations:   s.dmConvos,
		Messages:          s.messages,
		ModerationActions: s.modActions,
		BotApps:           s.bots,
		AuditEvents:       s.auditEvents,
	}
}

// markDirtyLocked schedules a flush flushDelay from now, coalescing any
// already-pending timer (§4.2: "concurrent mutations coalesce into one
// flush").
func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.flushTimer != nil {
		return
	}
	s.flushTimer = time.AfterFunc(flushDelay, s.flushAsync)
}

func (s *Store) flushAsync() {
	s.mu.Lock()
	if !s.dirty {
		s.flushTimer = nil
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.dirty = false
	s.flushTimer = nil
	path := s.path
	s.mu.Unlock()

	if err := writeAtomic(path, snap); err != nil {
		// Leaves the store dirty for retry on next mutation or shutdown
		// (§4.2 failure mode); does not surface to any client.
		log.Printf("store: flush failed: %v", err)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// Shutdown flushes any pending mutation synchronously and stops the timer.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	dirty := s.dirty
	snap := s.snapshotLocked()
	s.dirty = false
	s.closed = true
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	return writeAtomic(s.path, snap)
}

// ---- Devices ----

// UpsertDevice creates the device row on first sight, or touches
// LastSeenAt if it already exists.
func (s *Store) UpsertDevice(deviceID, publicKey string) Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		d = Device{
			DeviceID:  deviceID,
			PublicKey: publicKey,
			CreatedAt: time.Now(),
		}
	}
	d.LastSeenAt = time.Now()
	s.devices[deviceID] = d
	s.markDirtyLocked()
	return d
}

// AliasForDevice returns the alias currently mapped to deviceID, if any.
func (s *Store) AliasForDevice(deviceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.aliases {
		if a.CurrentDeviceID == deviceID {
			return a.Alias, true
		}
	}
	return "", false
}

// ---- Sessions ----

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sessionID, deviceID, ip, resumeToken string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := Session{
		SessionID:   sessionID,
		DeviceID:    deviceID,
		IP:          ip,
		ConnectedAt: time.Now(),
		ResumeToken: resumeToken,
	}
	s.sessions[sessionID] = sess
	s.markDirtyLocked()
	return sess
}

// SessionByResumeToken finds a session row for deviceID carrying the given
// resume token, whether or not that session has since been closed. The
// hello_device handler does not call it.
func (s *Store) SessionByResumeToken(deviceID, token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.DeviceID == deviceID && sess.ResumeToken == token {
			return sess, true
		}
	}
	return Session{}, false
}

// CloseSession marks a session disconnected; the row is retained.
func (s *Store) CloseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	now := time.Now()
	sess.DisconnectedAt = &now
	s.sessions[sessionID] = sess
	s.markDirtyLocked()
}

// ---- Aliases ----

// ClaimAlias is atomic: if the persisted record's ActiveSessionID is
// non-empty and belongs to a different session, the caller must supply
// either a matching deviceID or the correct reclaimNonce, per §4.2.
func (s *Store) ClaimAlias(alias, deviceID, sessionID, ip, nonce string) (Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.aliases[alias]
	if ok && existing.ActiveSessionID != "" && existing.ActiveSessionID != sessionID {
		if existing.CurrentDeviceID != deviceID && existing.ReclaimNonce != nonce {
			return Alias{}, ErrUnauthorized
		}
	}
	if ok && existing.CurrentDeviceID != deviceID && existing.ActiveSessionID == "" && existing.ReclaimNonce != nonce {
		return Alias{}, ErrUnauthorized
	}

	rec := Alias{
		Alias:           alias,
		CurrentDeviceID: deviceID,
		ActiveSessionID: sessionID,
		LastIP:          ip,
		ClaimedAt:       time.Now(),
		ReclaimNonce:    newNonce(),
	}
	s.aliases[alias] = rec
	s.markDirtyLocked()
	return rec, nil
}

// AliasHolderLive reports whether alias is currently held by a live session
// other than sessionID, and from which IP — used by the Dispatcher's
// ALIAS_IN_USE check.
func (s *Store) AliasHolderLive(alias, sessionID string) (ip string, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[alias]
	if !ok || a.ActiveSessionID == "" || a.ActiveSessionID == sessionID {
		return "", false
	}
	return a.LastIP, true
}

// ReleaseAlias clears ActiveSessionID without purging the row.
func (s *Store) ReleaseAlias(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[alias]
	if !ok {
		return
	}
	a.ActiveSessionID = ""
	s.aliases[alias] = a
	s.markDirtyLocked()
}

// GetAlias returns the persisted alias row.
func (s *Store) GetAlias(alias string) (Alias, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[alias]
	return a, ok
}

// ---- Channels ----

// EnsureChannel is idempotent: returns the existing channel, or creates one
// owned by ownerAlias.
func (s *Store) EnsureChannel(name, ownerAlias string) (Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[name]; ok {
		return c, false
	}
	c := Channel{
		ChannelID:  id.Next(),
		Name:       name,
		Modes:      make(map[string]bool),
		OwnerAlias: ownerAlias,
		CreatedAt:  time.Now(),
	}
	s.channels[name] = c
	s.channelMembers[name] = make(map[string]Membership)
	s.markDirtyLocked()
	return c, true
}

// GetChannel returns the channel row.
func (s *Store) GetChannel(name string) (Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[name]
	return c, ok
}

// SetChannelTopic updates the topic text.
func (s *Store) SetChannelTopic(name, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[name]
	if !ok {
		return ErrChannelNotFound
	}
	c.Topic = topic
	s.channels[name] = c
	s.markDirtyLocked()
	return nil
}

// SetChannelMode sets or clears a single mode flag, returning the full mode
// set afterward.
func (s *Store) SetChannelMode(name, mode string, on bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[name]
	if !ok {
		return nil, ErrChannelNotFound
	}
	if c.Modes == nil {
		c.Modes = make(map[string]bool)
	}
	if on {
		c.Modes[mode] = true
	} else {
		delete(c.Modes, mode)
	}
	s.channels[name] = c
	s.markDirtyLocked()
	return modeList(c.Modes), nil
}

func modeList(modes map[string]bool) []string {
	out := make([]string, 0, len(modes))
	for m, on := range modes {
		if on {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// ListChannels returns all channels, sorted by name.
func (s *Store) ListChannels() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ---- Memberships ----

// UpsertMembership adds alias to channel with the given role (MEMBER, or
// OWNER if alias created the channel). An existing membership keeps its
// role, mute and ban state; only its JoinedAt is refreshed.
func (s *Store) UpsertMembership(channel, alias string, role string) Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	if members == nil {
		members = make(map[string]Membership)
		s.channelMembers[channel] = members
	}
	if existing, ok := members[alias]; ok {
		existing.JoinedAt = time.Now()
		members[alias] = existing
		s.markDirtyLocked()
		return existing
	}
	m := Membership{
		Channel:  channel,
		Alias:    alias,
		Role:     role,
		JoinedAt: time.Now(),
	}
	members[alias] = m
	s.markDirtyLocked()
	return m
}

// PartMembership removes alias's membership row from channel entirely (a
// subsequent join starts fresh, per the join/part/join round-trip
// property).
func (s *Store) PartMembership(channel, alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members := s.channelMembers[channel]; members != nil {
		delete(members, alias)
	}
	s.markDirtyLocked()
}

// GetMembership returns the membership row for (channel, alias).
func (s *Store) GetMembership(channel, alias string) (Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	if members == nil {
		return Membership{}, false
	}
	m, ok := members[alias]
	return m, ok
}

// SetMemberRole sets a membership's role.
func (s *Store) SetMemberRole(channel, alias, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	if members == nil {
		return ErrMembershipNotFound
	}
	m, ok := members[alias]
	if !ok {
		return ErrMembershipNotFound
	}
	m.Role = role
	members[alias] = m
	s.markDirtyLocked()
	return nil
}

// SetMemberMute mutes alias in channel until the given time.
func (s *Store) SetMemberMute(channel, alias string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	if members == nil {
		return ErrMembershipNotFound
	}
	m, ok := members[alias]
	if !ok {
		return ErrMembershipNotFound
	}
	m.MutedUntil = until
	members[alias] = m
	s.markDirtyLocked()
	return nil
}

// SetMemberBan sets or clears the ban flag.
func (s *Store) SetMemberBan(channel, alias string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	if members == nil {
		return ErrMembershipNotFound
	}
	m, ok := members[alias]
	if !ok {
		return ErrMembershipNotFound
	}
	m.IsBanned = banned
	members[alias] = m
	s.markDirtyLocked()
	return nil
}

// ListMembers returns all non-banned memberships of a channel, sorted by
// alias, unless includeBanned is set (used for moderation listings).
func (s *Store) ListMembers(channel string, includeBanned bool) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channelMembers[channel]
	out := make([]Membership, 0, len(members))
	for _, m := range members {
		if m.IsBanned && !includeBanned {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// ---- DM conversations ----

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// GetOrCreateDmConversation returns the conversation for the sorted pair
// (a, b), creating it deterministically if absent (invariant 5).
func (s *Store) GetOrCreateDmConversation(a, b string) DMConversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	key := pairKey(lo, hi)
	if id, ok := s.dmByPair[key]; ok {
		return s.dmConvos[id]
	}
	convo := DMConversation{
		ConvoID:   id.Next(),
		AliasA:    lo,
		AliasB:    hi,
		CreatedAt: time.Now(),
	}
	s.dmConvos[convo.ConvoID] = convo
	s.dmByPair[key] = convo.ConvoID
	s.markDirtyLocked()
	return convo
}

// DMParticipants returns the sorted alias pair for a conversation id, used
// by the Dispatcher to fan a DM event out to both alias rooms.
func (s *Store) DMParticipants(convoID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dmConvos[convoID]
	if !ok {
		return nil
	}
	return []string{c.AliasA, c.AliasB}
}

// ---- Messages ----

// InsertMessage assigns an id and timestamp if unset and appends to the
// ordered message log.
func (s *Store) InsertMessage(m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.MessageID == "" {
		m.MessageID = id.Next()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.messages = append(s.messages, m)
	s.messageIndex[m.MessageID] = len(s.messages) - 1
	s.markDirtyLocked()
	return m
}

// FindMessage returns a message by id regardless of tombstone state, so
// audit and §8 round-trip checks can see deleted rows.
func (s *Store) FindMessage(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.messageIndex[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[idx], true
}

// EditMessage replaces the body, preserving id, scope, sender and
// timestamp (§8 round-trip property).
func (s *Store) EditMessage(id, body string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.messageIndex[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	m := s.messages[idx]
	m.Body = &body
	s.messages[idx] = m
	s.markDirtyLocked()
	return m, nil
}

// DeleteMessage tombstones a message.
func (s *Store) DeleteMessage(id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.messageIndex[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	now := time.Now()
	m := s.messages[idx]
	m.DeletedAt = &now
	s.messages[idx] = m
	s.markDirtyLocked()
	return m, nil
}

// ToggleReaction applies the (emoji, alias) uniqueness invariant: if alias
// has not reacted with emoji, it's added (added=true); otherwise removed
// (added=false).
func (s *Store) ToggleReaction(id, alias, emoji string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.messageIndex[id]
	if !ok {
		return Message{}, false, ErrMessageNotFound
	}
	m := s.messages[idx]

	ri := -1
	for i := range m.Reactions {
		if m.Reactions[i].Emoji == emoji {
			ri = i
			break
		}
	}

	added := false
	if ri == -1 {
		m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Aliases: []string{alias}})
		added = true
	} else {
		present := -1
		for i, a := range m.Reactions[ri].Aliases {
			if a == alias {
				present = i
				break
			}
		}
		if present == -1 {
			m.Reactions[ri].Aliases = append(m.Reactions[ri].Aliases, alias)
			added = true
		} else {
			aliases := m.Reactions[ri].Aliases
			aliases = append(aliases[:present], aliases[present+1:]...)
			m.Reactions[ri].Aliases = aliases
			if len(aliases) == 0 {
				m.Reactions = append(m.Reactions[:ri], m.Reactions[ri+1:]...)
			}
			added = false
		}
	}

	s.messages[idx] = m
	s.markDirtyLocked()
	return m, added, nil
}

// ListHistory returns messages matching scope, excluding tombstones,
// before the given time if set, sorted ascending by timestamp, then
// tail-sliced to limit (clamped [1,200] by the caller).
func (s *Store) ListHistory(scope Scope, limit int, before *time.Time) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key()
	var matched []Message
	for _, m := range s.messages {
		if m.Scope.Key() != key {
			continue
		}
		if m.DeletedAt != nil {
			continue
		}
		if before != nil && !m.Timestamp.Before(*before) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// SetPinned sets or clears a channel message's pinned flag.
func (s *Store) SetPinned(id string, pinned bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.messageIndex[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	m := s.messages[idx]
	m.Pinned = pinned
	s.messages[idx] = m
	s.markDirtyLocked()
	return m, nil
}

// ListPinned returns every non-deleted pinned message in a channel, oldest
// first.
func (s *Store) ListPinned(channel string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Scope{Kind: ScopeChannel, Channel: channel}.Key()
	var out []Message
	for _, m := range s.messages {
		if m.Scope.Key() == key && m.Pinned && m.DeletedAt == nil {
			out = append(out, m)
		}
	}
	return out
}

// ClearChannelMessages tombstones every live message in a channel, for the
// moderator-only /clear command. Returns the count affected.
func (s *Store) ClearChannelMessages(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Scope{Kind: ScopeChannel, Channel: channel}.Key()
	now := time.Now()
	n := 0
	for i, m := range s.messages {
		if m.Scope.Key() == key && m.DeletedAt == nil {
			s.messages[i].DeletedAt = &now
			n++
		}
	}
	if n > 0 {
		s.markDirtyLocked()
	}
	return n
}

// SearchChannelMessages does a case-insensitive substring search over body
// text only; encrypted DMs are never searched.
func (s *Store) SearchChannelMessages(channel, term string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(term)
	key := Scope{Kind: ScopeChannel, Channel: channel}.Key()
	var out []Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.Scope.Key() != key || m.DeletedAt != nil || m.Body == nil {
			continue
		}
		if strings.Contains(strings.ToLower(*m.Body), needle) {
			out = append(out, m)
		}
	}
	return out
}

// RunRetentionCleanup tombstones messages older than now-days, returning
// the count affected.
func (s *Store) RunRetentionCleanup(days int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	now := time.Now()
	n := 0
	for i, m := range s.messages {
		if m.DeletedAt != nil {
			continue
		}
		if m.Timestamp.Before(cutoff) {
			s.messages[i].DeletedAt = &now
			n++
		}
	}
	if n > 0 {
		s.markDirtyLocked()
	}
	return n
}

// ---- Moderation / bots / audit ----

// InsertModerationAction appends a moderation log row.
func (s *Store) InsertModerationAction(a ModerationAction) ModerationAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ActionID == "" {
		a.ActionID = id.Next()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.modActions = append(s.modActions, a)
	s.markDirtyLocked()
	return a
}

// ListBots returns all registered bots, sorted by id.
func (s *Store) ListBots() []Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bot, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// GetBot returns a single registered bot.
func (s *Store) GetBot(botID string) (Bot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[botID]
	return b, ok
}

// SeedBot registers a bot if it doesn't already exist, used by bootstrap to
// apply an optional seed file (SPEC_FULL.md "MOTD and bot seeding").
func (s *Store) SeedBot(b Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[b.BotID]; ok {
		return
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	s.bots[b.BotID] = b
	s.markDirtyLocked()
}

// InsertAuditEvent appends an audit log row.
func (s *Store) InsertAuditEvent(e AuditEvent) AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.EventID == "" {
		e.EventID = id.Next()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.auditEvents = append(s.auditEvents, e)
	s.markDirtyLocked()
	return e
}
