package dispatch

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ircultra/gateway/internal/color"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/id"
	"github.com/ircultra/gateway/internal/interpreter"
	"github.com/ircultra/gateway/internal/metrics"
	"github.com/ircultra/gateway/internal/role"
	"github.com/ircultra/gateway/internal/store"
	"github.com/ircultra/gateway/internal/validate"
)

// Dispatcher is the Hub's event handler (§4.7): it decodes, authorizes,
// mutates the Store and emits outbound events. It also implements
// interpreter.Runner so the Command Interpreter can compose these same
// primitives without dispatch importing interpreter's internals back.
type Dispatcher struct {
	store   *store.Store
	hub     *hub.Hub
	colors  *color.Allocator
	metrics *metrics.Metrics
	motd    string
}

// New builds a Dispatcher. motd is sent verbatim in every session_ready.
func New(st *store.Store, hb *hub.Hub, colors *color.Allocator, m *metrics.Metrics, motd string) *Dispatcher {
	return &Dispatcher{store: st, hub: hb, colors: colors, metrics: m, motd: motd}
}

// HandleEvent implements hub.Dispatcher.
func (d *Dispatcher) HandleEvent(sess *hub.Session, event string, payload json.RawMessage) {
	switch event {
	case "hello_device":
		var p helloDevicePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed hello_device")
			return
		}
		d.helloDevice(sess, p)

	case "claim_alias":
		var p claimAliasPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed claim_alias")
			return
		}
		d.claimAlias(sess, p.Alias, p.ReclaimNonce)

	case "command_exec":
		var p commandExecPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed command_exec")
			return
		}
		d.CommandExec(sess, p.Raw, p.ContextChannel)

	case "join_channel":
		var p joinChannelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed join_channel")
			return
		}
		if err := d.JoinChannel(sess, p.Channel); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "part_channel":
		var p partChannelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed part_channel")
			return
		}
		if err := d.PartChannel(sess, p.Channel, p.Reason); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "send_channel_message":
		var p sendChannelMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed send_channel_message")
			return
		}
		if err := d.SendChannelMessage(sess, p.Channel, p.Body, p.Kind, p.ReplyTo, p.ThreadID); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "send_dm_message":
		var p sendDmMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed send_dm_message")
			return
		}
		ep := store.EncryptedPayload(p.EncryptedPayload)
		if err := d.SendDMMessage(sess, p.TargetAlias, ep); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "react_toggle":
		var p reactTogglePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed react_toggle")
			return
		}
		if err := d.ReactToggle(sess, p.MessageID, p.Emoji); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "message_edit":
		var p messageEditPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed message_edit")
			return
		}
		if err := d.EditMessage(sess, p.MessageID, p.Body); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "message_delete":
		var p messageDeletePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed message_delete")
			return
		}
		if err := d.DeleteMessage(sess, p.MessageID); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "history_fetch":
		var p historyFetchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed history_fetch")
			return
		}
		d.HistoryFetch(sess, fromWireScope(p.Scope), p.Before, p.Limit)

	case "typing_state":
		var p typingStatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed typing_state")
			return
		}
		if err := d.TypingState(sess, fromWireScope(p.Scope), p.Active); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	case "bot_invoke":
		var p botInvokePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			sess.ServerError(CodeBadRequest, "malformed bot_invoke")
			return
		}
		if err := d.BotInvoke(sess, p.BotID, p.Command, p.Args, p.Channel); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}

	default:
		sess.ServerError(CodeBadRequest, "unknown event: "+event)
	}
}

// HandleDisconnect implements hub.Dispatcher: releases the session's alias,
// flips presence to offline, and closes its Store row (§5).
func (d *Dispatcher) HandleDisconnect(sess *hub.Session) {
	if sess.Alias != "" {
		d.store.ReleaseAlias(sess.Alias)
		d.colors.Release(sess.Alias, sess.IP)
		sess.Status = hub.StatusOffline
		d.broadcastPresence(sess)
	}
	d.store.CloseSession(sess.ID)
}

func errCode(err error) string {
	switch err {
	case store.ErrChannelNotFound:
		return CodeChannelNotFound
	case store.ErrMembershipNotFound:
		return CodeForbidden
	case store.ErrMessageNotFound:
		return CodeBadRequest
	case store.ErrNotAuthor:
		return CodeForbidden
	case store.ErrUnauthorized:
		return CodeUnauthorized
	case store.ErrAliasInUse:
		return CodeAliasInUse
	case ErrNotMember, ErrMuted, ErrBanned, ErrInsufficientRole:
		return CodeForbidden
	case ErrRequiresAlias:
		return CodeUnauthorized
	case ErrRateLimited:
		return CodeRateLimit
	default:
		return CodeBadRequest
	}
}

// ---- hello_device / claim_alias ----

func (d *Dispatcher) helloDevice(sess *hub.Session, p helloDevicePayload) {
	if strings.TrimSpace(p.DevicePublicKey) == "" {
		sess.ServerError(CodeBadRequest, "devicePublicKey required")
		return
	}
	deviceID := p.DeviceID
	if deviceID == "" {
		deviceID = id.Next()
	}
	d.store.UpsertDevice(deviceID, p.DevicePublicKey)

	sess.DeviceID = deviceID
	sess.DevicePublicKey = p.DevicePublicKey
	sess.ResumeToken = id.Next()
	d.store.CreateSession(sess.ID, deviceID, sess.IP, sess.ResumeToken)

	alias, _ := d.store.AliasForDevice(deviceID)
	sess.Alias = ""

	sess.Send("session_ready", map[string]interface{}{
		"deviceId":    deviceID,
		"alias":       orNil(alias),
		"resumeToken": sess.ResumeToken,
		"motd":        d.motd,
	})
}

// ClaimAlias is the Runner primitive backing /nick (§4.8: "re-run alias
// claim"): it is the same claim path as the claim_alias event, just without
// a reclaim nonce.
func (d *Dispatcher) ClaimAlias(sess *hub.Session, alias string) {
	d.claimAlias(sess, alias, "")
}

func (d *Dispatcher) claimAlias(sess *hub.Session, alias, nonce string) {
	normalized, err := validate.Alias(alias)
	if err != nil {
		sess.Send("alias_result", map[string]interface{}{"ok": false, "errorKey": CodeAliasInvalid, "message": err.Error()})
		return
	}
	if sess.DeviceID == "" {
		sess.ServerError(CodeUnauthorized, "hello_device required first")
		return
	}

	if holderIP, live := d.store.AliasHolderLive(normalized, sess.ID); live && holderIP != sess.IP {
		sess.Send("alias_result", map[string]interface{}{"ok": false, "errorKey": CodeAliasInUse, "message": "alias is in use"})
		return
	}

	rec, err := d.store.ClaimAlias(normalized, sess.DeviceID, sess.ID, sess.IP, nonce)
	if err != nil {
		sess.Send("alias_result", map[string]interface{}{"ok": false, "errorKey": CodeUnauthorized, "message": "reclaim nonce required"})
		return
	}

	firstAlias := sess.Alias == ""
	if sess.Alias != "" && sess.Alias != normalized {
		old := sess.Alias
		d.store.ReleaseAlias(old)
		d.hub.LeaveRoom(hub.AliasRoom(old), sess)
		d.colors.Release(old, sess.IP)
		offlineSess := *sess
		offlineSess.Alias = old
		offlineSess.Status = hub.StatusOffline
		d.broadcastPresence(&offlineSess)
	}

	sess.Alias = normalized
	sess.ReclaimNonce = rec.ReclaimNonce
	sess.Status = hub.StatusOnline
	sess.Color = d.colors.Assign(normalized, sess.IP)
	d.hub.JoinRoom(hub.AliasRoom(normalized), sess)

	if firstAlias {
		if err := d.JoinChannel(sess, "#lobby"); err != nil {
			log.Printf("dispatch: auto-join #lobby for %s failed: %v", normalized, err)
		}
	}

	sess.Send("alias_result", map[string]interface{}{"ok": true, "alias": normalized, "reclaimNonce": rec.ReclaimNonce})
	d.broadcastPresence(sess)
	d.sendNetworkSnapshot(sess)
}

func orNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ---- channel join/part ----

// JoinChannel normalizes name, creates the channel if missing (creator
// becomes OWNER), adds the membership and emits the CREATED/JOINED
// sequence from §4.7.
func (d *Dispatcher) JoinChannel(sess *hub.Session, rawName string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(rawName)
	if err != nil {
		return err
	}

	_, created := d.store.EnsureChannel(name, sess.Alias)
	memberRole := role.Member.String()
	if created {
		memberRole = role.Owner.String()
	} else if _, ok := d.store.GetMembership(name, sess.Alias); ok {
		// already a member; joining again is a no-op re-join that still
		// refreshes JoinedAt, per the join/part/join round-trip property.
	}
	d.store.UpsertMembership(name, sess.Alias, memberRole)

	d.hub.JoinRoom(hub.ChannelRoom(name), sess)
	sess.Channels[name] = true
	if sess.ContextChannel == "" {
		sess.ContextChannel = name
	}

	evtType := ChannelEventJoined
	if created {
		evtType = ChannelEventCreated
	}
	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      evtType,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"role": memberRole},
		"timestamp": time.Now(),
	}, nil)

	d.broadcastPresence(sess)
	d.sendNetworkSnapshot(sess)
	return nil
}

// PartChannel removes the membership and emits PARTED.
func (d *Dispatcher) PartChannel(sess *hub.Session, rawName, reason string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(rawName)
	if err != nil {
		return err
	}
	if _, ok := d.store.GetChannel(name); !ok {
		return store.ErrChannelNotFound
	}

	d.store.PartMembership(name, sess.Alias)
	d.hub.LeaveRoom(hub.ChannelRoom(name), sess)
	delete(sess.Channels, name)
	if sess.ContextChannel == name {
		sess.ContextChannel = ""
		for c := range sess.Channels {
			sess.ContextChannel = c
			break
		}
	}

	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      ChannelEventParted,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"reason": reason},
		"timestamp": time.Now(),
	}, nil)

	d.broadcastPresence(sess)
	d.sendNetworkSnapshot(sess)
	return nil
}

// ---- messaging ----

func (d *Dispatcher) checkMembershipForSend(channel, alias string) error {
	m, ok := d.store.GetMembership(channel, alias)
	if !ok {
		return ErrNotMember
	}
	if m.IsBanned {
		return ErrBanned
	}
	if m.MutedUntil != nil && m.MutedUntil.After(time.Now()) {
		return ErrMuted
	}
	return nil
}

// SendChannelMessage validates, authorizes, rate-limits and inserts a
// channel (or thread, if threadID is set) message, then broadcasts CREATED.
func (d *Dispatcher) SendChannelMessage(sess *hub.Session, channel, body, kind, replyTo, threadID string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.checkMembershipForSend(name, sess.Alias); err != nil {
		return err
	}
	text, err := validate.Body(body)
	if err != nil {
		return err
	}
	if !sess.RateWindow.Allow(time.Now()) {
		if d.metrics != nil {
			d.metrics.RateLimited()
		}
		return ErrRateLimited
	}
	if kind == "" {
		kind = store.KindText
	}

	scope := store.Scope{Kind: store.ScopeChannel, Channel: name}
	if threadID != "" {
		scope = store.Scope{Kind: store.ScopeThread, ThreadID: threadID, Channel: name}
	}

	msg := d.store.InsertMessage(store.Message{
		Scope:          scope,
		SenderAlias:    sess.Alias,
		SenderDeviceID: sess.DeviceID,
		Kind:           kind,
		Body:           &text,
		ReplyTo:        replyTo,
		ThreadID:       threadID,
	})
	if d.metrics != nil {
		d.metrics.MessageInserted(scope.Kind)
	}

	d.hub.Broadcast(hub.ChannelRoom(name), "message_event", map[string]interface{}{
		"type":    MessageEventCreated,
		"scope":   toWireScope(scope),
		"message": msg,
	}, d.notIgnoring(msg.SenderAlias))
	return nil
}

// SendDMMessage resolves the DM conversation and fans the opaque envelope
// out to both participants' alias rooms. The gateway never inspects
// EncryptedPayload (§9 "DM encryption").
func (d *Dispatcher) SendDMMessage(sess *hub.Session, targetAlias string, payload store.EncryptedPayload) error {
	if sess.Alias == "" || sess.DevicePublicKey == "" {
		return ErrRequiresAlias
	}
	target, err := validate.Alias(targetAlias)
	if err != nil {
		return err
	}
	convo := d.store.GetOrCreateDmConversation(sess.Alias, target)

	msg := d.store.InsertMessage(store.Message{
		Scope:            store.Scope{Kind: store.ScopeDM, ConvoID: convo.ConvoID},
		SenderAlias:      sess.Alias,
		SenderDeviceID:   sess.DeviceID,
		Kind:             store.KindText,
		EncryptedPayload: &payload,
	})
	if d.metrics != nil {
		d.metrics.MessageInserted(store.ScopeDM)
	}

	frame := map[string]interface{}{
		"type":    MessageEventCreated,
		"scope":   toWireScope(msg.Scope),
		"message": msg,
	}
	d.hub.Broadcast(hub.AliasRoom(sess.Alias), "message_event", frame, d.notIgnoring(msg.SenderAlias))
	d.hub.Broadcast(hub.AliasRoom(target), "message_event", frame, d.notIgnoring(msg.SenderAlias))
	return nil
}

// ReactToggle applies the reaction uniqueness invariant and broadcasts
// REACTION_ADDED / REACTION_REMOVED on the message's scope room.
func (d *Dispatcher) ReactToggle(sess *hub.Session, messageID, emoji string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	msg, added, err := d.store.ToggleReaction(messageID, sess.Alias, emoji)
	if err != nil {
		return err
	}
	evt := MessageEventReactionAdded
	if !added {
		evt = MessageEventReactionRemoved
	}
	d.broadcastToScope(msg.Scope, "message_event", map[string]interface{}{
		"type":    evt,
		"scope":   toWireScope(msg.Scope),
		"message": msg,
	})
	return nil
}

// EditMessage enforces author-only edit and broadcasts EDITED.
func (d *Dispatcher) EditMessage(sess *hub.Session, messageID, body string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	existing, ok := d.store.FindMessage(messageID)
	if !ok {
		return store.ErrMessageNotFound
	}
	if existing.SenderAlias != sess.Alias {
		return store.ErrNotAuthor
	}
	text, err := validate.Body(body)
	if err != nil {
		return err
	}
	msg, err := d.store.EditMessage(messageID, text)
	if err != nil {
		return err
	}
	d.broadcastToScope(msg.Scope, "message_event", map[string]interface{}{
		"type":    MessageEventEdited,
		"scope":   toWireScope(msg.Scope),
		"message": msg,
	})
	return nil
}

// DeleteMessage enforces author-only delete and broadcasts DELETED.
func (d *Dispatcher) DeleteMessage(sess *hub.Session, messageID string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	existing, ok := d.store.FindMessage(messageID)
	if !ok {
		return store.ErrMessageNotFound
	}
	if existing.SenderAlias != sess.Alias {
		return store.ErrNotAuthor
	}
	msg, err := d.store.DeleteMessage(messageID)
	if err != nil {
		return err
	}
	d.broadcastToScope(msg.Scope, "message_event", map[string]interface{}{
		"type":    MessageEventDeleted,
		"scope":   toWireScope(msg.Scope),
		"message": msg,
	})
	return nil
}

// HistoryFetch clamps limit into [1,200] (omitted -> default 50, explicit 0
// -> 1 per §8) and replies to the originator only.
func (d *Dispatcher) HistoryFetch(sess *hub.Session, scope store.Scope, before *time.Time, limit *int) {
	n := 50
	if limit != nil {
		n = *limit
	}
	if n < 1 {
		n = 1
	}
	if n > 200 {
		n = 200
	}
	messages := d.store.ListHistory(scope, n, before)
	d.hub.SendTo(sess, "history_snapshot", map[string]interface{}{
		"scope":    toWireScope(scope),
		"messages": messages,
	})
}

// TypingState is channel-scoped only; emits MEMBER_UPDATED to the channel
// room.
func (d *Dispatcher) TypingState(sess *hub.Session, scope store.Scope, active bool) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	if scope.Kind != store.ScopeChannel {
		return ErrBadScope
	}
	d.hub.Broadcast(hub.ChannelRoom(scope.Channel), "channel_event", map[string]interface{}{
		"type":      ChannelEventMemberUpdated,
		"channel":   scope.Channel,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"alias": sess.Alias, "typing": active},
		"timestamp": time.Now(),
	}, nil)
	return nil
}

// BotInvoke produces a bot_event into the target channel room plus a
// mirrored NOTICE-kind message.
func (d *Dispatcher) BotInvoke(sess *hub.Session, botID, command string, args []string, channel string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	bot, ok := d.store.GetBot(botID)
	if !ok {
		return ErrBotNotFound
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.checkMembershipForSend(name, sess.Alias); err != nil {
		return err
	}

	output := runBot(bot, command, args)

	d.hub.Broadcast(hub.ChannelRoom(name), "bot_event", map[string]interface{}{
		"botId":     bot.BotID,
		"channel":   name,
		"output":    output,
		"timestamp": time.Now(),
	}, nil)

	msg := d.store.InsertMessage(store.Message{
		Scope:          store.Scope{Kind: store.ScopeChannel, Channel: name},
		SenderAlias:    bot.BotID,
		SenderDeviceID: "",
		Kind:           store.KindNotice,
		Body:           &output,
	})
	d.hub.Broadcast(hub.ChannelRoom(name), "message_event", map[string]interface{}{
		"type":    MessageEventCreated,
		"scope":   toWireScope(msg.Scope),
		"message": msg,
	}, d.notIgnoring(msg.SenderAlias))
	return nil
}

func runBot(bot store.Bot, command string, args []string) string {
	switch bot.BotID {
	case "echo":
		return strings.Join(append([]string{command}, args...), " ")
	default:
		return bot.Name + ": ok"
	}
}

// ---- presence / snapshot ----

func (d *Dispatcher) broadcastPresence(sess *hub.Session) {
	channels := make([]string, 0, len(sess.Channels))
	for c := range sess.Channels {
		channels = append(channels, c)
	}
	sort.Strings(channels)

	for _, s := range d.hub.AllSessions() {
		if s.Alias == "" {
			continue
		}
		d.hub.SendTo(s, "presence_event", map[string]interface{}{
			"alias":     sess.Alias,
			"status":    sess.Status,
			"channels":  channels,
			"publicKey": sess.DevicePublicKey,
			"color":     sess.Color,
		})
	}
}

func (d *Dispatcher) sendNetworkSnapshot(sess *hub.Session) {
	channels := make([]map[string]interface{}, 0, len(sess.Channels))
	memberships := make([]store.Membership, 0, len(sess.Channels))
	for c := range sess.Channels {
		ch, _ := d.store.GetChannel(c)
		channels = append(channels, map[string]interface{}{
			"channel": ch.Name,
			"topic":   ch.Topic,
		})
		if m, ok := d.store.GetMembership(c, sess.Alias); ok {
			memberships = append(memberships, m)
		}
	}

	d.hub.SendTo(sess, "network_snapshot", map[string]interface{}{
		"channels":       channels,
		"dms":            []interface{}{},
		"memberships":    memberships,
		"unreadCounters": map[string]int{},
	})
}

// notIgnoring returns a Hub broadcast filter suppressing delivery to
// sessions that have senderAlias on their ignore list (§4.8 "Ignore
// semantics" — this filter only applies to message_event CREATED fan-out).
func (d *Dispatcher) notIgnoring(senderAlias string) func(*hub.Session) bool {
	return func(s *hub.Session) bool {
		return !s.Ignored[senderAlias]
	}
}

func (d *Dispatcher) broadcastToScope(scope store.Scope, event string, payload interface{}) {
	switch scope.Kind {
	case store.ScopeChannel, store.ScopeThread:
		d.hub.Broadcast(hub.ChannelRoom(scope.Channel), event, payload, nil)
	case store.ScopeDM:
		convoParticipants := d.dmParticipants(scope.ConvoID)
		for _, a := range convoParticipants {
			d.hub.Broadcast(hub.AliasRoom(a), event, payload, nil)
		}
	}
}

func (d *Dispatcher) dmParticipants(convoID string) []string {
	return d.store.DMParticipants(convoID)
}

func toWireScope(s store.Scope) scopeWire {
	return scopeWire{Kind: s.Kind, Channel: s.Channel, ConvoID: s.ConvoID, ThreadID: s.ThreadID}
}

func fromWireScope(s scopeWire) store.Scope {
	return store.Scope{Kind: s.Kind, Channel: s.Channel, ConvoID: s.ConvoID, ThreadID: s.ThreadID}
}

var _ interpreter.Runner = (*Dispatcher)(nil)
