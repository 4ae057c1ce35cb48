package dispatch

import (
	"time"

	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/role"
	"github.com/ircultra/gateway/internal/store"
	"github.com/ircultra/gateway/internal/validate"
)

// requireRole loads actor's membership in channel and rejects if it doesn't
// meet min on the role lattice (§4.3).
func (d *Dispatcher) requireRole(channel, actorAlias string, min role.Role) error {
	m, ok := d.store.GetMembership(channel, actorAlias)
	if !ok {
		return ErrNotMember
	}
	if !role.HasAtLeast(role.ParseRole(m.Role), min) {
		return ErrInsufficientRole
	}
	return nil
}

// SetTopic sets a channel's topic (OP required) and emits TOPIC_CHANGED.
func (d *Dispatcher) SetTopic(sess *hub.Session, channel, topic string) (string, error) {
	if sess.Alias == "" {
		return "", ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return "", err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return "", err
	}
	text := validate.Text(topic)
	if err := d.store.SetChannelTopic(name, text); err != nil {
		return "", err
	}
	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      ChannelEventTopicChanged,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"topic": text},
		"timestamp": time.Now(),
	}, nil)
	return text, nil
}

// SetMode sets or clears one channel mode flag (OP required) and emits
// MODE_CHANGED with the full resulting mode set.
func (d *Dispatcher) SetMode(sess *hub.Session, channel, token string) ([]string, error) {
	if sess.Alias == "" {
		return nil, ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return nil, err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return nil, err
	}
	if len(token) < 2 || (token[0] != '+' && token[0] != '-') {
		return nil, ErrBadScope
	}
	on := token[0] == '+'
	mode := "+" + token[1:]

	modes, err := d.store.SetChannelMode(name, mode, on)
	if err != nil {
		return nil, err
	}
	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      ChannelEventModeChanged,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"modes": modes},
		"timestamp": time.Now(),
	}, nil)
	return modes, nil
}

// SetRole applies /op, /deop, /voice or /devoice (OP required), emitting
// MEMBER_UPDATED and a ROLE_SET audit/moderation event.
func (d *Dispatcher) SetRole(sess *hub.Session, channel, targetAlias, roleCmd string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	newRole, ok := role.FromModeCommand(roleCmd)
	if !ok {
		return ErrUnknownCommand
	}
	if _, ok := d.store.GetMembership(name, targetAlias); !ok {
		return ErrTargetNotMember
	}
	if err := d.store.SetMemberRole(name, targetAlias, newRole.String()); err != nil {
		return err
	}

	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      ChannelEventMemberUpdated,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"alias": targetAlias, "role": newRole.String()},
		"timestamp": time.Now(),
	}, nil)
	d.store.InsertAuditEvent(store.AuditEvent{
		Category: "ROLE_SET",
		Actor:    sess.Alias,
		Payload:  map[string]interface{}{"channel": name, "target": targetAlias, "role": newRole.String()},
	})
	return nil
}

func (d *Dispatcher) emitModerationEvent(actionType, actor, target, channel, reason string) {
	d.hub.Broadcast(hub.ChannelRoom(channel), "moderation_event", map[string]interface{}{
		"action":    actionType,
		"actor":     actor,
		"target":    target,
		"channel":   channel,
		"reason":    reason,
		"timestamp": time.Now(),
	}, nil)
	d.store.InsertModerationAction(store.ModerationAction{
		ActorAlias:  actor,
		TargetAlias: target,
		Channel:     channel,
		ActionType:  actionType,
		Reason:      reason,
	})
}

// Ban bans targetAlias from channel (OP required).
func (d *Dispatcher) Ban(sess *hub.Session, channel, targetAlias, reason string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	if err := d.store.SetMemberBan(name, targetAlias, true); err != nil {
		return err
	}
	d.emitModerationEvent(store.ActionBan, sess.Alias, targetAlias, name, validate.Text(reason))
	return nil
}

// Unban clears a ban (OP required).
func (d *Dispatcher) Unban(sess *hub.Session, channel, targetAlias string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	if err := d.store.SetMemberBan(name, targetAlias, false); err != nil {
		return err
	}
	d.emitModerationEvent(store.ActionUnban, sess.Alias, targetAlias, name, "")
	return nil
}

// Mute mutes targetAlias in channel for duration (OP required).
func (d *Dispatcher) Mute(sess *hub.Session, channel, targetAlias string, duration time.Duration) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	until := time.Now().Add(duration)
	if err := d.store.SetMemberMute(name, targetAlias, &until); err != nil {
		return err
	}
	d.emitModerationEvent(store.ActionMute, sess.Alias, targetAlias, name, "")
	return nil
}

// Unmute clears a mute (OP required).
func (d *Dispatcher) Unmute(sess *hub.Session, channel, targetAlias string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	if err := d.store.SetMemberMute(name, targetAlias, nil); err != nil {
		return err
	}
	d.emitModerationEvent(store.ActionUnmute, sess.Alias, targetAlias, name, "")
	return nil
}

// Kick removes targetAlias's membership and forces its live session to
// leave the channel room (OP required).
func (d *Dispatcher) Kick(sess *hub.Session, channel, targetAlias, reason string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}
	if _, ok := d.store.GetMembership(name, targetAlias); !ok {
		return ErrTargetNotMember
	}
	d.store.PartMembership(name, targetAlias)

	if targetSess, ok := d.hub.SessionByAlias(targetAlias); ok {
		d.hub.LeaveRoom(hub.ChannelRoom(name), targetSess)
		delete(targetSess.Channels, name)
	}

	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", map[string]interface{}{
		"type":      ChannelEventKicked,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"alias": targetAlias, "reason": reason},
		"timestamp": time.Now(),
	}, nil)
	d.emitModerationEvent(store.ActionKick, sess.Alias, targetAlias, name, validate.Text(reason))
	return nil
}

// Invite notifies targetAlias of an invitation to channel (OP required).
func (d *Dispatcher) Invite(sess *hub.Session, channel, targetAlias string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	name, err := validate.Channel(channel)
	if err != nil {
		return err
	}
	if err := d.requireRole(name, sess.Alias, role.Op); err != nil {
		return err
	}

	evt := map[string]interface{}{
		"type":      ChannelEventInvited,
		"channel":   name,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"alias": targetAlias},
		"timestamp": time.Now(),
	}
	d.hub.Broadcast(hub.ChannelRoom(name), "channel_event", evt, nil)
	d.hub.Broadcast(hub.AliasRoom(targetAlias), "channel_event", evt, nil)
	return nil
}

// Pin sets a channel message's pinned flag (OP required). Pin/unpin/clear
// are an explicit open question in the base design (§9 note 4: "acknowledged
// but have no persisted effect... re-implementers should decide"); this
// gateway resolves it by persisting the effect.
func (d *Dispatcher) Pin(sess *hub.Session, channel, messageID string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	if err := d.requireRole(channel, sess.Alias, role.Op); err != nil {
		return err
	}
	msg, err := d.store.SetPinned(messageID, true)
	if err != nil {
		return err
	}
	d.broadcastToScope(msg.Scope, "message_event", map[string]interface{}{
		"type": MessageEventCreated, "scope": toWireScope(msg.Scope), "message": msg,
	})
	return nil
}

// Unpin clears a channel message's pinned flag (OP required).
func (d *Dispatcher) Unpin(sess *hub.Session, channel, messageID string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	if err := d.requireRole(channel, sess.Alias, role.Op); err != nil {
		return err
	}
	msg, err := d.store.SetPinned(messageID, false)
	if err != nil {
		return err
	}
	d.broadcastToScope(msg.Scope, "message_event", map[string]interface{}{
		"type": MessageEventCreated, "scope": toWireScope(msg.Scope), "message": msg,
	})
	return nil
}

// Clear tombstones every live message in channel (OP required).
func (d *Dispatcher) Clear(sess *hub.Session, channel string) (int, error) {
	if sess.Alias == "" {
		return 0, ErrRequiresAlias
	}
	if err := d.requireRole(channel, sess.Alias, role.Op); err != nil {
		return 0, err
	}
	n := d.store.ClearChannelMessages(channel)
	d.hub.Broadcast(hub.ChannelRoom(channel), "channel_event", map[string]interface{}{
		"type":      ChannelEventMemberUpdated,
		"channel":   channel,
		"actor":     sess.Alias,
		"payload":   map[string]interface{}{"cleared": n},
		"timestamp": time.Now(),
	}, nil)
	return n, nil
}

// DirectMessagePlain implements /msg: a server-visible plaintext DM variant
// (§4.8), distinct from the fully end-to-end-encrypted send_dm_message
// event. The message carries Body rather than EncryptedPayload — an
// intentional, named exception to the usual DM scope/body invariant.
func (d *Dispatcher) DirectMessagePlain(sess *hub.Session, targetAlias, body string) error {
	if sess.Alias == "" {
		return ErrRequiresAlias
	}
	target, err := validate.Alias(targetAlias)
	if err != nil {
		return err
	}
	text, err := validate.Body(body)
	if err != nil {
		return err
	}
	convo := d.store.GetOrCreateDmConversation(sess.Alias, target)

	msg := d.store.InsertMessage(store.Message{
		Scope:          store.Scope{Kind: store.ScopeDM, ConvoID: convo.ConvoID},
		SenderAlias:    sess.Alias,
		SenderDeviceID: sess.DeviceID,
		Kind:           store.KindText,
		Body:           &text,
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
