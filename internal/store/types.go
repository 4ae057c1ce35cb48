// Package store holds the gateway's durable domain state: devices, aliases,
// sessions, channels, memberships, DM conversations, messages, moderation
// actions, bots and audit events, per §3. The Store is the single globally
// shared mutable structure (§5); all mutation happens under one mutex and
// is write-behind flushed to a single JSON document.
package store

import "time"

// Device is created on first hello and never destroyed. PublicKey is opaque
// to the gateway.
type Device struct {
	DeviceID   string    `json:"deviceId"`
	PublicKey  string    `json:"publicKey"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Alias is globally unique after normalization. ActiveSessionID is empty
// when no session currently holds it.
type Alias struct {
	Alias           string    `json:"alias"`
	CurrentDeviceID string    `json:"currentDeviceId"`
	ActiveSessionID string    `json:"activeSessionId,omitempty"`
	LastIP          string    `json:"lastIp"`
	ClaimedAt       time.Time `json:"claimedAt"`
	ReclaimNonce    string    `json:"reclaimNonce"`
}

// Session is one-to-one with a live connection; the row persists with
// DisconnectedAt set after close.
type Session struct {
	SessionID      string     `json:"sessionId"`
	DeviceID       string     `json:"deviceId"`
	Alias          string     `json:"alias,omitempty"`
	IP             string     `json:"ip"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
	ResumeToken    string     `json:"resumeToken"`
}

// Channel mode flags, drawn from the fixed set in §3.
const (
	ModeInviteOnly = "+i"
	ModeModerated  = "+m"
	ModeSecret     = "+n"
	ModeTopicLock  = "+t"
	ModeKeyed      = "+k"
	ModeLimit      = "+l"
)

// Channel is a named broadcast room.
type Channel struct {
	ChannelID string          `json:"channelId"`
	Name      string          `json:"name"`
	Topic     string          `json:"topic"`
	Modes     map[string]bool `json:"modes"`
	OwnerAlias string         `json:"ownerAlias"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Membership roles, strict total order OWNER(5) > ADMIN(4) > OP(3) >
// VOICE(2) > MEMBER(1); see internal/role for the lattice implementation.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleOp     = "OP"
	RoleVoice  = "VOICE"
	RoleMember = "MEMBER"
)

// Membership is keyed by (channel, alias) in the Store's internal index;
// the row also carries its own keys for serialization.
type Membership struct {
	Channel    string     `json:"channel"`
	Alias      string     `json:"alias"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joinedAt"`
	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
	IsBanned   bool       `json:"isBanned"`
}

// DMConversation identity is deterministic from the sorted alias pair:
// AliasA < AliasB always holds.
type DMConversation struct {
	ConvoID   string    `json:"convoId"`
	AliasA    string    `json:"aliasA"`
	AliasB    string    `json:"aliasB"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message kinds.
const (
	KindText   = "TEXT"
	KindAction = "ACTION"
	KindNotice = "NOTICE"
)

// Scope kinds.
const (
	ScopeChannel = "channel"
	ScopeDM      = "dm"
	ScopeThread  = "thread"
)

// Scope tags where a message lives. Exactly one of Channel/ConvoID/ThreadID
// is populated depending on Kind.
type Scope struct {
	Kind     string `json:"kind"`
	Channel  string `json:"channel,omitempty"`
	ConvoID  string `json:"convoId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

// Key returns a stable string key for indexing history by scope.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeChannel:
		return "channel:" + s.Channel
	case ScopeDM:
		return "dm:" + s.ConvoID
	case ScopeThread:
		return "thread:" + s.ThreadID
	default:
		return "unknown"
	}
}

// EncryptedPayload is opaque to the gateway; every field is passed through
// verbatim and never inspected (§9 "DM encryption").
type EncryptedPayload struct {
	Algorithm             string `json:"algorithm"`
	Nonce                 string `json:"nonce"`
	Ciphertext            string `json:"ciphertext"`
	SenderPublicKey       string `json:"senderPublicKey"`
	RecipientEncryptedKey string `json:"recipientEncryptedKey"`
	SenderEncryptedKey    string `json:"senderEncryptedKey"`
}

// Reaction groups the aliases that applied a given emoji to a message.
// Within a message, (emoji, alias) pairs never repeat (invariant 4).
type Reaction struct {
	Emoji   string   `json:"emoji"`
	Aliases []string `json:"aliases"`
}

// Message is the unit of the ordered, scope-keyed history. Exactly one of
// Body / EncryptedPayload is present: DM-scope messages carry
// EncryptedPayload, channel and thread scopes carry Body. DeletedAt is a
// tombstone — the row remains for audit and replay suppression.
type Message struct {
	MessageID        string            `json:"messageId"`
	Scope            Scope             `json:"scope"`
	SenderAlias      string            `json:"senderAlias"`
	SenderDeviceID   string            `json:"senderDeviceId"`
	Kind             string            `json:"kind"`
	Body             *string           `json:"body,omitempty"`
	EncryptedPayload *EncryptedPayload `json:"encryptedPayload,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	ReplyTo          string            `json:"replyTo,omitempty"`
	ThreadID         string            `json:"threadId,omitempty"`
	Reactions        []Reaction        `json:"reactions"`
	Pinned           bool              `json:"pinned,omitempty"`
	DeletedAt        *time.Time        `json:"deletedAt,omitempty"`
}

// Moderation action types.
const (
	ActionKick    = "KICK"
	ActionBan     = "BAN"
	ActionUnban   = "UNBAN"
	ActionMute    = "MUTE"
	ActionUnmute  = "UNMUTE"
	ActionRoleSet = "ROLE_SET"
)

// ModerationAction records a single moderation effect for audit.
type ModerationAction struct {
	ActionID    string    `json:"actionId"`
	ActorAlias  string    `json:"actorAlias"`
	TargetAlias string    `json:"targetAlias"`
	Channel     string    `json:"channel"`
	ActionType  string    `json:"actionType"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Bot is a registered bot application. The echo bot is pre-seeded if none
// exist at bootstrap.
type Bot struct {
	BotID           string    `json:"botId"`
	Name            string    `json:"name"`
	Version         string    `json:"version"`
	Permissions     []string  `json:"permissions"`
	EnabledChannels []string  `json:"enabledChannels"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AuditEvent is an append-only audit log row.
type AuditEvent struct {
	EventID   string      `json:"eventId"`
	Category  string      `json:"category"`
	Actor     string      `json:"actor"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"createdAt"`
}
