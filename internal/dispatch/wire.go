// Package dispatch implements the Dispatcher (§4.7): it decodes every
// inbound event, authorizes it, mutates the Store, and emits the resulting
// outbound events through the Hub. The wire shapes below mirror §6 exactly.
package dispatch

import "time"

// Inbound payload shapes (client -> gateway).

type helloDevicePayload struct {
	DeviceID        string `json:"deviceId"`
	DevicePublicKey string `json:"devicePublicKey"`
}

type claimAliasPayload struct {
	Alias        string `json:"alias"`
	ReclaimNonce string `json:"reclaimNonce"`
}

type commandExecPayload struct {
	Raw            string `json:"raw"`
	ContextChannel string `json:"contextChannel"`
}

type joinChannelPayload struct {
	Channel string `json:"channel"`
}

type partChannelPayload struct {
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}

type sendChannelMessagePayload struct {
	Channel  string `json:"channel"`
	Body     string `json:"body"`
	Kind     string `json:"kind"`
	ReplyTo  string `json:"replyTo"`
	ThreadID string `json:"threadId"`
}

type encryptedPayloadWire struct {
	Algorithm             string `json:"algorithm"`
	Nonce                 string `json:"nonce"`
	Ciphertext            string `json:"ciphertext"`
	SenderPublicKey       string `json:"senderPublicKey"`
	RecipientEncryptedKey string `json:"recipientEncryptedKey"`
	SenderEncryptedKey    string `json:"senderEncryptedKey"`
}

type sendDmMessagePayload struct {
	TargetAlias      string               `json:"targetAlias"`
	EncryptedPayload encryptedPayloadWire `json:"encryptedPayload"`
}

type reactTogglePayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type messageEditPayload struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

type messageDeletePayload struct {
	MessageID string `json:"messageId"`
}

type scopeWire struct {
	Kind     string `json:"kind"`
	Channel  string `json:"channel,omitempty"`
	ConvoID  string `json:"convoId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

type historyFetchPayload struct {
	Scope  scopeWire  `json:"scope"`
	Before *time.Time `json:"before"`
	Limit  *int       `json:"limit"`
}

type typingStatePayload struct {
	Scope  scopeWire `json:"scope"`
	Active bool      `json:"active"`
}

type botInvokePayload struct {
	BotID   string   `json:"botId"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Channel string   `json:"channel"`
}

// Outbound event type tags (§6).

const (
	ChannelEventCreated       = "CREATED"
	ChannelEventJoined        = "JOINED"
	ChannelEventParted        = "PARTED"
	ChannelEventTopicChanged  = "TOPIC_CHANGED"
	ChannelEventModeChanged   = "MODE_CHANGED"
	ChannelEventInvited       = "INVITED"
	ChannelEventKicked        = "KICKED"
	ChannelEventMemberUpdated = "MEMBER_UPDATED"

	MessageEventCreated         = "CREATED"
	MessageEventEdited          = "EDITED"
	MessageEventDeleted         = "DELETED"
	MessageEventReactionAdded   = "REACTION_ADDED"
	MessageEventReactionRemoved = "REACTION_REMOVED"
)

// Error codes (§7).

const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeAliasInUse      = "ALIAS_IN_USE"
	CodeAliasInvalid    = "ALIAS_INVALID"
	CodeChannelNotFound = "CHANNEL_NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeRateLimit       = "RATE_LIMIT"
	CodeInternal        = "INTERNAL"
)
