package store

import "errors"

// Sentinel errors returned by Store operations. Callers (Dispatcher,
// Interpreter) map these onto the server_error taxonomy in §7.
var (
	ErrAliasInUse       = errors.New("store: alias is in use by another live session")
	ErrUnauthorized     = errors.New("store: missing or mismatched device/reclaim nonce")
	ErrChannelNotFound  = errors.New("store: channel not found")
	ErrMembershipNotFound = errors.New("store: membership not found")
	ErrMessageNotFound  = errors.New("store: message not found")
	ErrNotAuthor        = errors.New("store: not the message author")
)
