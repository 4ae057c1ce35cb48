package dispatch

import "errors"

// Sentinel errors produced by Dispatcher primitives that don't already have
// a Store-level equivalent. errCode in dispatch.go maps these onto the
// server_error taxonomy from §7.
var (
	ErrRequiresAlias    = errors.New("dispatch: alias required before this operation")
	ErrNotMember        = errors.New("dispatch: not a member of this channel")
	ErrMuted            = errors.New("dispatch: muted in this channel")
	ErrBanned           = errors.New("dispatch: banned from this channel")
	ErrInsufficientRole = errors.New("dispatch: insufficient role for this action")
	ErrRateLimited      = errors.New("dispatch: rate limit exceeded")
	ErrBadScope         = errors.New("dispatch: operation not valid for this scope")
	ErrBotNotFound      = errors.New("dispatch: bot not found")
	ErrUnknownCommand   = errors.New("dispatch: unknown command")
	ErrTargetNotMember  = errors.New("dispatch: target is not a member of this channel")
)
