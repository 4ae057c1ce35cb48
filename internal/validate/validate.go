// Package validate normalizes and bound-checks the untyped strings the
// gateway receives from clients: aliases, channel names, message bodies and
// generic free text. Alias, Channel and Body return the normalized value
// alongside a sentinel error so callers can map straight onto the
// server_error taxonomy in §7 of the specification; Text never fails.
package validate

import (
	"errors"
	"regexp"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Sentinel validation errors. Dispatcher and Interpreter compare against
// these and translate to BAD_REQUEST / ALIAS_INVALID as appropriate.
var (
	ErrEmpty       = errors.New("validate: empty")
	ErrTooLong     = errors.New("validate: too long")
	ErrControlChar = errors.New("validate: control characters not allowed")
	ErrBadChannel  = errors.New("validate: malformed channel name")
)

const (
	maxAliasRunes = 24
	maxBodyRunes  = 2000
)

var channelName = regexp.MustCompile(`^#[A-Za-z0-9_\-]{1,48}$`)

var foldCaser = cases.Fold()

// Alias trims, bounds-checks and normalizes a proposed alias. Aliases are
// case-sensitive after normalization — only Unicode width folding is
// applied so full-width client input doesn't silently create lookalike
// duplicates.
func Alias(raw string) (string, error) {
	s := trim(raw)
	if s == "" {
		return "", ErrEmpty
	}
	s = width.Narrow.String(s)
	if runeLen(s) > maxAliasRunes {
		return "", ErrTooLong
	}
	if hasDisallowedControl(s, false) {
		return "", ErrControlChar
	}
	return s, nil
}

// Channel trims, validates against the channel-name grammar and lowercases
// the result (Unicode case folding, not byte-wise ToLower, so the rest of
// the gateway never has to reason about casing variants of the same name).
func Channel(raw string) (string, error) {
	s := trim(raw)
	if s == "" {
		return "", ErrEmpty
	}
	folded := foldCaser.String(s)
	if !channelName.MatchString(folded) {
		return "", ErrBadChannel
	}
	return folded, nil
}

// Body trims, bounds-checks and rejects control characters (TAB excepted)
// in a channel/thread message body.
func Body(raw string) (string, error) {
	s := trim(raw)
	if s == "" {
		return "", ErrEmpty
	}
	if runeLen(s) > maxBodyRunes {
		return "", ErrTooLong
	}
	if hasDisallowedControl(s, true) {
		return "", ErrControlChar
	}
	return s, nil
}

// Text trims only; it never fails. Used for free-form fields the gateway
// stores opaquely (topic text, moderation reasons, bot args).
func Text(raw string) string {
	return trim(raw)
}

func trim(s string) string {
	return string(trimSpaceRunes([]rune(s)))
}

func trimSpaceRunes(rs []rune) []rune {
	start := 0
	for start < len(rs) && unicode.IsSpace(rs[start]) {
		start++
	}
	end := len(rs)
	for end > start && unicode.IsSpace(rs[end-1]) {
		end--
	}
	return rs[start:end]
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// hasDisallowedControl rejects C0 controls and DEL. allowTab permits the
// single TAB character (0x09), per message-body rules in §4.1.
func hasDisallowedControl(s string, allowTab bool) bool {
	for _, r := range s {
		if r == 0x7f {
			return true
		}
		if r < 0x20 {
			if allowTab && r == '\t' {
				continue
			}
			return true
		}
	}
	return false
}
