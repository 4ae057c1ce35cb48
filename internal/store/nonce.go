package store

import (
	"crypto/rand"
	"encoding/base64"
)

// newNonce returns a fresh reclaim nonce. Unlike entity ids (which must be
// sortable and globally unique via internal/id's snowflake generator), a
// reclaim nonce is a capability secret: it must be unpredictable, so it is
// drawn straight from a CSPRNG rather than the id generator.
func newNonce() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		panic("store: failed to read random bytes for nonce: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
