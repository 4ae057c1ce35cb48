// Package id generates the identifiers this gateway hands out: device,
// session, channel, DM-conversation, message, moderation-action and
// audit-event ids. Bot ids come from the seed data instead. Generation
// is centralized here so the rest of the gateway never touches the
// underlying generator directly.
package id

import (
	"fmt"
	"sync"

	"github.com/tinode/snowflake"
)

var (
	mu  sync.Mutex
	gen *snowflake.Node
)

// Init must be called once at bootstrap with a small worker/node number
// (any one fixed value in a single-process deployment; distinct values would
// be needed to run more than one gateway process against the same id space,
// which this gateway does not do — clustering is out of scope).
func Init(node int64) error {
	mu.Lock()
	defer mu.Unlock()
	n, err := snowflake.NewNode(node)
	if err != nil {
		return fmt.Errorf("id: init: %w", err)
	}
	gen = n
	return nil
}

// Next returns the next globally-unique, time-sortable id as a compact
// string. Panics if Init was never called — a programmer error, not a
// runtime condition callers should handle.
func Next() string {
	mu.Lock()
	defer mu.Unlock()
	if gen == nil {
		panic("id: Next called before Init")
	}
	return gen.Generate().String()
}
