// Package retention runs the periodic message-tombstone sweep described in
// §4.10: once immediately at startup, then on a fixed 6-hour interval.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/ircultra/gateway/internal/store"
)

const sweepInterval = 6 * time.Hour

// Sweeper periodically tombstones messages older than the retention window.
type Sweeper struct {
	store *store.Store
	days  int
}

// New returns a Sweeper bound to st, tombstoning messages older than days.
func New(st *store.Store, days int) *Sweeper {
	return &Sweeper{store: st, days: days}
}

// Run performs an immediate sweep, then repeats every 6 hours until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	n := s.store.RunRetentionCleanup(s.days)
	if n > 0 {
		log.Printf("retention: tombstoned %d messages older than %d days", n, s.days)
	}
}
