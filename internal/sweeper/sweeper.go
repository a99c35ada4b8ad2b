// Package sweeper implements the background inactivity sweep described in
// spec.md §4.7: a periodic task that demotes idle ACTIVE users to
// INACTIVE.
package sweeper

import (
	"context"
	"time"

	"github.com/pion/logging"

	"yappuccino/internal/directory"
	"yappuccino/internal/presence"
	"yappuccino/internal/router"
)

const (
	// Tick is how often the sweeper wakes.
	Tick = 5 * time.Second
	// Threshold is how long a user may sit idle in ACTIVE before being
	// demoted to INACTIVE.
	Threshold = 25 * time.Second
)

// Sweeper periodically demotes idle ACTIVE users. BUSY, INACTIVE and
// DISCONNECTED users are never touched — SetState(..., force=true) is
// only ever called here for candidates already filtered to ACTIVE.
type Sweeper struct {
	dir    *directory.Directory
	router *router.Router
	log    logging.LeveledLogger
}

// New builds a Sweeper over dir, broadcasting demotions through r.
func New(dir *directory.Directory, r *router.Router, log logging.LeveledLogger) *Sweeper {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("sweeper")
	}
	return &Sweeper{dir: dir, router: r, log: log}
}

// Run blocks, ticking every Tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Sweeper) sweep(now time.Time) {
	candidates := s.dir.IdleSince(now.Add(-Threshold))
	for _, rec := range candidates {
		if _, changed := s.dir.SetState(rec.Name, presence.Inactive, true); changed {
			s.log.Infof("%s idle for %s, demoting to INACTIVE", rec.Name, Threshold)
			s.router.BroadcastPresence(s.dir.SnapshotConnected(), rec.Name, presence.Inactive)
		}
	}
}
