package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// IntentExpirer marks stale pending intents expired.
type IntentExpirer interface {
	ExpirePendingIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper expires intents that stayed pending past their TTL, typically
// abandoned checkouts whose provider never called back. It uses the same
// compare-and-set as the webhook path, so a webhook that lands first wins
// and the sweep skips that intent quietly.
type Sweeper struct {
	store    IntentExpirer
	ttl      time.Duration
	interval time.Duration
	log      *zerolog.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(store IntentExpirer, ttl, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, ttl: ttl, interval: interval, log: logger}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("intent expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	n, err := s.store.ExpirePendingIntentsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("intent expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("expired", n).Msg("stale pending intents expired")
	}
}
