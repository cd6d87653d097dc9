package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when NewSweeper is given a non-positive interval.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically deletes expired artifacts and idempotency keys. Reads
// already treat expired rows as absent, so sweeping only reclaims space.
type Sweeper struct {
	artifacts ArtifactStore
	keys      IdempotencyStore
	interval  time.Duration
	now       func() time.Time
	observe   func(artifacts, keys int64)
}

// NewSweeper creates a Sweeper over the given stores. keys may be nil.
func NewSweeper(artifacts ArtifactStore, keys IdempotencyStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{artifacts: artifacts, keys: keys, interval: interval, now: time.Now}
}

// OnSweep registers fn to receive the counts removed by every sweep.
func (s *Sweeper) OnSweep(fn func(artifacts, keys int64)) {
	s.observe = fn
}

// Run starts the sweep loop. It blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Sweeper.Run: starting sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper.Run: stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of artifacts and keys removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (artifacts, keys int64) {
	now := s.now()
	n, err := s.artifacts.DeleteExpiredArtifacts(ctx, now)
	if err != nil {
		slog.Error("Sweeper.SweepOnce: artifact sweep failed", "error", err)
	} else {
		artifacts = n
	}

	if s.keys != nil {
		n, err := s.keys.DeleteExpiredKeys(ctx, now)
		if err != nil {
			slog.Error("Sweeper.SweepOnce: key sweep failed", "error", err)
		} else {
			keys = n
		}
	}

	if artifacts > 0 || keys > 0 {
		slog.Debug("Sweeper.SweepOnce: removed expired entries", "artifacts", artifacts, "keys", keys)
	}
	if s.observe != nil {
		s.observe(artifacts, keys)
	}
	return artifacts, keys
}
