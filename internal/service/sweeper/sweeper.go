// Package sweeper periodically purges refresh tokens nobody can use anymore.
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/logger"
)

const (
	defaultInterval  = time.Hour
	defaultRetention = 7 * 24 * time.Hour
)

type tokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// How often to sweep, hourly if not set
	Interval time.Duration

	// How long expired and revoked tokens are kept. Reuse detection needs revoked tokens for a while.
	Retention time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

type Sweeper struct {
	interval  time.Duration
	retention time.Duration
	tokens    tokenPurger
	clock     clock.Clock
	logger    logger.Logger
}

func New(cfg Config, tokens tokenPurger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Sweeper{
		interval:  cfg.Interval,
		retention: cfg.Retention,
		tokens:    tokens,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Sweep deletes tokens expired or revoked before retention window
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.clock.Now().Add(-s.retention))
}

// Run sweeps on every tick until ctx is done. Returned channel is closed when the loop exits.
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval, "retention", s.retention)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				deleted, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Error("Failed to delete expired refresh tokens", "error", err)
					continue
				}
				if deleted > 0 {
					s.logger.Info("Expired refresh tokens deleted", "count", deleted)
				}
			}
		}
	}()

	return idleStopped
}
