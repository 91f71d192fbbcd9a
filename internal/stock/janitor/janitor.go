// Package janitor expires reservation holds whose deadline has passed.
// It lives outside the engine so the engine never reads the clock to evict.
package janitor

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 100
)

// Store lists holds due for expiry.
type Store interface {
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
}

// Expirer releases one hold.
type Expirer interface {
	ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Janitor struct {
	store    Store
	expirer  Expirer
	interval time.Duration
	batch    int
	skip     func(error) bool
	logger   logger.ZapLogger
	now      func() time.Time
}

// New builds a janitor. skip reports errors that mean the hold was already
// settled and should not be logged as failures; it may be nil.
func New(store Store, expirer Expirer, cfg Config, skip func(error) bool, log logger.ZapLogger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if skip == nil {
		skip = func(error) bool { return false }
	}
	return &Janitor{
		store:    store,
		expirer:  expirer,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		skip:     skip,
		logger:   log,
		now:      time.Now,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting reservation janitor", zap.Duration("interval", j.interval))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Stopping reservation janitor")
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires due holds in batches until none remain and returns how many
// it expired.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		holds, err := j.store.ListExpiredReservations(ctx, j.now(), j.batch)
		if err != nil {
			return expired, err
		}

		progressed := false
		for _, h := range holds {
			if _, err := j.expirer.ExpireReservation(ctx, h.ID); err != nil {
				if ctx.Err() != nil {
					return expired, ctx.Err()
				}
				if !j.skip(err) {
					j.logger.Warn("failed to expire reservation",
						zap.String("reservation_id", h.ID),
						zap.String("item_id", h.ItemID),
						zap.Error(err),
					)
				}
				continue
			}
			expired++
			progressed = true
		}

		// Stop on a short batch, or when nothing in the batch could be expired.
		if len(holds) < j.batch || !progressed {
			break
		}
	}

	if expired > 0 {
		j.logger.Info("expired reservations", zap.Int("count", expired))
	}
	return expired, nil
}
