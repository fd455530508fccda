package janitor

import (
	"context"
	"log/slog"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

const (
	defaultInterval = 10 * time.Minute
	defaultMaxAge   = 30 * time.Minute
)

// Cleaner tears down a single stream; satisfied by the coordinator.
type Cleaner interface {
	Cleanup(id domain.StreamID)
}

// Janitor periodically sweeps streams past their age limit. The registry's
// ListOlderThan already exempts downloading and converting streams, so a
// slow but healthy stream survives any number of sweeps.
type Janitor struct {
	registry ports.StreamRegistry
	cleaner  Cleaner
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

func New(registry ports.StreamRegistry, cleaner Cleaner, logger *slog.Logger, interval, maxAge time.Duration) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Janitor{
		registry: registry,
		cleaner:  cleaner,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run sweeps on a fixed cadence until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes every expired stream once.
func (j *Janitor) Sweep() {
	metrics.JanitorSweepsTotal.Inc()

	expired := j.registry.ListOlderThan(j.maxAge)
	for _, stream := range expired {
		j.logger.Info("sweeping expired stream",
			slog.String("streamId", string(stream.ID)),
			slog.String("status", string(stream.Status)),
			slog.Time("createdAt", stream.CreatedAt),
		)
		j.cleaner.Cleanup(stream.ID)
		metrics.JanitorRemovalsTotal.Inc()
	}
}
