package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Publisher pushes snapshots for the given companies
type Publisher interface {
	Publish(ctx context.Context, companies []string) error
}

// Ticker periodically republishes every company snapshot so freshly
// connected dashboards do not wait for the next PBX event
type Ticker struct {
	publisher Publisher
	companies func() []string
	interval  time.Duration
	logger    zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(publisher Publisher, companies func() []string, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		publisher: publisher,
		companies: companies,
		interval:  interval,
		logger:    logger.With().Str("component", "ticker").Logger(),
	}
}

// Start republishes on every interval until ctx is cancelled. A non-positive
// interval disables the ticker.
func (t *Ticker) Start(ctx context.Context) {
	if t.interval <= 0 {
		t.logger.Info().Msg("snapshot refresh disabled")
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("ticker stopped")
			return

		case <-ticker.C:
			companies := t.companies()
			if len(companies) == 0 {
				continue
			}
			if err := t.publisher.Publish(ctx, companies); err != nil && ctx.Err() == nil {
				t.logger.Error().Err(err).Msg("failed to refresh snapshots")
				continue
			}
			t.logger.Debug().Int("companies", len(companies)).Msg("snapshots refreshed")
		}
	}
}
