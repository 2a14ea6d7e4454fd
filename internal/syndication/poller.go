package syndication

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// IntervalSource reports the polling interval in minutes.
type IntervalSource interface {
	GetSyndicationInterval(ctx context.Context) (int, error)
}

// Poller runs continuous polling.
type Poller struct {
	fetcher  *Fetcher
	interval IntervalSource
	unit     time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a background poller. The interval is re-read every cycle.
func NewPoller(fetcher *Fetcher, interval IntervalSource, logger zerolog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		unit:     time.Minute,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls until ctx is cancelled. It always returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	for {
		mins, _ := p.interval.GetSyndicationInterval(ctx)
		p.logger.Info().Int("interval_minutes", mins).Msg("fetching all feeds")

		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		results, err := p.fetcher.FetchAll(fetchCtx)
		cancel()

		if err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("poll failed")
		} else {
			total := 0
			for _, c := range results {
				total += c
			}
			p.logger.Info().Int("new_posts", total).Int("feeds", len(results)).Msg("poll complete")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(mins) * p.unit):
		}
	}
}
