package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/models"
	"nifty-options-trader/internal/performance"
	"nifty-options-trader/internal/resilience"
	"nifty-options-trader/pkg/utils"
)

// Source supplies quotes and historical candles. Both broker backends
// satisfy it.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error)
}

// Service fetches minute data and serves the aggregated frames the
// strategy works on. All outbound calls go through one shared rate
// limiter so concurrent monitors cannot exceed the broker quota, and
// through a circuit breaker so a broker outage backs off instead of
// retrying every tick.
type Service struct {
	source  Source
	limiter *performance.RateLimiter
	breaker *resilience.Breaker
	retry   utils.RetryConfig
	logger  zerolog.Logger

	historyDays int
}

// NewService creates a market data service.
func NewService(source Source, rateInterval time.Duration, historyDays int, logger zerolog.Logger) *Service {
	if historyDays <= 0 {
		historyDays = 5
	}
	return &Service{
		source:      source,
		limiter:     performance.NewIntervalLimiter(rateInterval),
		breaker:     resilience.NewBreaker("broker", resilience.DefaultConfig()),
		retry:       utils.DefaultRetryConfig(),
		logger:      logger.With().Str("component", "marketdata").Logger(),
		historyDays: historyDays,
	}
}

// Quote fetches a rate-limited quote for the symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoWithResult(s.breaker, func() (*models.Quote, error) {
		return utils.RetryWithResult(ctx, s.retry, func() (*models.Quote, error) {
			return s.source.GetQuote(ctx, symbol)
		})
	})
}

// Frames fetches minute history for the symbol and aggregates it into
// completed hourly and fifteen-minute series as of now.
func (s *Service) Frames(ctx context.Context, symbol string, now time.Time) (hourly, fifteen []models.Candle, err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	from := now.AddDate(0, 0, -s.historyDays)
	minutes, err := resilience.DoWithResult(s.breaker, func() ([]models.Candle, error) {
		return utils.RetryWithResult(ctx, s.retry, func() ([]models.Candle, error) {
			return s.source.GetHistoricalData(ctx, symbol, "minute", from, now)
		})
	})
	if err != nil {
		return nil, nil, err
	}

	hourly = Aggregate(minutes, time.Hour, now)
	fifteen = Aggregate(minutes, 15*time.Minute, now)

	s.logger.Debug().
		Str("symbol", symbol).
		Int("minutes", len(minutes)).
		Int("hourly", len(hourly)).
		Int("fifteen", len(fifteen)).
		Msg("Aggregated frames")

	return hourly, fifteen, nil
}
