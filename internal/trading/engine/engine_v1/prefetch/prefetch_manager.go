// Package prefetch warms the market-data cache with REST quotes before the
// stream delivers its first tick.
package prefetch

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

// QuoteProvider fetches the latest quote of a symbol over REST.
type QuoteProvider interface {
	GetLatestQuote(ctx context.Context, symbol string) (types.MarketQuote, error)
}

// QuoteCache receives prefetched quotes.
type QuoteCache interface {
	SeedQuote(q types.MarketQuote)
}

// Result summarizes one prefetch run.
type Result struct {
	Seeded  []string
	Skipped []string
	Elapsed time.Duration
}

// PrefetchManager seeds a QuoteCache from a QuoteProvider.
type PrefetchManager struct {
	provider QuoteProvider
	cache    QuoteCache
	timeout  time.Duration
	logger   *logger.Logger
}

// NewPrefetchManager creates a manager. timeout bounds each quote request;
// zero leaves requests bounded only by the caller's context.
func NewPrefetchManager(provider QuoteProvider, cache QuoteCache, timeout time.Duration, log *logger.Logger) *PrefetchManager {
	return &PrefetchManager{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
		logger:   log.Named("prefetch"),
	}
}

// ExecutePrefetch fetches a quote per symbol. A failed or empty quote skips the
// symbol; the returned error joins every failure. Cancelling ctx stops the run.
func (p *PrefetchManager) ExecutePrefetch(ctx context.Context, symbols []string) (Result, error) {
	start := time.Now()
	result := Result{Seeded: nil, Skipped: nil, Elapsed: 0}

	var errs []error

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		quote, err := p.fetch(ctx, symbol)
		if err != nil {
			p.logger.Warn("quote prefetch failed", zap.String("symbol", symbol), zap.Error(err))
			result.Skipped = append(result.Skipped, symbol)
			errs = append(errs, errors.Wrapf(errors.ErrCodeBrokerRequestFailed, err, "prefetch %s", symbol))

			continue
		}

		if quote.AskPrice <= 0 && quote.BidPrice <= 0 {
			result.Skipped = append(result.Skipped, symbol)

			continue
		}

		p.cache.SeedQuote(quote)
		result.Seeded = append(result.Seeded, symbol)
	}

	result.Elapsed = time.Since(start)

	p.logger.Info("quote prefetch finished",
		zap.Strings("seeded", result.Seeded),
		zap.Strings("skipped", result.Skipped),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, stderrors.Join(errs...)
}

func (p *PrefetchManager) fetch(ctx context.Context, symbol string) (types.MarketQuote, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.provider.GetLatestQuote(ctx, symbol)
}
