package prefetch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type quoteCache struct {
	mu     sync.Mutex
	quotes map[string]types.MarketQuote
}

func (c *quoteCache) SeedQuote(q types.MarketQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.quotes[q.Symbol] = q
}

type PrefetchManagerTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockTradingProvider
	cache    *quoteCache
	manager  *PrefetchManager
}

func TestPrefetchManagerTestSuite(t *testing.T) {
	suite.Run(t, new(PrefetchManagerTestSuite))
}

func (s *PrefetchManagerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockTradingProvider(s.ctrl)
	s.cache = &quoteCache{mu: sync.Mutex{}, quotes: map[string]types.MarketQuote{}}
	s.manager = NewPrefetchManager(s.provider, s.cache, time.Second, logger.NewNop())
}

func (s *PrefetchManagerTestSuite) TestSeedsEveryQuote() {
	now := time.Now()
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "AAPL").Return(types.NewMarketQuote("AAPL", 189.9, 100, 190.1, 100, now), nil)
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "MSFT").Return(types.NewMarketQuote("MSFT", 409.5, 10, 410.5, 10, now), nil)

	result, err := s.manager.ExecutePrefetch(context.Background(), []string{"AAPL", "MSFT"})
	s.Require().NoError(err)
	s.Equal([]string{"AAPL", "MSFT"}, result.Seeded)
	s.Empty(result.Skipped)
	s.Len(s.cache.quotes, 2)
	s.Equal(190.1, s.cache.quotes["AAPL"].AskPrice)
}

func (s *PrefetchManagerTestSuite) TestFailuresAreSkippedAndJoined() {
	now := time.Now()
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "AAPL").Return(types.MarketQuote{}, fmt.Errorf("status 500"))
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "MSFT").Return(types.NewMarketQuote("MSFT", 409.5, 10, 410.5, 10, now), nil)
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "TSLA").Return(types.MarketQuote{Symbol: "TSLA"}, nil)

	result, err := s.manager.ExecutePrefetch(context.Background(), []string{"AAPL", "MSFT", "TSLA"})
	s.Require().Error(err)
	s.Contains(err.Error(), "prefetch AAPL")
	s.Equal([]string{"MSFT"}, result.Seeded)
	s.Equal([]string{"AAPL", "TSLA"}, result.Skipped)
	s.Len(s.cache.quotes, 1)
}

func (s *PrefetchManagerTestSuite) TestCancelledContextStops() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.manager.ExecutePrefetch(ctx, []string{"AAPL"})
	s.ErrorIs(err, context.Canceled)
	s.Empty(result.Seeded)
	s.Empty(s.cache.quotes)
}

func (s *PrefetchManagerTestSuite) TestRequestsAreBoundedByTimeout() {
	s.provider.EXPECT().GetLatestQuote(gomock.Any(), "AAPL").
		DoAndReturn(func(ctx context.Context, _ string) (types.MarketQuote, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(time.Second), deadline, 500*time.Millisecond)

			return types.MarketQuote{}, ctx.Err()
		})

	_, err := s.manager.ExecutePrefetch(context.Background(), []string{"AAPL"})
	s.NoError(err)
}
