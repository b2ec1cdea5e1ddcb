package tradingprovider

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-alpaca/e2e/alpaca/mockserver"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type AlpacaProviderTestSuite struct {
	suite.Suite
	server   *mockserver.MockAlpacaServer
	provider *AlpacaProvider
}

func TestAlpacaProviderSuite(t *testing.T) {
	suite.Run(t, new(AlpacaProviderTestSuite))
}

func (suite *AlpacaProviderTestSuite) SetupTest() {
	suite.server = mockserver.NewMockAlpacaServer(mockserver.ServerConfig{
		APIKey:      "key",
		APISecret:   "secret",
		BuyingPower: 25000.5,
		Quotes:      map[string][2]float64{"AAPL": {189.9, 190.1}},
	})
	suite.Require().NoError(suite.server.Start(":0"))

	provider, err := NewAlpacaProviderWithLogger(AlpacaProviderConfig{
		APIKey:     "key",
		APISecret:  "secret",
		TradingURL: suite.server.BaseURL(),
		DataURL:    suite.server.BaseURL(),
		Timeout:    2 * time.Second,
	}, true, logger.NewNop())
	suite.Require().NoError(err)

	suite.provider = provider
}

func (suite *AlpacaProviderTestSuite) TearDownTest() {
	_ = suite.server.Stop()
}

func (suite *AlpacaProviderTestSuite) TestGetAccount() {
	account, err := suite.provider.GetAccount(context.Background())
	suite.Require().NoError(err)
	suite.Equal(25000.5, account.BuyingPower)
	suite.Equal("USD", account.Currency)
	suite.Equal("ACTIVE", account.Status)
}

func (suite *AlpacaProviderTestSuite) TestGetLatestQuote() {
	quote, err := suite.provider.GetLatestQuote(context.Background(), "AAPL")
	suite.Require().NoError(err)
	suite.Equal("AAPL", quote.Symbol)
	suite.Equal(189.9, quote.BidPrice)
	suite.Equal(190.1, quote.AskPrice)
	suite.InDelta(190.0, quote.MidPrice, 1e-9)

	_, err = suite.provider.GetLatestQuote(context.Background(), "MSFT")
	suite.Error(err)

	apiErr, ok := AsAPIError(err)
	suite.Require().True(ok)
	suite.True(apiErr.IsNotFound())
}

func (suite *AlpacaProviderTestSuite) TestSubmitGetAndCancelOrder() {
	ctx := context.Background()

	order, err := suite.provider.SubmitOrder(ctx, types.BrokerOrderRequest{
		Symbol:        "AAPL",
		Qty:           "2",
		Side:          "buy",
		Type:          "limit",
		TimeInForce:   "day",
		LimitPrice:    "190",
		ClientOrderID: "order-1",
	})
	suite.Require().NoError(err)
	suite.NotEmpty(order.ID)
	suite.Equal("order-1", order.ClientOrderID)
	suite.Equal("190", order.LimitPrice)
	suite.Equal(types.BrokerOrderStatusAccepted, order.Status)

	fetched, err := suite.provider.GetOrder(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(order.ID, fetched.ID)

	suite.Require().NoError(suite.provider.CancelOrder(ctx, order.ID))
	suite.Eventually(func() bool {
		o, _ := suite.server.GetOrder(order.ID)

		return o.Status == types.BrokerOrderStatusCanceled
	}, time.Second, 10*time.Millisecond)
}

func (suite *AlpacaProviderTestSuite) TestDuplicateClientOrderID() {
	ctx := context.Background()
	req := types.BrokerOrderRequest{Symbol: "AAPL", Qty: "1", Side: "buy", Type: "market", TimeInForce: "day", ClientOrderID: "dup"}

	_, err := suite.provider.SubmitOrder(ctx, req)
	suite.Require().NoError(err)

	_, err = suite.provider.SubmitOrder(ctx, req)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBrokerRejected))

	apiErr, ok := AsAPIError(err)
	suite.Require().True(ok)
	suite.True(apiErr.IsDuplicateClientOrderID())
	suite.False(apiErr.IsRetryable())
}

func (suite *AlpacaProviderTestSuite) TestServerErrorIsRetryable() {
	suite.server.FailNextSubmissions(1)

	_, err := suite.provider.SubmitOrder(context.Background(), types.BrokerOrderRequest{
		Symbol: "AAPL", Qty: "1", Side: "buy", Type: "market", TimeInForce: "day",
	})
	suite.Require().Error(err)

	apiErr, ok := AsAPIError(err)
	suite.Require().True(ok)
	suite.Equal(500, apiErr.StatusCode)
	suite.True(apiErr.IsRetryable())
}

func (suite *AlpacaProviderTestSuite) TestCancelUnknownOrder() {
	err := suite.provider.CancelOrder(context.Background(), "missing")
	suite.Require().Error(err)

	apiErr, ok := AsAPIError(err)
	suite.Require().True(ok)
	suite.True(apiErr.IsNotFound())
}

func (suite *AlpacaProviderTestSuite) TestBadCredentials() {
	provider, err := NewAlpacaProviderWithLogger(AlpacaProviderConfig{
		APIKey:     "key",
		APISecret:  "wrong",
		TradingURL: suite.server.BaseURL(),
	}, true, logger.NewNop())
	suite.Require().NoError(err)

	_, err = provider.GetAccount(context.Background())
	suite.Require().Error(err)

	apiErr, ok := AsAPIError(err)
	suite.Require().True(ok)
	suite.Equal(401, apiErr.StatusCode)
	suite.Contains(apiErr.Message, "not authorized")
}

func (suite *AlpacaProviderTestSuite) TestUnreachableServer() {
	provider, err := NewAlpacaProviderWithLogger(AlpacaProviderConfig{
		APIKey:     "key",
		APISecret:  "secret",
		TradingURL: "http://127.0.0.1:1",
		Timeout:    time.Second,
	}, true, logger.NewNop())
	suite.Require().NoError(err)

	_, err = provider.GetAccount(context.Background())
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBrokerRequestFailed))
}

func (suite *AlpacaProviderTestSuite) TestCanceledContextStopsAtLimiter() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.provider.GetAccount(ctx)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRateLimited))
}

func (suite *AlpacaProviderTestSuite) TestDefaults() {
	cfg := AlpacaProviderConfig{APIKey: "k", APISecret: "s"}.withDefaults(true)
	suite.Equal(alpacaPaperTradingURL, cfg.TradingURL)
	suite.Equal(alpacaDataURL, cfg.DataURL)
	suite.Equal(defaultRequestsPerMinute, cfg.RequestsPerMinute)

	live := AlpacaProviderConfig{APIKey: "k", APISecret: "s"}.withDefaults(false)
	suite.Equal(alpacaLiveTradingURL, live.TradingURL)

	_, err := NewAlpacaProviderWithLogger(AlpacaProviderConfig{}, true, logger.NewNop())
	suite.Error(err)
}
