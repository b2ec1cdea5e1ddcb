package alpaca_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-alpaca/e2e/alpaca/mockserver"
	"github.com/rxtech-lab/argo-alpaca/internal/config"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/stream"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine"
	engine_v1 "github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/mocks"
	"github.com/stretchr/testify/suite"
)

// AlpacaEngineE2ETestSuite drives the whole engine against the mock Alpaca server.
type AlpacaEngineE2ETestSuite struct {
	suite.Suite
	server *mockserver.MockAlpacaServer
	engine *engine_v1.AlpacaEngineV1

	cancel context.CancelFunc
	done   chan error

	mu       sync.Mutex
	events   []types.OrderEvent
	messages []types.MarketMessage
	quotes   []types.MarketQuote
	status   []types.ConnectionStatusSnapshot
	errs     []error
}

func TestAlpacaEngineE2ESuite(t *testing.T) {
	suite.Run(t, new(AlpacaEngineE2ETestSuite))
}

func (s *AlpacaEngineE2ETestSuite) SetupTest() {
	s.server = mockserver.NewMockAlpacaServer(mockserver.ServerConfig{
		APIKey:      "key",
		APISecret:   "secret",
		BuyingPower: 10000,
		Quotes: map[string][2]float64{
			"AAPL": {189.9, 190.1},
			"MSFT": {409.8, 410.2},
		},
	})
	s.Require().NoError(s.server.Start(":0"))

	s.events = nil
	s.messages = nil
	s.quotes = nil
	s.status = nil
	s.errs = nil
	s.cancel = nil
}

func (s *AlpacaEngineE2ETestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	_ = s.server.Stop()
}

func (s *AlpacaEngineE2ETestSuite) config() config.Config {
	cfg := config.Default()
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	cfg.Alpaca.TradingURL = s.server.BaseURL()
	cfg.Alpaca.DataURL = s.server.BaseURL()
	cfg.Streams.MarketDataURL = s.server.MarketDataURL()
	cfg.Streams.TradingURL = s.server.TradingStreamURL()
	cfg.Streams.HandshakeTimeout = time.Second
	cfg.Streams.WriteTimeout = time.Second
	cfg.Streams.Reconnect = stream.ReconnectConfig{
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    80 * time.Millisecond,
		MaxAttempts: 5,
	}
	cfg.Batcher.MaxBatchDelay = 10 * time.Millisecond
	cfg.Executor.DrainInterval = 10 * time.Millisecond
	cfg.Executor.RetryDelay = 20 * time.Millisecond
	cfg.Notifier.Log = false
	cfg.Ops.StatusInterval = 100 * time.Millisecond
	cfg.Symbols.Quotes = []string{"AAPL", "MSFT"}

	return cfg
}

func (s *AlpacaEngineE2ETestSuite) startEngine(cfg config.Config) {
	eng, err := engine_v1.NewAlpacaEngineV1(logger.NewNop())
	s.Require().NoError(err)
	s.Require().NoError(eng.Initialize(cfg))
	s.engine = eng

	started := make(chan struct{})
	onStart := engine.OnEngineStartCallback(func(_ types.ConnectionStatusSnapshot) error {
		close(started)

		return nil
	})
	onOrder := engine.OnOrderEventCallback(func(event types.OrderEvent) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.events = append(s.events, event)

		return nil
	})
	onBatch := engine.OnMarketBatchCallback(func(batch []types.MarketMessage) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.messages = append(s.messages, batch...)

		for _, msg := range batch {
			if msg.Quote != nil {
				s.quotes = append(s.quotes, *msg.Quote)
			}
		}

		return nil
	})
	onStatus := engine.OnConnectionStatusCallback(func(status types.ConnectionStatusSnapshot) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.status = append(s.status, status)

		return nil
	})
	onError := engine.OnErrorCallback(func(err error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.errs = append(s.errs, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	go func() {
		s.done <- eng.Run(ctx, engine.Callbacks{
			OnEngineStart:      &onStart,
			OnOrderEvent:       &onOrder,
			OnMarketBatch:      &onBatch,
			OnConnectionStatus: &onStatus,
			OnError:            &onError,
		})
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		s.FailNow("engine did not start")
	}

	s.Eventually(func() bool {
		return s.allAuthenticated() &&
			s.server.ListeningTradingConnections() == 2 &&
			len(s.server.Subscriptions("quotes")) == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func (s *AlpacaEngineE2ETestSuite) allAuthenticated() bool {
	status := s.engine.Status()
	if len(status.Streams) != 3 {
		return false
	}

	for _, st := range status.Streams {
		if st.State != types.ConnectionStateAuthenticated {
			return false
		}
	}

	return true
}

func (s *AlpacaEngineE2ETestSuite) eventsFor(id string) []types.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.OrderEvent

	for _, e := range s.events {
		if e.Order.ID == id {
			out = append(out, e)
		}
	}

	return out
}

func (s *AlpacaEngineE2ETestSuite) waitStatus(id string, status types.OrderExecutionStatus) types.ExecutorOrderState {
	var state types.ExecutorOrderState

	s.Require().Eventually(func() bool {
		current, err := s.engine.GetOrder(id)
		if err != nil {
			return false
		}

		state = current

		return current.Status == status
	}, 3*time.Second, 10*time.Millisecond)

	return state
}

func marketBuy(symbol string, qty float64) types.ExecutorOrderRequest {
	return types.ExecutorOrderRequest{
		Symbol:      symbol,
		Side:        types.OrderSideBuy,
		Type:        types.OrderTypeMarket,
		TimeInForce: types.TimeInForceDay,
		Qty:         optional.Some(qty),
	}
}

func (s *AlpacaEngineE2ETestSuite) TestMarketBuyCompletesOnFill() {
	s.startEngine(s.config())

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("AAPL", 10))
	s.Require().NoError(err)

	monitoring := s.waitStatus(state.ID, types.OrderStatusMonitoring)
	s.NotEmpty(monitoring.BrokerOrderID)
	s.Equal(1, s.server.SubmitCount())

	s.Require().NoError(s.server.PartiallyFillOrder(monitoring.BrokerOrderID, 190.05))
	s.Require().NoError(s.server.FillOrder(monitoring.BrokerOrderID, 190.05))

	completed := s.waitStatus(state.ID, types.OrderStatusCompleted)
	s.True(completed.CompletedAt.IsSome())

	events := s.eventsFor(state.ID)
	s.Require().NotEmpty(events)

	last := events[len(events)-1]
	s.Equal(types.OrderEventCompleted, last.Type)
	s.Require().NotNil(last.Update)
	s.Equal("fill", last.Update.Event)

	s.Eventually(func() bool {
		stats := s.engine.Stats()
		aapl, ok := stats.Symbols["AAPL"]

		return ok && aapl.Fills == 2 && aapl.BuyQty == "10"
	}, time.Second, 10*time.Millisecond)
}

func (s *AlpacaEngineE2ETestSuite) TestFillBroadcastBeforeSubmitResponseCompletes() {
	s.startEngine(s.config())
	s.server.FillBeforeResponse(true)

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("AAPL", 2))
	s.Require().NoError(err)

	completed := s.waitStatus(state.ID, types.OrderStatusCompleted)
	s.NotEmpty(completed.BrokerOrderID)
	s.Equal(types.BrokerOrderStatusFilled, completed.LastBrokerResponse.Unwrap().Status)

	broker, ok := s.server.GetOrder(completed.BrokerOrderID)
	s.Require().True(ok)
	s.Equal(types.BrokerOrderStatusFilled, broker.Status)

	events := s.eventsFor(state.ID)
	s.Require().NotEmpty(events)
	s.Equal(types.OrderEventCompleted, events[len(events)-1].Type)
}

func (s *AlpacaEngineE2ETestSuite) TestInsufficientBuyingPowerFailsValidation() {
	s.startEngine(s.config())

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("MSFT", 100))
	s.Require().NoError(err)

	failed := s.waitStatus(state.ID, types.OrderStatusFailed)
	s.Require().Len(failed.Errors, 1)
	s.True(strings.HasPrefix(failed.Errors[0], "Insufficient buying power"), failed.Errors[0])
	s.Empty(failed.BrokerOrderID)
	s.Equal(0, s.server.SubmitCount())

	events := s.eventsFor(state.ID)
	s.Equal(types.OrderEventFailed, events[len(events)-1].Type)
}

func (s *AlpacaEngineE2ETestSuite) TestSubmissionRetriesThenSucceeds() {
	s.startEngine(s.config())
	s.server.FailNextSubmissions(2)

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("AAPL", 1))
	s.Require().NoError(err)

	monitoring := s.waitStatus(state.ID, types.OrderStatusMonitoring)
	s.Equal(3, monitoring.RetryCount)
	s.Equal(3, s.server.SubmitCount())

	retries := 0

	for _, e := range s.eventsFor(state.ID) {
		if e.Order.Status == types.OrderStatusRetrying {
			retries++
		}
	}

	s.Equal(2, retries)
}

func (s *AlpacaEngineE2ETestSuite) TestSubmissionFailsAfterThreeAttempts() {
	s.startEngine(s.config())
	s.server.FailNextSubmissions(3)

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("AAPL", 1))
	s.Require().NoError(err)

	failed := s.waitStatus(state.ID, types.OrderStatusFailed)
	s.Equal(3, failed.RetryCount)
	s.NotEmpty(failed.LastError)
	s.Equal(3, s.server.SubmitCount())
	s.Empty(s.server.Orders())
}

func (s *AlpacaEngineE2ETestSuite) TestGeneratedMarketDataReachesConsumersInOrder() {
	s.startEngine(s.config())

	genConfig := mocks.DefaultConfig()
	genConfig.Count = 10
	generated := mocks.NewMarketGenerator(11).Messages(genConfig)
	s.server.StreamMessages(generated)

	s.Eventually(func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		return len(s.messages) == len(generated)
	}, 2*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	for i, msg := range s.messages {
		s.Equal(generated[i].Type, msg.Type, "message %d", i)
	}
	s.mu.Unlock()

	lastQuote := generated[len(generated)-3].Quote
	latest, ok := s.engine.LatestQuote("AAPL")
	s.Require().True(ok)
	s.Equal(lastQuote.AskPrice, latest.AskPrice)
	s.Len(s.engine.RecentTrades("AAPL", 100), 10)
}

func (s *AlpacaEngineE2ETestSuite) TestInvalidQuotesAreFiltered() {
	s.startEngine(s.config())

	s.server.PushQuote("AAPL", 191, 190)
	s.server.PushQuote("AAPL", 100, 150)
	s.server.PushQuote("AAPL", 190.0, 190.2)

	s.Eventually(func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		return len(s.quotes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Require().Len(s.quotes, 1)
	s.Equal(190.0, s.quotes[0].BidPrice)
}

func (s *AlpacaEngineE2ETestSuite) TestReconnectRestoresSubscriptionsAndMonitoring() {
	s.startEngine(s.config())

	state, err := s.engine.SubmitOrder(context.Background(), marketBuy("AAPL", 1))
	s.Require().NoError(err)

	monitoring := s.waitStatus(state.ID, types.OrderStatusMonitoring)

	s.server.DropConnections()

	s.Eventually(func() bool {
		return s.server.AuthAttempts(types.StreamMarketData) >= 2 &&
			s.server.AuthAttempts(types.StreamTrading) >= 3 &&
			s.allAuthenticated() &&
			s.server.ListeningTradingConnections() == 2 &&
			len(s.server.Subscriptions("quotes")) == 2
	}, 3*time.Second, 10*time.Millisecond)

	s.Require().NoError(s.server.FillOrder(monitoring.BrokerOrderID, 190.1))
	s.waitStatus(state.ID, types.OrderStatusCompleted)

	for _, st := range s.engine.Status().Streams {
		s.GreaterOrEqual(st.Metrics.ReconnectCount, int64(1), string(st.Stream))
	}
}

func (s *AlpacaEngineE2ETestSuite) TestMarketAuthFailureGivesUp() {
	s.server.SetMarketAuthError(402)

	cfg := s.config()
	cfg.Streams.Reconnect.MaxAttempts = 2

	eng, err := engine_v1.NewAlpacaEngineV1(logger.NewNop())
	s.Require().NoError(err)
	s.Require().NoError(eng.Initialize(cfg))
	s.engine = eng

	onError := engine.OnErrorCallback(func(err error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.errs = append(s.errs, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	go func() {
		s.done <- eng.Run(ctx, engine.Callbacks{OnError: &onError})
	}()

	s.Eventually(func() bool {
		for _, st := range eng.Status().Streams {
			if st.Stream == types.StreamMarketData {
				return st.GaveUp && st.State == types.ConnectionStateError
			}
		}

		return false
	}, 3*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.NotEmpty(s.errs)
}
