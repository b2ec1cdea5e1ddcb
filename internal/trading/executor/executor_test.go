package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/repository"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/mocks"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type ExecutorTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockTradingProvider
	tracker  *mocks.MockOrderTracker
	notifier *mocks.MockNotifier
	repo     *repository.MemoryRepository
	executor *Executor

	mu     sync.Mutex
	events []types.OrderEvent
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.provider = mocks.NewMockTradingProvider(suite.ctrl)
	suite.tracker = mocks.NewMockOrderTracker(suite.ctrl)
	suite.notifier = mocks.NewMockNotifier(suite.ctrl)
	suite.repo = repository.NewMemoryRepository()
	suite.events = nil

	suite.notifier.EXPECT().PublishOrderEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event types.OrderEvent) error {
			suite.mu.Lock()
			defer suite.mu.Unlock()

			suite.events = append(suite.events, event)

			return nil
		}).AnyTimes()

	suite.executor = suite.newExecutor(Config{
		MaxAttempts:   3,
		DrainInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	})
}

func (suite *ExecutorTestSuite) TearDownTest() {
	suite.executor.Stop()
}

func (suite *ExecutorTestSuite) newExecutor(config Config) *Executor {
	log := logger.NewNop()

	return NewExecutor(
		config,
		suite.repo,
		NewOrderValidator(suite.provider, log),
		NewOrderSubmitter(suite.provider, log),
		suite.tracker,
		suite.notifier,
		log,
		nil,
	)
}

func (suite *ExecutorTestSuite) recorded() []types.OrderEvent {
	suite.mu.Lock()
	defer suite.mu.Unlock()

	return append([]types.OrderEvent(nil), suite.events...)
}

func (suite *ExecutorTestSuite) eventsFor(id string) ([]types.OrderEventType, []types.OrderExecutionStatus) {
	var (
		kinds    []types.OrderEventType
		statuses []types.OrderExecutionStatus
	)

	for _, e := range suite.recorded() {
		if e.Order.ID != id {
			continue
		}

		kinds = append(kinds, e.Type)
		statuses = append(statuses, e.Order.Status)
	}

	return kinds, statuses
}

func (suite *ExecutorTestSuite) expectFunds(buyingPower, ask float64) {
	suite.provider.EXPECT().GetAccount(gomock.Any()).
		Return(types.AccountInfo{Status: "ACTIVE", BuyingPower: buyingPower}, nil).AnyTimes()
	suite.provider.EXPECT().GetLatestQuote(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, symbol string) (types.MarketQuote, error) {
			return types.NewMarketQuote(symbol, ask-0.05, 100, ask, 100, time.Now()), nil
		}).AnyTimes()
}

func accepted(id string) func(context.Context, types.BrokerOrderRequest) (types.BrokerOrder, error) {
	return func(_ context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error) {
		return types.BrokerOrder{
			ID:            id,
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Qty:           req.Qty,
			Status:        types.BrokerOrderStatusAccepted,
		}, nil
	}
}

func fillUpdate(brokerID string) OrderUpdateEvent {
	return OrderUpdateEvent{
		BrokerOrderID: brokerID,
		Update: types.TradeUpdate{
			Event:     "fill",
			Order:     types.BrokerOrder{ID: brokerID, Status: types.BrokerOrderStatusFilled, FilledQty: "5"},
			Timestamp: time.Now(),
			Price:     "190",
			Qty:       "5",
		},
		Terminal: true,
	}
}

func (suite *ExecutorTestSuite) waitQueued(n int) {
	suite.Eventually(func() bool {
		return suite.executor.QueueLength() == n
	}, time.Second, time.Millisecond)
}

func (suite *ExecutorTestSuite) TestMarketBuyLifecycle() {
	suite.expectFunds(10000, 190)
	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).DoAndReturn(accepted("b-1")).Times(1)
	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).
		DoAndReturn(func(state types.ExecutorOrderState) error {
			suite.Equal("b-1", state.BrokerOrderID)
			suite.Equal(types.OrderStatusSubmitted, state.Status)

			return nil
		}).Times(1)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(5))
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusPending, state.Status)
	suite.NotEmpty(state.ID)
	suite.NotEmpty(state.IdempotencyKey)
	suite.Equal(1, suite.executor.QueueLength())

	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusMonitoring, got.Status)
	suite.Equal("b-1", got.BrokerOrderID)
	suite.Equal(1, got.RetryCount)
	suite.True(got.SubmittedAt.IsSome())
	suite.Equal(state.IdempotencyKey, got.IdempotencyKey)

	suite.executor.OnOrderUpdate(fillUpdate("b-1"))
	suite.executor.OnOrderUpdate(fillUpdate("b-1"))

	got, err = suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusCompleted, got.Status)
	suite.True(got.CompletedAt.IsSome())
	suite.Equal(types.BrokerOrderStatusFilled, got.LastBrokerResponse.Unwrap().Status)

	kinds, statuses := suite.eventsFor(state.ID)
	suite.Equal([]types.OrderExecutionStatus{
		types.OrderStatusPending,
		types.OrderStatusValidating,
		types.OrderStatusSubmitting,
		types.OrderStatusSubmitted,
		types.OrderStatusMonitoring,
		types.OrderStatusCompleted,
	}, statuses)
	suite.Equal([]types.OrderEventType{
		types.OrderEventQueued,
		types.OrderEventUpdated,
		types.OrderEventUpdated,
		types.OrderEventSubmitted,
		types.OrderEventUpdated,
		types.OrderEventCompleted,
	}, kinds)

	last := suite.recorded()[len(suite.recorded())-1]
	suite.Require().NotNil(last.Update)
	suite.Equal("fill", last.Update.Event)
}

func (suite *ExecutorTestSuite) TestInsufficientBuyingPowerFailsWithoutSubmitting() {
	suite.expectFunds(100, 190)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(5))
	suite.Require().NoError(err)
	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFailed, got.Status)
	suite.Equal(0, got.RetryCount)
	suite.Require().Len(got.Errors, 1)
	suite.Contains(got.Errors[0], "Insufficient buying power")
	suite.Equal(0, suite.executor.QueueLength())

	kinds, _ := suite.eventsFor(state.ID)
	suite.Equal(types.OrderEventFailed, kinds[len(kinds)-1])

	events := suite.recorded()
	suite.Equal(got.Errors, events[len(events)-1].Errors)
}

func (suite *ExecutorTestSuite) TestStructuralFailureReportsEveryError() {
	req := marketBuy(5)
	req.Notional = optional.Some(100.0)
	req.Type = types.OrderTypeLimit

	state, err := suite.executor.SubmitOrder(context.Background(), req)
	suite.Require().NoError(err)
	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFailed, got.Status)
	suite.Equal([]string{
		"Cannot specify both qty and notional",
		"Limit price is required for limit orders",
	}, got.Errors)
}

func (suite *ExecutorTestSuite) TestRetriesExhaustAfterThreeAttempts() {
	suite.expectFunds(10000, 190)
	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		Return(types.BrokerOrder{}, fmt.Errorf("service unavailable")).Times(3)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(1))
	suite.Require().NoError(err)

	suite.True(suite.executor.ProcessNext(context.Background()))
	suite.waitQueued(1)
	suite.True(suite.executor.ProcessNext(context.Background()))
	suite.waitQueued(1)
	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFailed, got.Status)
	suite.Equal(3, got.RetryCount)
	suite.Equal("service unavailable", got.LastError)

	time.Sleep(20 * time.Millisecond)
	suite.Equal(0, suite.executor.QueueLength())
	suite.False(suite.executor.ProcessNext(context.Background()))

	_, statuses := suite.eventsFor(state.ID)
	suite.Equal([]types.OrderExecutionStatus{
		types.OrderStatusPending,
		types.OrderStatusValidating,
		types.OrderStatusSubmitting,
		types.OrderStatusRetrying,
		types.OrderStatusSubmitting,
		types.OrderStatusRetrying,
		types.OrderStatusSubmitting,
		types.OrderStatusFailed,
	}, statuses)
}

func (suite *ExecutorTestSuite) TestRetrySucceeds() {
	suite.provider.EXPECT().GetAccount(gomock.Any()).Return(types.AccountInfo{BuyingPower: 10000}, nil).Times(1)
	suite.provider.EXPECT().GetLatestQuote(gomock.Any(), "AAPL").
		Return(types.NewMarketQuote("AAPL", 189, 1, 190, 1, time.Now()), nil).Times(1)

	var keys []string

	gomock.InOrder(
		suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error) {
				keys = append(keys, req.ClientOrderID)

				return types.BrokerOrder{}, fmt.Errorf("timeout")
			}),
		suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error) {
				keys = append(keys, req.ClientOrderID)

				return accepted("b-7")(ctx, req)
			}),
	)
	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).Return(nil)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(1))
	suite.Require().NoError(err)

	suite.True(suite.executor.ProcessNext(context.Background()))
	suite.waitQueued(1)
	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusMonitoring, got.Status)
	suite.Equal(2, got.RetryCount)
	suite.Empty(got.LastError)
	suite.Equal([]string{state.IdempotencyKey, state.IdempotencyKey}, keys)
}

func (suite *ExecutorTestSuite) TestTerminalSubmitResponseCompletesImmediately() {
	suite.expectFunds(10000, 190)
	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		Return(types.BrokerOrder{ID: "b-9", Status: types.BrokerOrderStatusRejected}, nil)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(1))
	suite.Require().NoError(err)
	suite.True(suite.executor.ProcessNext(context.Background()))

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusCompleted, got.Status)
	suite.Equal(types.BrokerOrderStatusRejected, got.LastBrokerResponse.Unwrap().Status)
}

func (suite *ExecutorTestSuite) TestNonTerminalUpdatesKeepMonitoring() {
	suite.expectFunds(10000, 190)
	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).DoAndReturn(accepted("b-1"))
	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).Return(nil)

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(5))
	suite.Require().NoError(err)
	suite.True(suite.executor.ProcessNext(context.Background()))

	suite.executor.OnOrderUpdate(OrderUpdateEvent{
		BrokerOrderID: "b-1",
		Update: types.TradeUpdate{
			Event: "partial_fill",
			Order: types.BrokerOrder{ID: "b-1", Status: types.BrokerOrderStatusPartiallyFilled, FilledQty: "2"},
		},
	})
	suite.executor.OnOrderUpdate(OrderUpdateEvent{BrokerOrderID: "unknown", Update: types.TradeUpdate{Event: "fill"}})

	got, err := suite.executor.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusMonitoring, got.Status)
	suite.Equal("2", got.LastBrokerResponse.Unwrap().FilledQty)

	events := suite.recorded()
	last := events[len(events)-1]
	suite.Equal(types.OrderEventUpdated, last.Type)
	suite.Require().NotNil(last.Update)
	suite.Equal("partial_fill", last.Update.Event)
}

func (suite *ExecutorTestSuite) TestCancelOrder() {
	suite.expectFunds(10000, 190)
	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).DoAndReturn(accepted("b-1"))
	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).Return(nil)

	err := suite.executor.CancelOrder(context.Background(), "missing")
	suite.True(errors.HasCode(err, errors.ErrCodeOrderNotFound))

	state, err := suite.executor.SubmitOrder(context.Background(), marketBuy(1))
	suite.Require().NoError(err)

	err = suite.executor.CancelOrder(context.Background(), state.ID)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderNotCancelable))
	suite.Contains(err.Error(), "has not been accepted")

	suite.True(suite.executor.ProcessNext(context.Background()))

	suite.provider.EXPECT().CancelOrder(gomock.Any(), "b-1").Return(nil)
	suite.Require().NoError(suite.executor.CancelOrder(context.Background(), state.ID))

	suite.executor.OnOrderUpdate(OrderUpdateEvent{
		BrokerOrderID: "b-1",
		Update:        types.TradeUpdate{Event: "canceled", Order: types.BrokerOrder{ID: "b-1", Status: types.BrokerOrderStatusCanceled}},
		Terminal:      true,
	})

	err = suite.executor.CancelOrder(context.Background(), state.ID)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderNotCancelable))
	suite.Contains(err.Error(), "already completed")
}

func (suite *ExecutorTestSuite) TestDrainLoopProcessesOneOrderAtATime() {
	suite.expectFunds(1e6, 100)

	var (
		inFlight    int32
		maxInFlight int32
		counter     int32
	)

	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error) {
			n := atomic.AddInt32(&inFlight, 1)
			defer atomic.AddInt32(&inFlight, -1)

			for {
				current := atomic.LoadInt32(&maxInFlight)
				if n <= current || atomic.CompareAndSwapInt32(&maxInFlight, current, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			id := atomic.AddInt32(&counter, 1)

			return accepted(fmt.Sprintf("b-%d", id))(ctx, req)
		}).Times(3)
	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).Return(nil).Times(3)

	exec := suite.newExecutor(Config{MaxAttempts: 3, DrainInterval: time.Millisecond, RetryDelay: time.Millisecond})
	defer exec.Stop()

	ids := make([]string, 0, 3)

	for i := 0; i < 3; i++ {
		state, err := exec.SubmitOrder(context.Background(), marketBuy(1))
		suite.Require().NoError(err)

		ids = append(ids, state.ID)
	}

	suite.Require().NoError(exec.Start(context.Background()))

	suite.Eventually(func() bool {
		for _, id := range ids {
			got, err := exec.GetOrder(id)
			if err != nil || got.Status != types.OrderStatusMonitoring {
				return false
			}
		}

		return true
	}, 2*time.Second, 5*time.Millisecond)

	suite.Equal(int32(1), atomic.LoadInt32(&maxInFlight))
}

func (suite *ExecutorTestSuite) TestStartRecoversUnfinishedOrders() {
	now := time.Now().UTC()

	pending := types.ExecutorOrderState{ID: "o-pending", Request: marketBuy(1), Status: types.OrderStatusPending, CreatedAt: now}
	monitoring := types.ExecutorOrderState{ID: "o-monitoring", BrokerOrderID: "b-1", Request: marketBuy(1), Status: types.OrderStatusMonitoring, CreatedAt: now.Add(time.Second)}
	done := types.ExecutorOrderState{ID: "o-done", BrokerOrderID: "b-0", Request: marketBuy(1), Status: types.OrderStatusCompleted, CreatedAt: now.Add(2 * time.Second)}

	for _, s := range []types.ExecutorOrderState{pending, monitoring, done} {
		suite.Require().NoError(suite.repo.Save(s))
	}

	suite.tracker.EXPECT().MonitorOrder(gomock.Any()).
		DoAndReturn(func(state types.ExecutorOrderState) error {
			suite.Equal("o-monitoring", state.ID)

			return nil
		}).Times(1)

	suite.Require().NoError(suite.executor.Start(context.Background()))
	suite.Equal(1, suite.executor.QueueLength())

	orders, err := suite.executor.ListOrders()
	suite.Require().NoError(err)
	suite.Len(orders, 3)
	suite.Equal("o-pending", orders[0].ID)
}

func (suite *ExecutorTestSuite) TestStoppedExecutorRejectsOrders() {
	suite.Require().NoError(suite.executor.Start(context.Background()))
	suite.executor.Stop()

	_, err := suite.executor.SubmitOrder(context.Background(), marketBuy(1))
	suite.True(errors.HasCode(err, errors.ErrCodeExecutorStopped))
	suite.True(errors.HasCode(suite.executor.Start(context.Background()), errors.ErrCodeExecutorStopped))
}

func (suite *ExecutorTestSuite) TestProvidedIdempotencyKeyIsKept() {
	req := marketBuy(1)
	req.IdempotencyKey = "client-key"

	state, err := suite.executor.SubmitOrder(context.Background(), req)
	suite.Require().NoError(err)
	suite.Equal("client-key", state.IdempotencyKey)
	suite.Equal("client-key", state.Request.IdempotencyKey)
}

func (suite *ExecutorTestSuite) TestFillBeforeSubmitResponseCompletesOrder() {
	suite.expectFunds(10000, 190)

	log := logger.NewNop()
	monitor := NewOrderMonitor(monitorConfig("ws://127.0.0.1:1/stream"), suite.provider, MonitorHandlers{}, log, nil)
	exec := NewExecutor(Config{
		MaxAttempts:   3,
		DrainInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}, suite.repo, NewOrderValidator(suite.provider, log), NewOrderSubmitter(suite.provider, log), monitor, suite.notifier, log, nil)
	monitor.AddObserver(exec)
	defer exec.Stop()

	filled := types.BrokerOrder{
		ID:             "b-1",
		Symbol:         "AAPL",
		Qty:            "5",
		FilledQty:      "5",
		FilledAvgPrice: "190",
		Status:         types.BrokerOrderStatusFilled,
	}

	suite.provider.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error) {
			// the stream delivers the fill before the REST call returns
			monitor.handleTradeUpdate(types.TradeUpdate{Event: "fill", Order: filled, Timestamp: time.Now()})

			return accepted("b-1")(ctx, req)
		})
	suite.provider.EXPECT().GetOrder(gomock.Any(), "b-1").Return(filled, nil)

	state, err := exec.SubmitOrder(context.Background(), marketBuy(5))
	suite.Require().NoError(err)
	suite.True(exec.ProcessNext(context.Background()))

	got, err := exec.GetOrder(state.ID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusCompleted, got.Status)
	suite.True(got.CompletedAt.IsSome())
	suite.Equal(types.BrokerOrderStatusFilled, got.LastBrokerResponse.Unwrap().Status)
	suite.False(monitor.IsTracking("b-1"))

	kinds, _ := suite.eventsFor(state.ID)
	suite.Equal([]types.OrderEventType{
		types.OrderEventQueued,
		types.OrderEventUpdated,
		types.OrderEventUpdated,
		types.OrderEventSubmitted,
		types.OrderEventCompleted,
	}, kinds)
}
