package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	tradingprovider "github.com/rxtech-lab/argo-alpaca/internal/trading/provider"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderSubmitter translates order requests into the brokerage schema and
// performs submit and cancel calls.
type OrderSubmitter struct {
	provider tradingprovider.TradingProvider
	log      *logger.Logger

	mu        sync.RWMutex
	observers []SubmissionObserver
}

func NewOrderSubmitter(provider tradingprovider.TradingProvider, log *logger.Logger) *OrderSubmitter {
	return &OrderSubmitter{
		provider:  provider,
		log:       log.Named("submitter"),
		mu:        sync.RWMutex{},
		observers: nil,
	}
}

// AddObserver registers o for submission outcomes.
func (s *OrderSubmitter) AddObserver(o SubmissionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
}

// SubmitOrder submits req on behalf of orderID. A duplicate client order id
// rejection is retried once with a fresh key. Observers are notified of the
// outcome before SubmitOrder returns.
func (s *OrderSubmitter) SubmitOrder(ctx context.Context, orderID string, req types.ExecutorOrderRequest) (types.BrokerOrder, error) {
	body := BuildBrokerOrderRequest(req)

	resp, err := s.provider.SubmitOrder(ctx, body)
	if err != nil {
		if apiErr, ok := tradingprovider.AsAPIError(err); ok && apiErr.IsDuplicateClientOrderID() {
			previous := body.ClientOrderID
			body.ClientOrderID = mutateIdempotencyKey(previous)

			s.log.Warn("duplicate client order id, retrying with a new key",
				zap.String("order_id", orderID),
				zap.String("previous_key", previous),
				zap.String("key", body.ClientOrderID),
			)

			resp, err = s.provider.SubmitOrder(ctx, body)
		}
	}

	if err != nil {
		s.log.Error("order submission failed", zap.String("order_id", orderID), zap.Error(err))
		s.emitFailed(OrderFailedEvent{OrderID: orderID, Err: err, At: time.Now()})

		return types.BrokerOrder{}, err //nolint:exhaustruct
	}

	if resp.ClientOrderID == "" {
		resp.ClientOrderID = body.ClientOrderID
	}

	s.log.Info("order accepted by brokerage",
		zap.String("order_id", orderID),
		zap.String("broker_order_id", resp.ID),
		zap.String("status", string(resp.Status)),
	)
	s.emitSubmitted(OrderSubmittedEvent{OrderID: orderID, Response: resp, At: time.Now()})

	return resp, nil
}

// CancelOrder cancels a brokerage order. An order the brokerage no longer knows
// counts as canceled.
func (s *OrderSubmitter) CancelOrder(ctx context.Context, brokerOrderID string) error {
	err := s.provider.CancelOrder(ctx, brokerOrderID)
	if err == nil {
		s.log.Info("cancel requested", zap.String("broker_order_id", brokerOrderID))

		return nil
	}

	if apiErr, ok := tradingprovider.AsAPIError(err); ok && apiErr.IsNotFound() {
		s.log.Info("order not found at brokerage, treating cancel as done", zap.String("broker_order_id", brokerOrderID))

		return nil
	}

	return errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to cancel order %s", brokerOrderID)
}

func (s *OrderSubmitter) emitSubmitted(event OrderSubmittedEvent) {
	s.mu.RLock()
	observers := append([]SubmissionObserver(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OnOrderSubmitted(event)
	}
}

func (s *OrderSubmitter) emitFailed(event OrderFailedEvent) {
	s.mu.RLock()
	observers := append([]SubmissionObserver(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OnOrderFailed(event)
	}
}

// mutateIdempotencyKey derives a new client order id from key. Brokerage ids are capped at 48 chars.
func mutateIdempotencyKey(key string) string {
	suffix := uuid.NewString()[:8]
	if len(key) > 39 {
		key = key[:39]
	}

	return key + "-" + suffix
}

// BuildBrokerOrderRequest maps an order request onto the brokerage order schema.
// Numeric fields are sent as decimal strings.
func BuildBrokerOrderRequest(req types.ExecutorOrderRequest) types.BrokerOrderRequest {
	out := types.BrokerOrderRequest{
		Symbol:        req.Symbol,
		Qty:           formatOptional(req.Qty.TakeOr(0), req.Qty.IsSome()),
		Notional:      formatOptional(req.Notional.TakeOr(0), req.Notional.IsSome()),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   string(req.TimeInForce),
		LimitPrice:    formatOptional(req.LimitPrice.TakeOr(0), req.LimitPrice.IsSome()),
		StopPrice:     formatOptional(req.StopPrice.TakeOr(0), req.StopPrice.IsSome()),
		TrailPrice:    formatOptional(req.TrailPrice.TakeOr(0), req.TrailPrice.IsSome()),
		TrailPercent:  formatOptional(req.TrailPercent.TakeOr(0), req.TrailPercent.IsSome()),
		ExtendedHours: req.ExtendedHours,
		ClientOrderID: req.IdempotencyKey,
		OrderClass:    "",
		TakeProfit:    nil,
		StopLoss:      nil,
	}

	if !req.IsBracket() {
		return out
	}

	out.OrderClass = string(types.OrderClassBracket)

	if tp, err := req.TakeProfit.Take(); err == nil {
		out.TakeProfit = &types.BrokerTakeProfit{LimitPrice: formatDecimal(tp.LimitPrice)}
	}

	if sl, err := req.StopLoss.Take(); err == nil {
		out.StopLoss = &types.BrokerStopLoss{
			StopPrice:  formatDecimal(sl.StopPrice),
			LimitPrice: formatOptional(sl.LimitPrice.TakeOr(0), sl.LimitPrice.IsSome()),
		}
	}

	return out
}

func formatOptional(v float64, ok bool) string {
	if !ok {
		return ""
	}

	return formatDecimal(v)
}

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}
