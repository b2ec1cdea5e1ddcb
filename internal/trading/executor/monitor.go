package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/metrics"
	"github.com/rxtech-lab/argo-alpaca/internal/stream"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

const reconcileTimeout = 5 * time.Second

// OrderLookup fetches an order by brokerage id. TradingProvider satisfies it.
type OrderLookup interface {
	GetOrder(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error)
}

// MonitorHandlers receive connection events of the monitor's socket.
type MonitorHandlers struct {
	OnStateChange func(status types.StreamStatus)
	// OnGiveUp fires once the socket has exhausted its reconnect attempts.
	OnGiveUp func(err error)
}

// OrderMonitor holds its own trading-stream connection and reports updates for
// tracked brokerage order ids. An id stops being tracked once its order reaches
// a terminal brokerage status.
//
// Updates that went by while an id was not yet tracked, or while the socket was
// down, are recovered through the lookup: once when an order is registered and
// for every tracked order after a reconnect.
type OrderMonitor struct {
	manager  *stream.Manager
	lookup   OrderLookup
	handlers MonitorHandlers
	log      *logger.Logger

	mu        sync.RWMutex
	tracked   map[string]string
	observers []OrderUpdateObserver
	connected bool
}

var _ OrderTracker = (*OrderMonitor)(nil)

// NewOrderMonitor creates a monitor whose socket follows config, including its
// reconnect policy. A nil lookup disables reconciliation.
func NewOrderMonitor(
	config stream.ManagerConfig,
	lookup OrderLookup,
	handlers MonitorHandlers,
	log *logger.Logger,
	m *metrics.Metrics,
) *OrderMonitor {
	monitor := &OrderMonitor{
		manager:   nil,
		lookup:    lookup,
		handlers:  handlers,
		log:       log.Named("monitor"),
		mu:        sync.RWMutex{},
		tracked:   make(map[string]string),
		observers: nil,
		connected: false,
	}

	monitor.manager = stream.NewOrderUpdatesManager(config, stream.Handlers{
		OnStateChange: monitor.onStateChange,
		OnTradeUpdate: monitor.handleTradeUpdate,
		OnGiveUp:      monitor.onGiveUp,
	}, log.Named("monitor"), m)

	return monitor
}

// Start opens the monitor's trading-stream connection.
func (m *OrderMonitor) Start(ctx context.Context) error {
	return m.manager.Connect(ctx)
}

// Close closes the connection. Tracked ids are kept.
func (m *OrderMonitor) Close() error {
	return m.manager.Close()
}

// AddObserver registers o for updates of tracked orders.
func (m *OrderMonitor) AddObserver(o OrderUpdateObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, o)
}

// MonitorOrder starts tracking the brokerage id of state.
func (m *OrderMonitor) MonitorOrder(state types.ExecutorOrderState) error {
	if state.BrokerOrderID == "" {
		return errors.Newf(errors.ErrCodeMissingParameter, "order %s has no brokerage id to monitor", state.ID)
	}

	m.mu.Lock()
	m.tracked[state.BrokerOrderID] = state.ID
	m.mu.Unlock()

	m.log.Debug("monitoring order",
		zap.String("order_id", state.ID),
		zap.String("broker_order_id", state.BrokerOrderID),
	)

	m.reconcile(state.BrokerOrderID)

	return nil
}

// IsTracking reports whether brokerOrderID is currently monitored.
func (m *OrderMonitor) IsTracking(brokerOrderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.tracked[brokerOrderID]

	return ok
}

// Tracked returns the monitored brokerage ids, sorted.
func (m *OrderMonitor) Tracked() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Status returns the monitor connection status.
func (m *OrderMonitor) Status() types.StreamStatus {
	return m.manager.Status()
}

func (m *OrderMonitor) onStateChange(status types.StreamStatus) {
	m.log.Debug("monitor connection state", zap.String("state", string(status.State)))

	authenticated := status.State == types.ConnectionStateAuthenticated

	m.mu.Lock()
	reconnected := authenticated && !m.connected
	m.connected = authenticated
	m.mu.Unlock()

	if reconnected {
		go m.ReconcileAll()
	}

	if m.handlers.OnStateChange != nil {
		m.handlers.OnStateChange(status)
	}
}

func (m *OrderMonitor) onGiveUp(_ types.StreamType, err error) {
	m.log.Error("order monitor connection gave up", zap.Error(err))

	if m.handlers.OnGiveUp != nil {
		m.handlers.OnGiveUp(errors.Wrap(errors.ErrCodeStreamGaveUp, "order monitor connection gave up", err))
	}
}

// ReconcileAll looks up every tracked order once and applies terminal states.
func (m *OrderMonitor) ReconcileAll() {
	for _, id := range m.Tracked() {
		m.reconcile(id)
	}
}

// reconcile fetches brokerOrderID and, when the brokerage already reports a
// terminal status, delivers it as if it had arrived on the stream.
func (m *OrderMonitor) reconcile(brokerOrderID string) {
	if m.lookup == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	order, err := m.lookup.GetOrder(ctx, brokerOrderID)
	if err != nil {
		m.log.Warn("failed to reconcile order", zap.String("broker_order_id", brokerOrderID), zap.Error(err))

		return
	}

	if !order.Status.IsTerminal() {
		return
	}

	at := order.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	m.log.Info("order reached a terminal status off-stream",
		zap.String("broker_order_id", brokerOrderID),
		zap.String("status", string(order.Status)),
	)

	m.handleTradeUpdate(types.TradeUpdate{
		Event:       eventForStatus(order.Status),
		ExecutionID: "",
		Order:       order,
		Timestamp:   at,
		Price:       order.FilledAvgPrice,
		Qty:         "",
		PositionQty: "",
	})
}

// eventForStatus names the trade_updates event that carries status.
func eventForStatus(status types.BrokerOrderStatus) string {
	switch status {
	case types.BrokerOrderStatusFilled:
		return "fill"
	case types.BrokerOrderStatusCanceled:
		return "canceled"
	case types.BrokerOrderStatusExpired:
		return "expired"
	case types.BrokerOrderStatusRejected:
		return "rejected"
	default:
		return string(status)
	}
}

func (m *OrderMonitor) handleTradeUpdate(update types.TradeUpdate) {
	brokerID := update.Order.ID
	terminal := update.Order.Status.IsTerminal()

	m.mu.Lock()

	if _, ok := m.tracked[brokerID]; !ok {
		m.mu.Unlock()
		m.log.Debug("ignoring update for untracked order",
			zap.String("broker_order_id", brokerID),
			zap.String("event", update.Event),
		)

		return
	}

	if terminal {
		delete(m.tracked, brokerID)
	}

	observers := append([]OrderUpdateObserver(nil), m.observers...)
	m.mu.Unlock()

	m.log.Info("order update",
		zap.String("broker_order_id", brokerID),
		zap.String("event", update.Event),
		zap.String("status", string(update.Order.Status)),
		zap.Bool("terminal", terminal),
	)

	event := OrderUpdateEvent{BrokerOrderID: brokerID, Update: update, Terminal: terminal}
	for _, o := range observers {
		o.OnOrderUpdate(event)
	}
}
