package engine_v1

import (
	"context"
	"sync"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/notifier"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1/stats"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"go.uber.org/zap"
)

// dispatcher is the single notifier handed to the batcher and the executor.
// It forwards every event to the configured sinks and then to the Run callbacks.
type dispatcher struct {
	sinks notifier.Multi
	stats *stats.StatsTracker
	log   *logger.Logger

	mu        sync.RWMutex
	callbacks engine.Callbacks
}

var _ notifier.Notifier = (*dispatcher)(nil)

func newDispatcher(sinks notifier.Multi, log *logger.Logger) *dispatcher {
	return &dispatcher{
		sinks:     sinks,
		stats:     nil,
		log:       log.Named("dispatch"),
		mu:        sync.RWMutex{},
		callbacks: engine.Callbacks{},
	}
}

func (d *dispatcher) setCallbacks(callbacks engine.Callbacks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callbacks = callbacks
}

func (d *dispatcher) current() engine.Callbacks {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.callbacks
}

// PublishMarketBatch returns the sink error so the batcher requeues the batch.
// Callback errors are logged only; a slow consumer must not stall delivery.
func (d *dispatcher) PublishMarketBatch(ctx context.Context, batch []types.MarketMessage) error {
	if err := d.sinks.PublishMarketBatch(ctx, batch); err != nil {
		return err
	}

	if cb := d.current().OnMarketBatch; cb != nil {
		if err := (*cb)(batch); err != nil {
			d.log.Warn("market batch callback failed", zap.Int("size", len(batch)), zap.Error(err))
		}
	}

	return nil
}

func (d *dispatcher) PublishConnectionStatus(ctx context.Context, status types.ConnectionStatusSnapshot) error {
	err := d.sinks.PublishConnectionStatus(ctx, status)

	if cb := d.current().OnConnectionStatus; cb != nil {
		if cbErr := (*cb)(status); cbErr != nil {
			d.log.Warn("connection status callback failed", zap.Error(cbErr))
		}
	}

	return err
}

func (d *dispatcher) PublishOrderEvent(ctx context.Context, event types.OrderEvent) error {
	if d.stats != nil {
		d.stats.RecordOrderEvent(event)
	}

	err := d.sinks.PublishOrderEvent(ctx, event)

	if cb := d.current().OnOrderEvent; cb != nil {
		if cbErr := (*cb)(event); cbErr != nil {
			d.log.Warn("order event callback failed",
				zap.String("order_id", event.Order.ID),
				zap.String("type", string(event.Type)),
				zap.Error(cbErr),
			)
		}
	}

	return err
}

func (d *dispatcher) PublishTradeUpdate(ctx context.Context, update types.TradeUpdate) error {
	err := d.sinks.PublishTradeUpdate(ctx, update)

	if cb := d.current().OnTradeUpdate; cb != nil {
		if cbErr := (*cb)(update); cbErr != nil {
			d.log.Warn("trade update callback failed", zap.String("event", update.Event), zap.Error(cbErr))
		}
	}

	return err
}

func (d *dispatcher) reportError(err error) {
	if cb := d.current().OnError; cb != nil {
		(*cb)(err)
	}
}
