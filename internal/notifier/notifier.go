// Package notifier delivers market batches, connection snapshots and order
// lifecycle events to downstream consumers.
package notifier

import (
	"context"
	"errors"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// Notifier is the client notifier sink.
type Notifier interface {
	// PublishMarketBatch delivers one batch of validated market messages. A returned
	// error tells the batcher to keep the batch for a later retry.
	PublishMarketBatch(ctx context.Context, batch []types.MarketMessage) error
	// PublishConnectionStatus delivers a per-stream connection and health snapshot.
	PublishConnectionStatus(ctx context.Context, status types.ConnectionStatusSnapshot) error
	// PublishOrderEvent delivers one order lifecycle event.
	PublishOrderEvent(ctx context.Context, event types.OrderEvent) error
	// PublishTradeUpdate delivers a normalized trading-stream update.
	PublishTradeUpdate(ctx context.Context, update types.TradeUpdate) error
}

// Multi publishes to every notifier in order and joins their errors.
type Multi []Notifier

var _ Notifier = (Multi)(nil)

func (m Multi) PublishMarketBatch(ctx context.Context, batch []types.MarketMessage) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PublishMarketBatch(ctx, batch))
	}

	return errors.Join(errs...)
}

func (m Multi) PublishConnectionStatus(ctx context.Context, status types.ConnectionStatusSnapshot) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PublishConnectionStatus(ctx, status))
	}

	return errors.Join(errs...)
}

func (m Multi) PublishOrderEvent(ctx context.Context, event types.OrderEvent) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PublishOrderEvent(ctx, event))
	}

	return errors.Join(errs...)
}

func (m Multi) PublishTradeUpdate(ctx context.Context, update types.TradeUpdate) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PublishTradeUpdate(ctx, update))
	}

	return errors.Join(errs...)
}
