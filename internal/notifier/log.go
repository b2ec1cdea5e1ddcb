package notifier

import (
	"context"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"go.uber.org/zap"
)

// LogNotifier writes every event to the structured log. It is the default sink
// when no transport is configured.
type LogNotifier struct {
	log *logger.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

func (n *LogNotifier) PublishMarketBatch(_ context.Context, batch []types.MarketMessage) error {
	n.log.Debug("market batch", zap.Int("size", len(batch)))

	return nil
}

func (n *LogNotifier) PublishConnectionStatus(_ context.Context, status types.ConnectionStatusSnapshot) error {
	for _, s := range status.Streams {
		n.log.Debug("connection status",
			zap.String("stream", string(s.Stream)),
			zap.String("state", string(s.State)),
			zap.Bool("healthy", s.Healthy),
			zap.Int64("messages", s.Metrics.MessageCount),
			zap.Int64("errors", s.Metrics.ErrorCount),
		)
	}

	return nil
}

func (n *LogNotifier) PublishOrderEvent(_ context.Context, event types.OrderEvent) error {
	n.log.Info("order event",
		zap.String("event", string(event.Type)),
		zap.String("order_id", event.Order.ID),
		zap.String("status", string(event.Order.Status)),
		zap.Strings("errors", event.Errors),
	)

	return nil
}

func (n *LogNotifier) PublishTradeUpdate(_ context.Context, update types.TradeUpdate) error {
	n.log.Info("trade update",
		zap.String("event", update.Event),
		zap.String("broker_order_id", update.Order.ID),
		zap.String("status", string(update.Order.Status)),
	)

	return nil
}
