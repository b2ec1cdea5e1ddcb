package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/metrics"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

// BatcherConfig holds the queue limits and the bounds every market message must satisfy.
type BatcherConfig struct {
	MaxBatchSize  int           `yaml:"max_batch_size" json:"max_batch_size" validate:"gt=0" jsonschema:"default=100"`
	MaxBatchDelay time.Duration `yaml:"max_batch_delay" json:"max_batch_delay" validate:"gt=0" jsonschema:"default=100ms"`
	MaxQueueSize  int           `yaml:"max_queue_size" json:"max_queue_size" validate:"gtefield=MaxBatchSize" jsonschema:"default=10000"`

	MinPrice  float64 `yaml:"min_price" json:"min_price" validate:"gte=0"`
	MaxPrice  float64 `yaml:"max_price" json:"max_price" validate:"gtfield=MinPrice"`
	MinVolume float64 `yaml:"min_volume" json:"min_volume" validate:"gte=0"`
	MaxVolume float64 `yaml:"max_volume" json:"max_volume" validate:"gtfield=MinVolume"`
	// MaxSpreadPercent bounds (ask-bid)/mid*100. Zero disables the check.
	MaxSpreadPercent float64 `yaml:"max_spread_percent" json:"max_spread_percent" validate:"gte=0"`
}

// BatchSink receives flushed batches.
type BatchSink interface {
	PublishMarketBatch(ctx context.Context, batch []types.MarketMessage) error
}

// MessageBatcher validates market messages, queues them with a drop-oldest
// overflow policy and flushes them to a BatchSink in bounded batches.
type MessageBatcher struct {
	config  BatcherConfig
	sink    BatchSink
	log     *logger.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	queue []types.MarketMessage

	// flushMu serializes deliveries so requeued batches keep their order.
	flushMu sync.Mutex

	loopMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewMessageBatcher(config BatcherConfig, sink BatchSink, log *logger.Logger, m *metrics.Metrics) *MessageBatcher {
	return &MessageBatcher{
		config:  config,
		sink:    sink,
		log:     log.Named("batcher"),
		metrics: m,
		mu:      sync.Mutex{},
		queue:   make([]types.MarketMessage, 0, config.MaxBatchSize),
		flushMu: sync.Mutex{},
		loopMu:  sync.Mutex{},
		stop:    nil,
		wg:      sync.WaitGroup{},
	}
}

// Start runs the periodic flush every MaxBatchDelay until Cleanup or ctx is done.
// Calling Start on a running batcher is a no-op.
func (b *MessageBatcher) Start(ctx context.Context) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()

	if b.stop != nil {
		return
	}

	stop := make(chan struct{})
	b.stop = stop

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.config.MaxBatchDelay)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := b.ProcessMessages(ctx); err != nil {
					b.log.Warn("batch delivery failed, batch requeued", zap.Error(err))
				}
			}
		}
	}()
}

// AddMessage validates msg and queues it. Invalid messages are dropped and
// AddMessage returns false.
func (b *MessageBatcher) AddMessage(msg types.MarketMessage) bool {
	if err := b.ValidateMessage(msg); err != nil {
		b.log.Warn("dropping invalid market message",
			zap.String("type", string(msg.Type)),
			zap.String("symbol", msg.Symbol()),
			zap.Error(err),
		)
		b.metrics.MessageDropped("invalid")

		return false
	}

	b.mu.Lock()
	b.queue = append(b.queue, msg)
	dropped := b.trimLocked()
	depth := len(b.queue)
	b.mu.Unlock()

	if dropped > 0 {
		b.log.Warn("batch queue full, dropped oldest messages",
			zap.Int("dropped", dropped),
			zap.Int("max_queue_size", b.config.MaxQueueSize),
		)
	}

	b.metrics.SetQueueDepth(depth)

	return true
}

// trimLocked drops the oldest entries beyond MaxQueueSize and returns how many were dropped.
func (b *MessageBatcher) trimLocked() int {
	over := len(b.queue) - b.config.MaxQueueSize
	if over <= 0 {
		return 0
	}

	clear(b.queue[:over])
	b.queue = b.queue[over:]

	for i := 0; i < over; i++ {
		b.metrics.MessageDropped("overflow")
	}

	return over
}

// ProcessMessages delivers up to MaxBatchSize queued messages as one batch. On a
// delivery error the batch goes back to the front of the queue and the error is returned.
func (b *MessageBatcher) ProcessMessages(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	n := min(len(b.queue), b.config.MaxBatchSize)
	if n == 0 {
		b.mu.Unlock()

		return nil
	}

	batch := make([]types.MarketMessage, n)
	copy(batch, b.queue[:n])
	clear(b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	if err := b.sink.PublishMarketBatch(ctx, batch); err != nil {
		b.mu.Lock()
		b.queue = append(batch, b.queue...)
		dropped := b.trimLocked()
		depth := len(b.queue)
		b.mu.Unlock()

		if dropped > 0 {
			b.log.Warn("requeued batch overflowed the queue", zap.Int("dropped", dropped))
		}

		b.metrics.BatchFailed()
		b.metrics.SetQueueDepth(depth)

		return errors.Wrap(errors.ErrCodeNotifierPublishFailed, "failed to deliver market batch", err)
	}

	b.metrics.BatchDelivered()
	b.metrics.SetQueueDepth(b.QueueSize())
	b.log.Debug("delivered market batch", zap.Int("size", n))

	return nil
}

// QueueSize returns the number of queued messages.
func (b *MessageBatcher) QueueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

// Cleanup stops the flush timer and clears the queue.
func (b *MessageBatcher) Cleanup() {
	b.loopMu.Lock()
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
	b.loopMu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	b.queue = b.queue[:0]
	b.mu.Unlock()

	b.metrics.SetQueueDepth(0)
}

// ValidateMessage checks msg against the configured bounds.
func (b *MessageBatcher) ValidateMessage(msg types.MarketMessage) error {
	switch msg.Type {
	case types.MarketMessageQuote:
		if msg.Quote == nil {
			return errors.New(errors.ErrCodeInvalidMarketMessage, "quote message without quote")
		}

		return b.validateQuote(*msg.Quote)
	case types.MarketMessageTrade:
		if msg.Trade == nil {
			return errors.New(errors.ErrCodeInvalidMarketMessage, "trade message without trade")
		}

		return b.validateTrade(*msg.Trade)
	case types.MarketMessageBar:
		if msg.Bar == nil {
			return errors.New(errors.ErrCodeInvalidMarketMessage, "bar message without bar")
		}

		return b.validateBar(*msg.Bar)
	default:
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "unknown message type %q", msg.Type)
	}
}

func (b *MessageBatcher) validateQuote(q types.MarketQuote) error {
	if q.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidMarketMessage, "quote without symbol")
	}

	if err := b.checkPrice("bid", q.BidPrice); err != nil {
		return err
	}

	if err := b.checkPrice("ask", q.AskPrice); err != nil {
		return err
	}

	if q.AskPrice < q.BidPrice {
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "crossed quote: ask %v below bid %v", q.AskPrice, q.BidPrice)
	}

	if b.config.MaxSpreadPercent > 0 {
		mid := (q.AskPrice + q.BidPrice) / 2
		if spread := (q.AskPrice - q.BidPrice) / mid * 100; spread > b.config.MaxSpreadPercent {
			return errors.Newf(errors.ErrCodeInvalidMarketMessage, "spread %.4f%% exceeds %.4f%%", spread, b.config.MaxSpreadPercent)
		}
	}

	return nil
}

func (b *MessageBatcher) validateTrade(t types.MarketTrade) error {
	if t.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidMarketMessage, "trade without symbol")
	}

	if err := b.checkPrice("price", t.Price); err != nil {
		return err
	}

	return b.checkVolume("size", t.Size)
}

func (b *MessageBatcher) validateBar(bar types.MarketBar) error {
	if bar.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidMarketMessage, "bar without symbol")
	}

	for _, p := range []struct {
		name  string
		value float64
	}{{"open", bar.Open}, {"high", bar.High}, {"low", bar.Low}, {"close", bar.Close}} {
		if err := b.checkPrice(p.name, p.value); err != nil {
			return err
		}
	}

	if err := b.checkVolume("volume", bar.Volume); err != nil {
		return err
	}

	if bar.High < math.Max(bar.Open, math.Max(bar.Close, bar.Low)) {
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "bar high %v below open/close/low", bar.High)
	}

	if bar.Low > math.Min(bar.Open, math.Min(bar.Close, bar.High)) {
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "bar low %v above open/close/high", bar.Low)
	}

	return nil
}

func (b *MessageBatcher) checkPrice(field string, v float64) error {
	if math.IsNaN(v) || v < b.config.MinPrice || v > b.config.MaxPrice {
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "%s %v outside [%v, %v]", field, v, b.config.MinPrice, b.config.MaxPrice)
	}

	return nil
}

func (b *MessageBatcher) checkVolume(field string, v float64) error {
	if math.IsNaN(v) || v < b.config.MinVolume || v > b.config.MaxVolume {
		return errors.Newf(errors.ErrCodeInvalidMarketMessage, "%s %v outside [%v, %v]", field, v, b.config.MinVolume, b.config.MaxVolume)
	}

	return nil
}
