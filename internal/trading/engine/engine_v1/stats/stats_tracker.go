// Package stats accumulates per-run order statistics and writes them to stats.yaml.
package stats

import (
	"os"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SymbolStats are the fill totals of one symbol.
type SymbolStats struct {
	Fills          int    `yaml:"fills"`
	BuyQty         string `yaml:"buy_qty"`
	SellQty        string `yaml:"sell_qty"`
	FilledNotional string `yaml:"filled_notional"`
}

// SessionStats is the document written to stats.yaml.
type SessionStats struct {
	RunID        string                 `yaml:"run_id"`
	SessionStart time.Time              `yaml:"session_start"`
	UpdatedAt    time.Time              `yaml:"updated_at"`
	Environment  string                 `yaml:"environment"`
	Orders       OrderCounts            `yaml:"orders"`
	BrokerStatus map[string]int         `yaml:"broker_status,omitempty"`
	Symbols      map[string]SymbolStats `yaml:"symbols,omitempty"`
	TradeUpdates int                    `yaml:"trade_updates"`
}

// OrderCounts counts order lifecycle events.
type OrderCounts struct {
	Queued    int `yaml:"queued"`
	Submitted int `yaml:"submitted"`
	Completed int `yaml:"completed"`
	Failed    int `yaml:"failed"`
	Retries   int `yaml:"retries"`
}

type symbolAccumulator struct {
	fills    int
	buyQty   decimal.Decimal
	sellQty  decimal.Decimal
	notional decimal.Decimal
}

// StatsTracker accumulates statistics from order events and trade updates.
type StatsTracker struct {
	runID        string
	sessionStart time.Time
	environment  string
	outputPath   string

	mu           sync.Mutex
	orders       OrderCounts
	brokerStatus map[string]int
	symbols      map[string]*symbolAccumulator
	tradeUpdates int
	updatedAt    time.Time

	logger *logger.Logger
}

// NewStatsTracker creates a tracker that writes to outputPath. An empty
// outputPath disables WriteStatsYAML.
func NewStatsTracker(runID string, sessionStart time.Time, environment string, outputPath string, log *logger.Logger) *StatsTracker {
	return &StatsTracker{
		runID:        runID,
		sessionStart: sessionStart,
		environment:  environment,
		outputPath:   outputPath,
		mu:           sync.Mutex{},
		orders:       OrderCounts{}, //nolint:exhaustruct
		brokerStatus: make(map[string]int),
		symbols:      make(map[string]*symbolAccumulator),
		tradeUpdates: 0,
		updatedAt:    sessionStart,
		logger:       log.Named("stats"),
	}
}

// RecordOrderEvent counts one order lifecycle event.
func (s *StatsTracker) RecordOrderEvent(event types.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case types.OrderEventQueued:
		s.orders.Queued++
	case types.OrderEventSubmitted:
		s.orders.Submitted++
	case types.OrderEventCompleted:
		s.orders.Completed++
	case types.OrderEventFailed:
		s.orders.Failed++
	case types.OrderEventUpdated:
		if event.Order.Status == types.OrderStatusRetrying {
			s.orders.Retries++
		}
	}

	s.updatedAt = event.Timestamp
}

// RecordTradeUpdate counts a trading-stream update. Fill and partial fill
// events add their execution quantity and price to the symbol totals.
func (s *StatsTracker) RecordTradeUpdate(update types.TradeUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradeUpdates++
	s.brokerStatus[string(update.Order.Status)]++
	s.updatedAt = update.Timestamp

	if update.Event != "fill" && update.Event != "partial_fill" {
		return
	}

	qty, err := decimal.NewFromString(update.Qty)
	if err != nil {
		s.logger.Warn("ignoring fill with unparsable qty", zap.String("qty", update.Qty), zap.String("order_id", update.Order.ID))

		return
	}

	price, err := decimal.NewFromString(update.Price)
	if err != nil {
		s.logger.Warn("ignoring fill with unparsable price", zap.String("price", update.Price), zap.String("order_id", update.Order.ID))

		return
	}

	acc, ok := s.symbols[update.Order.Symbol]
	if !ok {
		acc = &symbolAccumulator{
			fills:    0,
			buyQty:   decimal.Zero,
			sellQty:  decimal.Zero,
			notional: decimal.Zero,
		}
		s.symbols[update.Order.Symbol] = acc
	}

	acc.fills++
	acc.notional = acc.notional.Add(qty.Mul(price))

	if update.Order.Side == string(types.OrderSideSell) {
		acc.sellQty = acc.sellQty.Add(qty)
	} else {
		acc.buyQty = acc.buyQty.Add(qty)
	}
}

// Snapshot returns the current statistics.
func (s *StatsTracker) Snapshot() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *StatsTracker) snapshotLocked() SessionStats {
	status := make(map[string]int, len(s.brokerStatus))
	for k, v := range s.brokerStatus {
		status[k] = v
	}

	symbols := make(map[string]SymbolStats, len(s.symbols))
	for name, acc := range s.symbols {
		symbols[name] = SymbolStats{
			Fills:          acc.fills,
			BuyQty:         acc.buyQty.String(),
			SellQty:        acc.sellQty.String(),
			FilledNotional: acc.notional.StringFixed(2),
		}
	}

	return SessionStats{
		RunID:        s.runID,
		SessionStart: s.sessionStart,
		UpdatedAt:    s.updatedAt,
		Environment:  s.environment,
		Orders:       s.orders,
		BrokerStatus: status,
		Symbols:      symbols,
		TradeUpdates: s.tradeUpdates,
	}
}

// WriteStatsYAML writes the current statistics to the output path.
func (s *StatsTracker) WriteStatsYAML() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outputPath == "" {
		return nil
	}

	data, err := yaml.Marshal(s.snapshotLocked())
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to encode stats", err)
	}

	if err := os.WriteFile(s.outputPath, data, 0o600); err != nil {
		return errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to write stats to %s", s.outputPath)
	}

	return nil
}

// ReadStatsYAML loads a stats document written by WriteStatsYAML.
func ReadStatsYAML(path string) (SessionStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionStats{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read stats from %s", path)
	}

	var stats SessionStats
	if err := yaml.Unmarshal(data, &stats); err != nil {
		return SessionStats{}, errors.Wrapf(errors.ErrCodeRecordCorrupted, err, "failed to decode stats from %s", path)
	}

	return stats, nil
}

// OutputPath returns where WriteStatsYAML writes.
func (s *StatsTracker) OutputPath() string {
	return s.outputPath
}
