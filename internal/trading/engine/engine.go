package engine

import (
	"context"
	"net/http"

	"github.com/rxtech-lab/argo-alpaca/internal/config"
	"github.com/rxtech-lab/argo-alpaca/internal/stream"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// Lifecycle callback types for the streaming engine.
// Callbacks run on the goroutine that produced the event and must not block.

// OnEngineStartCallback is called once both streams have been dialed and the
// executor is running.
type OnEngineStartCallback func(status types.ConnectionStatusSnapshot) error

// OnEngineStopCallback is called when Run returns (always called via defer).
type OnEngineStopCallback func(err error)

// OnMarketBatchCallback is called for each validated market-data batch.
type OnMarketBatchCallback func(batch []types.MarketMessage) error

// OnConnectionStatusCallback is called for periodic and on-change status broadcasts.
type OnConnectionStatusCallback func(status types.ConnectionStatusSnapshot) error

// OnOrderEventCallback is called once per order lifecycle transition.
type OnOrderEventCallback func(event types.OrderEvent) error

// OnTradeUpdateCallback is called for every update on the engine's trading stream.
type OnTradeUpdateCallback func(update types.TradeUpdate) error

// OnErrorCallback is called when a non-fatal error occurs, such as a stream
// giving up reconnecting.
type OnErrorCallback func(err error)

// Callbacks holds the lifecycle callback functions.
// All fields are pointers - nil means no callback will be invoked.
type Callbacks struct {
	OnEngineStart      *OnEngineStartCallback
	OnEngineStop       *OnEngineStopCallback
	OnMarketBatch      *OnMarketBatchCallback
	OnConnectionStatus *OnConnectionStatusCallback
	OnOrderEvent       *OnOrderEventCallback
	OnTradeUpdate      *OnTradeUpdateCallback
	OnError            *OnErrorCallback
}

// GetConfigSchema returns the JSON schema of the engine configuration file.
func GetConfigSchema() (string, error) {
	return config.Schema()
}

// AlpacaEngine runs both brokerage streams and the order executor.
//
//nolint:interfacebloat // Engine is a core interface that naturally requires multiple methods
type AlpacaEngine interface {
	// Initialize builds every component from the configuration.
	Initialize(cfg config.Config) error

	// Run connects both streams and starts the executor.
	// Blocks until ctx is cancelled.
	Run(ctx context.Context, callbacks Callbacks) error

	// SubmitOrder queues an order for validation and submission.
	SubmitOrder(ctx context.Context, req types.ExecutorOrderRequest) (types.ExecutorOrderState, error)

	// CancelOrder asks the brokerage to cancel an accepted order.
	CancelOrder(ctx context.Context, id string) error

	// GetOrder returns the record of an order by internal id.
	GetOrder(id string) (types.ExecutorOrderState, error)

	// ListOrders returns every order record in creation order.
	ListOrders() ([]types.ExecutorOrderState, error)

	// Subscribe adds market-data symbols.
	Subscribe(sub stream.Subscription) error

	// Unsubscribe removes market-data symbols.
	Unsubscribe(sub stream.Subscription) error

	// LatestQuote returns the cached quote of a symbol.
	LatestQuote(symbol string) (types.MarketQuote, bool)

	// RecentTrades returns up to limit cached trades of a symbol, newest last.
	RecentTrades(symbol string, limit int) []types.MarketTrade

	// Status returns the connection and health snapshot of both streams.
	Status() types.ConnectionStatusSnapshot

	// Handler returns the ops router serving /healthz, /status and /metrics.
	Handler() http.Handler
}
