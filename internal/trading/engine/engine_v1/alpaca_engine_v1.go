package engine_v1

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/argo-alpaca/internal/config"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/metrics"
	"github.com/rxtech-lab/argo-alpaca/internal/notifier"
	"github.com/rxtech-lab/argo-alpaca/internal/stream"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1/prefetch"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1/session"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1/stats"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1/writers"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/executor"
	tradingprovider "github.com/rxtech-lab/argo-alpaca/internal/trading/provider"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/repository"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

const (
	statsFileName        = "stats.yaml"
	tradeUpdatesFileName = "trade_updates.parquet"
	shutdownTimeout      = 5 * time.Second
)

// AlpacaEngineV1 owns both brokerage streams, the message batcher, the order
// executor and the ops HTTP server.
type AlpacaEngineV1 struct {
	config   config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	dispatch   *dispatcher
	nats       *notifier.NATSNotifier
	extraSinks []notifier.Notifier

	tradingProvider tradingprovider.TradingProvider
	repo            repository.OrderRepository

	batcher *stream.MessageBatcher
	market  *stream.Manager
	trading *stream.Manager

	validator *executor.OrderValidator
	submitter *executor.OrderSubmitter
	monitor   *executor.OrderMonitor
	executor  *executor.Executor

	session     *session.Session
	stats       *stats.StatsTracker
	tradeWriter *writers.TradeUpdatesWriter
	prefetch    *prefetch.PrefetchManager

	router *mux.Router
	server *http.Server

	mu          sync.Mutex
	initialized bool
	running     bool
	wg          sync.WaitGroup
}

var _ engine.AlpacaEngine = (*AlpacaEngineV1)(nil)

// NewAlpacaEngineV1 creates an engine. A nil logger falls back to the
// production logger.
func NewAlpacaEngineV1(log *logger.Logger) (*AlpacaEngineV1, error) {
	if log == nil {
		var err error

		log, err = logger.NewLogger()
		if err != nil {
			return nil, err
		}
	}

	return &AlpacaEngineV1{
		log: log.Named("engine"),
	}, nil
}

// SetTradingProvider replaces the REST provider built from the configuration.
// Must be called before Initialize.
func (e *AlpacaEngineV1) SetTradingProvider(provider tradingprovider.TradingProvider) {
	e.tradingProvider = provider
}

// AddNotifier registers an additional sink. Must be called before Initialize.
func (e *AlpacaEngineV1) AddNotifier(n notifier.Notifier) {
	e.extraSinks = append(e.extraSinks, n)
}

// Initialize implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Initialize(cfg config.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return errors.New(errors.ErrCodeInvalidConfiguration, "engine is already initialized")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	e.config = cfg

	if err := e.initMetrics(); err != nil {
		return err
	}

	e.initSinks()

	if err := e.initProvider(); err != nil {
		return err
	}

	if err := e.initRepository(); err != nil {
		return err
	}

	if err := e.initSession(); err != nil {
		_ = e.repo.Close()

		return err
	}

	e.dispatch.stats = e.stats
	e.initStreams()
	e.initExecutor()
	e.prefetch = prefetch.NewPrefetchManager(e.tradingProvider, e.market, cfg.Prefetch.Timeout, e.log)
	e.router = e.newRouter()
	e.initialized = true

	e.log.Info("engine initialized",
		zap.String("environment", cfg.Environment),
		zap.String("market_data_url", cfg.Streams.MarketDataURL),
		zap.String("trading_url", cfg.TradingStreamURL()),
		zap.String("repository", cfg.Repository.Driver),
		zap.Bool("nats", cfg.Notifier.NATSEnabled()),
	)

	return nil
}

func (e *AlpacaEngineV1) initMetrics() error {
	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(e.registry)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to register metrics", err)
	}

	e.metrics = m

	return nil
}

func (e *AlpacaEngineV1) initSinks() {
	var sinks notifier.Multi

	if e.config.Notifier.Log {
		sinks = append(sinks, notifier.NewLogNotifier(e.log))
	}

	if e.config.Notifier.NATSEnabled() {
		e.nats = notifier.NewNATSNotifier(e.config.Notifier.NATS, e.log)
		sinks = append(sinks, e.nats)
	}

	sinks = append(sinks, e.extraSinks...)
	e.dispatch = newDispatcher(sinks, e.log)
}

func (e *AlpacaEngineV1) initProvider() error {
	if e.tradingProvider != nil {
		return nil
	}

	provider, err := tradingprovider.NewTradingProvider(e.config.ProviderType(), &e.config.Alpaca, e.log)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidProvider, "failed to create trading provider", err)
	}

	e.tradingProvider = provider

	return nil
}

func (e *AlpacaEngineV1) initRepository() error {
	switch e.config.Repository.Driver {
	case config.RepositoryDuckDB:
		repo, err := repository.NewDuckDBRepository(e.config.Repository.Path, e.log)
		if err != nil {
			return err
		}

		e.repo = repo
	default:
		e.repo = repository.NewMemoryRepository()
	}

	return nil
}

func (e *AlpacaEngineV1) initSession() error {
	now := time.Now()

	if e.config.Session.DataOutputPath == "" {
		e.stats = stats.NewStatsTracker("", now, e.config.Environment, "", e.log)

		return nil
	}

	sess, err := session.Open(e.config.Session.DataOutputPath, now, e.log)
	if err != nil {
		return err
	}

	writer := writers.NewTradeUpdatesWriter(sess.Path(tradeUpdatesFileName))
	if err := writer.Initialize(); err != nil {
		return err
	}

	e.session = sess
	e.tradeWriter = writer
	e.stats = stats.NewStatsTracker(sess.RunID, sess.StartedAt, e.config.Environment, sess.Path(statsFileName), e.log)

	return nil
}

func (e *AlpacaEngineV1) initStreams() {
	e.batcher = stream.NewMessageBatcher(e.config.Batcher, e.dispatch, e.log, e.metrics)

	e.market = stream.NewMarketDataManager(e.config.MarketDataManagerConfig(), e.batcher, stream.Handlers{
		OnStateChange: e.onStateChange,
		OnGiveUp:      e.onGiveUp,
	}, e.log, e.metrics)

	e.trading = stream.NewTradingManager(e.config.TradingManagerConfig(), stream.Handlers{
		OnStateChange: e.onStateChange,
		OnTradeUpdate: e.onTradeUpdate,
		OnGiveUp:      e.onGiveUp,
	}, e.log, e.metrics)
}

func (e *AlpacaEngineV1) initExecutor() {
	e.validator = executor.NewOrderValidator(e.tradingProvider, e.log).WithQuoteSource(e.market)
	e.submitter = executor.NewOrderSubmitter(e.tradingProvider, e.log)
	e.monitor = executor.NewOrderMonitor(e.config.TradingManagerConfig(), e.tradingProvider, executor.MonitorHandlers{
		OnStateChange: e.onStateChange,
		OnGiveUp: func(err error) {
			e.onGiveUp(types.StreamOrderUpdates, err)
		},
	}, e.log, e.metrics)
	e.executor = executor.NewExecutor(
		e.config.ExecutorConfig(),
		e.repo,
		e.validator,
		e.submitter,
		e.monitor,
		e.dispatch,
		e.log,
		e.metrics,
	)
	e.monitor.AddObserver(e.executor)
}

func (e *AlpacaEngineV1) onStateChange(status types.StreamStatus) {
	e.log.Debug("stream state changed",
		zap.String("stream", string(status.Stream)),
		zap.String("state", string(status.State)),
	)

	e.broadcastStatus()
}

func (e *AlpacaEngineV1) onGiveUp(streamType types.StreamType, err error) {
	e.log.Error("stream gave up reconnecting", zap.String("stream", string(streamType)), zap.Error(err))
	e.dispatch.reportError(err)
	e.broadcastStatus()
}

func (e *AlpacaEngineV1) onTradeUpdate(update types.TradeUpdate) {
	e.stats.RecordTradeUpdate(update)

	if e.tradeWriter != nil {
		if err := e.tradeWriter.Write(update); err != nil {
			e.log.Warn("failed to record trade update", zap.String("order_id", update.Order.ID), zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Executor.PublishTimeout)
	defer cancel()

	if err := e.dispatch.PublishTradeUpdate(ctx, update); err != nil {
		e.log.Warn("failed to publish trade update", zap.String("event", update.Event), zap.Error(err))
	}
}

func (e *AlpacaEngineV1) broadcastStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Executor.PublishTimeout)
	defer cancel()

	if err := e.dispatch.PublishConnectionStatus(ctx, e.Status()); err != nil {
		e.log.Warn("failed to publish connection status", zap.Error(err))
	}
}

// Run implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Run(ctx context.Context, callbacks engine.Callbacks) (runErr error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeInvalidConfiguration, "engine is not initialized")
	}

	if e.running {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeInvalidConfiguration, "engine is already running")
	}

	e.running = true
	e.mu.Unlock()

	e.dispatch.setCallbacks(callbacks)

	defer func() {
		e.shutdown()

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(runErr)
		}
	}()

	if e.nats != nil {
		if err := e.nats.Connect(); err != nil {
			return err
		}
	}

	if e.config.Prefetch.Enabled {
		e.prefetchQuotes(ctx)
	}

	if err := e.startStreams(ctx); err != nil {
		return err
	}

	if err := e.executor.Start(ctx); err != nil {
		return err
	}

	e.startOpsServer()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	e.wg.Add(1)

	go e.statusLoop(loopCtx)

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(e.Status()); err != nil {
			return err
		}
	}

	<-ctx.Done()

	return nil
}

func (e *AlpacaEngineV1) prefetchQuotes(ctx context.Context) {
	symbols := e.config.Symbols.Quotes
	if len(symbols) == 0 {
		return
	}

	result, err := e.prefetch.ExecutePrefetch(ctx, symbols)
	if err != nil {
		e.log.Warn("quote prefetch incomplete", zap.Strings("skipped", result.Skipped), zap.Error(err))
	}
}

// startStreams dials both streams. A failed dial is left to the reconnect
// coordinator, so only a cancelled context aborts startup.
func (e *AlpacaEngineV1) startStreams(ctx context.Context) error {
	if err := e.market.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.log.Warn("market data stream connect failed, reconnecting", zap.Error(err))
		e.dispatch.reportError(err)
	}

	if sub := e.config.Subscription(); !sub.IsEmpty() {
		if err := e.market.Subscribe(sub); err != nil {
			e.log.Warn("initial subscription deferred", zap.Error(err))
		}
	}

	if err := e.trading.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.log.Warn("trading stream connect failed, reconnecting", zap.Error(err))
		e.dispatch.reportError(err)
	}

	if err := e.monitor.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.log.Warn("order monitor connect failed, reconnecting", zap.Error(err))
		e.dispatch.reportError(err)
	}

	return nil
}

func (e *AlpacaEngineV1) startOpsServer() {
	if e.config.Ops.Address == "" {
		return
	}

	e.server = &http.Server{
		Addr:              e.config.Ops.Address,
		Handler:           e.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		e.log.Info("ops server listening", zap.String("address", e.config.Ops.Address))

		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error("ops server failed", zap.Error(err))
			e.dispatch.reportError(err)
		}
	}()
}

func (e *AlpacaEngineV1) statusLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Ops.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.broadcastStatus()
			e.persistRunOutput()
		}
	}
}

func (e *AlpacaEngineV1) persistRunOutput() {
	if err := e.stats.WriteStatsYAML(); err != nil {
		e.log.Warn("failed to write stats", zap.Error(err))
	}

	if e.tradeWriter != nil {
		if err := e.tradeWriter.Flush(); err != nil {
			e.log.Warn("failed to flush trade updates", zap.Error(err))
		}
	}
}

// shutdown stops components in reverse dependency order.
func (e *AlpacaEngineV1) shutdown() {
	e.executor.Stop()

	if err := e.monitor.Close(); err != nil {
		e.log.Warn("failed to close order monitor", zap.Error(err))
	}

	if err := e.trading.Close(); err != nil {
		e.log.Warn("failed to close trading stream", zap.Error(err))
	}

	e.drainBatches()

	if err := e.market.Close(); err != nil {
		e.log.Warn("failed to close market data stream", zap.Error(err))
	}

	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := e.server.Shutdown(ctx); err != nil {
			e.log.Warn("failed to stop ops server", zap.Error(err))
		}

		cancel()
		e.server = nil
	}

	e.wg.Wait()
	e.persistRunOutput()

	if e.tradeWriter != nil {
		if err := e.tradeWriter.Close(); err != nil {
			e.log.Warn("failed to close trade update writer", zap.Error(err))
		}
	}

	if err := e.repo.Close(); err != nil {
		e.log.Warn("failed to close repository", zap.Error(err))
	}

	if e.nats != nil {
		if err := e.nats.Close(); err != nil {
			e.log.Warn("failed to close nats", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.running = false
	e.initialized = false
	e.mu.Unlock()

	e.log.Info("engine stopped")
}

// drainBatches delivers whatever the batcher still holds before the market
// stream is closed and the queue is cleared.
func (e *AlpacaEngineV1) drainBatches() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for e.batcher.QueueSize() > 0 {
		if err := e.batcher.ProcessMessages(ctx); err != nil {
			e.log.Warn("dropping undelivered market messages",
				zap.Int("count", e.batcher.QueueSize()),
				zap.Error(err),
			)

			return
		}
	}
}

// SubmitOrder implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) SubmitOrder(ctx context.Context, req types.ExecutorOrderRequest) (types.ExecutorOrderState, error) {
	if err := e.ready(); err != nil {
		return types.ExecutorOrderState{}, err
	}

	return e.executor.SubmitOrder(ctx, req)
}

// CancelOrder implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) CancelOrder(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.executor.CancelOrder(ctx, id)
}

// GetOrder implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) GetOrder(id string) (types.ExecutorOrderState, error) {
	if err := e.ready(); err != nil {
		return types.ExecutorOrderState{}, err
	}

	return e.executor.GetOrder(id)
}

// ListOrders implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) ListOrders() ([]types.ExecutorOrderState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	return e.executor.ListOrders()
}

// Subscribe implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Subscribe(sub stream.Subscription) error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.market.Subscribe(sub)
}

// Unsubscribe implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Unsubscribe(sub stream.Subscription) error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.market.Unsubscribe(sub)
}

// LatestQuote implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) LatestQuote(symbol string) (types.MarketQuote, bool) {
	if e.market == nil {
		return types.MarketQuote{}, false
	}

	return e.market.LatestQuote(symbol)
}

// RecentTrades implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) RecentTrades(symbol string, limit int) []types.MarketTrade {
	if e.market == nil {
		return nil
	}

	return e.market.RecentTrades(symbol, limit)
}

// Status implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Status() types.ConnectionStatusSnapshot {
	snapshot := types.ConnectionStatusSnapshot{Timestamp: time.Now()}

	if e.market != nil {
		snapshot.Streams = append(snapshot.Streams, e.market.Status())
	}

	if e.trading != nil {
		snapshot.Streams = append(snapshot.Streams, e.trading.Status())
	}

	if e.monitor != nil {
		snapshot.Streams = append(snapshot.Streams, e.monitor.Status())
	}

	return snapshot
}

// Stats returns the order and fill counters of the current run.
func (e *AlpacaEngineV1) Stats() stats.SessionStats {
	if e.stats == nil {
		return stats.SessionStats{}
	}

	return e.stats.Snapshot()
}

// Session returns the run output folder, or nil when run output is disabled.
func (e *AlpacaEngineV1) Session() *session.Session {
	return e.session
}

// Handler implements engine.AlpacaEngine.
func (e *AlpacaEngineV1) Handler() http.Handler {
	if e.router == nil {
		return http.NotFoundHandler()
	}

	return e.router
}

func (e *AlpacaEngineV1) ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return errors.New(errors.ErrCodeInvalidConfiguration, "engine is not initialized")
	}

	return nil
}

func (e *AlpacaEngineV1) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", e.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", e.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/stats", e.handleStats).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

func (e *AlpacaEngineV1) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := e.Status()
	code := http.StatusOK

	for _, s := range status.Streams {
		if s.State != types.ConnectionStateAuthenticated || !s.Healthy {
			code = http.StatusServiceUnavailable

			break
		}
	}

	writeJSON(w, code, status)
}

func (e *AlpacaEngineV1) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, e.Status())
}

func (e *AlpacaEngineV1) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, e.Stats())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
