package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/metrics"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

// ManagerConfig configures one stream connection.
type ManagerConfig struct {
	URL       string
	APIKey    string
	APISecret string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// HealthCheckInterval is how often the last-message age is compared with HealthCheckTimeout.
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	// PingInterval of zero disables keepalive pings.
	PingInterval time.Duration
	Reconnect    ReconnectConfig

	// Market-data stream only.
	RecentTrades    int
	QuoteTTL        time.Duration
	CleanupInterval time.Duration
}

// Handlers receive stream events. They are called without the manager's lock held.
type Handlers struct {
	OnStateChange func(status types.StreamStatus)
	OnTradeUpdate func(update types.TradeUpdate)
	OnGiveUp      func(stream types.StreamType, err error)
}

// Manager owns the socket of one upstream feed: it dials, authenticates,
// decodes frames and hands retry decisions to its ReconnectionCoordinator.
type Manager struct {
	stream      types.StreamType
	config      ManagerConfig
	handlers    Handlers
	log         *logger.Logger
	metrics     *metrics.Metrics
	dialer      *websocket.Dialer
	batcher     *MessageBatcher
	cache       *MarketCache
	reconnector *ReconnectionCoordinator

	mu          sync.Mutex
	conn        *websocket.Conn
	generation  uint64
	state       types.ConnectionState
	connMetrics types.ConnectionMetrics
	lastErr     error
	gaveUp      bool
	closed      bool
	subs        subscriptionSet
	pingSentAt  time.Time
	runCtx      context.Context
	bgCancel    context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewMarketDataManager creates the manager for the market-data stream. Valid
// quotes, trades and bars are handed to batcher and cached.
func NewMarketDataManager(config ManagerConfig, batcher *MessageBatcher, handlers Handlers, log *logger.Logger, m *metrics.Metrics) *Manager {
	return newManager(types.StreamMarketData, config, batcher, NewMarketCache(config.RecentTrades), handlers, log, m)
}

// NewTradingManager creates a manager for the trading stream. Every trade update
// is passed to handlers.OnTradeUpdate.
func NewTradingManager(config ManagerConfig, handlers Handlers, log *logger.Logger, m *metrics.Metrics) *Manager {
	return newManager(types.StreamTrading, config, nil, nil, handlers, log, m)
}

// NewOrderUpdatesManager creates a trading-feed manager reported as
// StreamOrderUpdates, for a consumer that needs a socket of its own.
func NewOrderUpdatesManager(config ManagerConfig, handlers Handlers, log *logger.Logger, m *metrics.Metrics) *Manager {
	return newManager(types.StreamOrderUpdates, config, nil, nil, handlers, log, m)
}

func newManager(
	stream types.StreamType,
	config ManagerConfig,
	batcher *MessageBatcher,
	cache *MarketCache,
	handlers Handlers,
	log *logger.Logger,
	m *metrics.Metrics,
) *Manager {
	named := log.Named("stream").With(zap.String("stream", string(stream)))

	mgr := &Manager{
		stream:   stream,
		config:   config,
		handlers: handlers,
		log:      named,
		metrics:  m,
		//nolint:exhaustruct
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		batcher:     batcher,
		cache:       cache,
		reconnector: nil,
		mu:          sync.Mutex{},
		conn:        nil,
		generation:  0,
		state:       types.ConnectionStateDisconnected,
		connMetrics: types.ConnectionMetrics{}, //nolint:exhaustruct
		lastErr:     nil,
		gaveUp:      false,
		closed:      false,
		subs:        newSubscriptionSet(),
		pingSentAt:  time.Time{},
		runCtx:      context.Background(),
		bgCancel:    nil,
		writeMu:     sync.Mutex{},
		wg:          sync.WaitGroup{},
	}

	mgr.reconnector = NewReconnectionCoordinator(stream, config.Reconnect, ReconnectHandlers{
		OnReconnect: mgr.handleReconnect,
		OnGiveUp:    mgr.handleGiveUp,
		OnScheduled: mgr.handleScheduled,
	}, named)

	return mgr
}

// Connect opens the socket and sends the authentication payload. A call while
// the stream is already open or connecting is a no-op. Connecting a stream that
// gave up clears the give-up latch and the attempt counter.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.IsOpen() {
		m.mu.Unlock()

		return nil
	}

	m.closed = false
	wasGaveUp := m.gaveUp
	m.gaveUp = false
	m.mu.Unlock()

	if wasGaveUp {
		m.log.Info("restarting stream after give-up")
		m.reconnector.ResetReconnectAttempts()
	}

	m.startBackground()

	return m.dial(ctx)
}

func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return errors.New(errors.ErrCodeStreamClosed, "stream is closed")
	}

	if m.state.IsOpen() {
		m.mu.Unlock()

		return nil
	}

	// a socket left open after an error ack is replaced
	m.dropConnLocked()
	status := m.setStateLocked(types.ConnectionStateConnecting)
	m.mu.Unlock()
	m.notifyState(status)

	m.log.Info("connecting", zap.String("url", m.config.URL))

	conn, resp, err := m.dialer.DialContext(ctx, m.config.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		wsErr := errors.NewWebSocketError(errors.WSCodeDialFailed, string(m.stream), "dial failed", err)
		m.fail(wsErr)
		m.reconnector.HandleError(wsErr)

		return wsErr
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()

		return errors.New(errors.ErrCodeStreamClosed, "stream closed while connecting")
	}

	m.generation++
	gen := m.generation
	m.conn = conn
	m.connMetrics.LastMessageTime = time.Now()
	status = m.setStateLocked(types.ConnectionStateConnected)
	m.mu.Unlock()
	m.notifyState(status)

	conn.SetPongHandler(func(string) error {
		m.handlePong(gen)

		return nil
	})

	go m.readLoop(conn, gen)

	if err := m.authenticate(); err != nil {
		m.fail(err)
		m.reconnector.HandleError(err)

		return err
	}

	return nil
}

func (m *Manager) authenticate() error {
	if m.stream == types.StreamMarketData {
		return m.writeJSON(newMarketAuthMessage(m.config.APIKey, m.config.APISecret))
	}

	return m.writeJSON(newTradingAuthMessage(m.config.APIKey, m.config.APISecret))
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)

			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		m.handleFrame(gen, data)
	}
}

func (m *Manager) handleReadError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()

		return
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	code := errors.WSCodeReadFailed

	var closeErr *websocket.CloseError
	if stderrors.As(err, &closeErr) {
		code = closeErr.Code
	}

	if code != websocket.CloseNormalClosure {
		m.connMetrics.ErrorCount++
	}

	wsErr := errors.NewWebSocketError(code, string(m.stream), "connection lost", err)
	m.lastErr = wsErr
	status := m.setStateLocked(types.ConnectionStateDisconnected)
	m.mu.Unlock()

	m.notifyState(status)
	m.metrics.StreamError(m.stream)
	m.log.Warn("stream disconnected", zap.Error(wsErr))
	m.reconnector.HandleDisconnect()
}

func (m *Manager) handleFrame(gen uint64, data []byte) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()

		return
	}

	m.connMetrics.MessageCount++
	m.connMetrics.LastMessageTime = time.Now()
	m.mu.Unlock()

	if m.stream == types.StreamMarketData {
		m.handleMarketFrame(data)

		return
	}

	m.handleTradingFrame(data)
}

func (m *Manager) handleMarketFrame(data []byte) {
	frames, err := decodeMarketFrames(data)
	if err != nil {
		m.handleMalformed(err)

		return
	}

	for _, f := range frames {
		tag := f.tag()
		m.metrics.MessageReceived(m.stream, tag)

		switch tag {
		case tagSuccess:
			switch msg := f.message(); msg {
			case msgAuthenticated:
				m.onAuthenticated()
			default:
				m.log.Debug("success ack", zap.String("message", msg))
			}
		case tagError:
			alpacaErr := errors.ClassifyAlpacaError(int(f.integer("code")), f.message())
			m.log.Error("stream error ack", zap.Error(alpacaErr))
			m.fail(alpacaErr)
			m.reconnector.HandleError(alpacaErr)
		case tagSubscription:
			m.log.Info("subscription confirmed",
				zap.Strings("trades", f.strings("trades")),
				zap.Strings("quotes", f.strings("quotes")),
				zap.Strings("bars", f.strings("bars")),
			)
		case tagQuote:
			q, err := f.quote()
			if err != nil {
				m.handleMalformed(err)

				continue
			}

			if m.batcher.AddMessage(types.NewQuoteMessage(q)) {
				m.cache.AddQuote(q)
			}
		case tagTrade:
			t, err := f.trade()
			if err != nil {
				m.handleMalformed(err)

				continue
			}

			if m.batcher.AddMessage(types.NewTradeMessage(t)) {
				m.cache.AddTrade(t)
			}
		case tagBar:
			b, err := f.bar()
			if err != nil {
				m.handleMalformed(err)

				continue
			}

			m.batcher.AddMessage(types.NewBarMessage(b))
		default:
			m.log.Info("dropping message with unknown tag", zap.String("tag", tag))
		}
	}
}

func (m *Manager) handleTradingFrame(data []byte) {
	frame, err := decodeTradingFrame(data)
	if err != nil {
		m.handleMalformed(err)

		return
	}

	m.metrics.MessageReceived(m.stream, frame.Stream)

	switch frame.Stream {
	case streamAuthorization:
		var auth authorizationData
		if err := json.Unmarshal(frame.Data, &auth); err != nil {
			m.handleMalformed(errors.Wrap(errors.ErrCodeStreamDecodeFailed, "malformed authorization frame", err))

			return
		}

		if auth.Status == statusAuthorized {
			m.onAuthenticated()

			return
		}

		authErr := errors.ClassifyAlpacaError(errors.AlpacaCodeAuthFailed, "trading stream authorization "+auth.Status)
		m.log.Error("trading stream authorization rejected", zap.Error(authErr))
		m.fail(authErr)
		m.reconnector.HandleError(authErr)
	case streamListening:
		var listening listenData
		_ = json.Unmarshal(frame.Data, &listening)
		m.log.Info("listening", zap.Strings("streams", listening.Streams))
	case streamTradeUpdates:
		var update types.TradeUpdate
		if err := json.Unmarshal(frame.Data, &update); err != nil {
			m.handleMalformed(errors.Wrap(errors.ErrCodeStreamDecodeFailed, "malformed trade update", err))

			return
		}

		if m.handlers.OnTradeUpdate != nil {
			m.handlers.OnTradeUpdate(update)
		}
	default:
		m.log.Info("dropping message for unknown stream", zap.String("stream_name", frame.Stream))
	}
}

// handleMalformed reports a decode failure without closing the socket.
func (m *Manager) handleMalformed(err error) {
	wsErr := errors.NewWebSocketError(errors.WSCodeMalformedFrame, string(m.stream), "malformed frame", err)

	m.mu.Lock()
	m.connMetrics.ErrorCount++
	m.lastErr = wsErr
	m.mu.Unlock()

	m.metrics.StreamError(m.stream)
	m.log.Warn("malformed frame", zap.Error(err))
	m.reconnector.HandleError(wsErr)
}

func (m *Manager) onAuthenticated() {
	m.mu.Lock()
	status := m.setStateLocked(types.ConnectionStateAuthenticated)
	m.lastErr = nil
	subs := m.subs.all()
	m.mu.Unlock()

	m.notifyState(status)
	m.reconnector.ResetReconnectAttempts()
	m.log.Info("authenticated")

	var err error

	switch {
	case m.stream != types.StreamMarketData:
		err = m.writeJSON(newListenMessage())
	case !subs.IsEmpty():
		err = m.writeJSON(newSubscriptionMessage("subscribe", subs))
	}

	if err != nil {
		m.fail(err)
		m.reconnector.HandleError(err)
	}
}

// fail records err and moves the stream to the error state.
func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.connMetrics.ErrorCount++
	m.lastErr = err
	status := m.setStateLocked(types.ConnectionStateError)
	m.mu.Unlock()

	m.metrics.StreamError(m.stream)
	m.notifyState(status)
}

func (m *Manager) handleReconnect(attempt int) {
	m.mu.Lock()
	if m.closed || m.gaveUp {
		m.mu.Unlock()

		return
	}

	switch m.state {
	case types.ConnectionStateAuthenticated:
		m.mu.Unlock()
		m.log.Debug("reconnect fired on a healthy stream", zap.Int("attempt", attempt))
		m.reconnector.ResetReconnectAttempts()

		return
	case types.ConnectionStateConnecting, types.ConnectionStateConnected:
		// a handshake is in flight and reports its own outcome
		m.mu.Unlock()

		return
	default:
	}

	m.dropConnLocked()
	ctx := m.runCtx
	m.mu.Unlock()

	m.log.Info("reconnecting", zap.Int("attempt", attempt))
	_ = m.dial(ctx)
}

func (m *Manager) handleScheduled(_ int, _ time.Duration) {
	m.mu.Lock()
	m.connMetrics.ReconnectCount++
	m.mu.Unlock()

	m.metrics.ReconnectScheduled(m.stream)
}

func (m *Manager) handleGiveUp(err error) {
	m.mu.Lock()
	m.gaveUp = true
	m.dropConnLocked()

	if err != nil {
		m.lastErr = err
	}

	status := m.setStateLocked(types.ConnectionStateError)
	m.mu.Unlock()

	m.notifyState(status)
	m.log.Error("stream gave up reconnecting; restart required", zap.Error(err))

	if m.handlers.OnGiveUp != nil {
		m.handlers.OnGiveUp(m.stream, errors.Wrap(errors.ErrCodeStreamGaveUp, "reconnect attempts exhausted", err))
	}
}

// dropConnLocked closes the current socket and invalidates its read loop.
func (m *Manager) dropConnLocked() {
	m.generation++

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) startBackground() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bgCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.runCtx = ctx
	m.bgCancel = cancel

	if m.batcher != nil {
		m.batcher.Start(ctx)
	}

	m.wg.Add(1)

	go m.maintain(ctx)
}

func (m *Manager) maintain(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config.HealthCheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	health := time.NewTicker(interval)
	defer health.Stop()

	var pingC, cleanupC <-chan time.Time

	if m.config.PingInterval > 0 {
		ping := time.NewTicker(m.config.PingInterval)
		defer ping.Stop()

		pingC = ping.C
	}

	if m.cache != nil && m.config.CleanupInterval > 0 && m.config.QuoteTTL > 0 {
		cleanup := time.NewTicker(m.config.CleanupInterval)
		defer cleanup.Stop()

		cleanupC = cleanup.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			m.checkHealth()
		case <-pingC:
			m.ping()
		case <-cleanupC:
			if n := m.cache.PruneQuotes(time.Now().Add(-m.config.QuoteTTL)); n > 0 {
				m.log.Debug("pruned stale quotes", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) checkHealth() {
	if m.config.HealthCheckTimeout <= 0 {
		return
	}

	m.mu.Lock()
	if m.state != types.ConnectionStateConnected && m.state != types.ConnectionStateAuthenticated {
		m.mu.Unlock()

		return
	}

	idle := time.Since(m.connMetrics.LastMessageTime)
	if idle < m.config.HealthCheckTimeout {
		m.mu.Unlock()

		return
	}

	m.dropConnLocked()
	m.connMetrics.ErrorCount++
	err := errors.NewWebSocketError(errors.WSCodeHealthTimeout, string(m.stream),
		fmt.Sprintf("no message for %s", idle.Round(time.Millisecond)), nil)
	m.lastErr = err
	status := m.setStateLocked(types.ConnectionStateError)
	m.mu.Unlock()

	m.notifyState(status)
	m.metrics.StreamError(m.stream)
	m.log.Warn("health check failed", zap.Duration("idle", idle))
	m.reconnector.HandleError(err)
}

func (m *Manager) ping() {
	m.mu.Lock()
	conn := m.conn
	m.pingSentAt = time.Now()
	m.mu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.writeTimeout())); err != nil {
		m.log.Debug("ping failed", zap.Error(err))
	}
}

func (m *Manager) handlePong(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()

		return
	}

	now := time.Now()
	latency := now.Sub(m.pingSentAt)
	m.connMetrics.Latency = latency
	m.connMetrics.LastMessageTime = now
	m.mu.Unlock()

	m.metrics.ObserveLatency(m.stream, latency.Seconds())
}

func (m *Manager) writeTimeout() time.Duration {
	if m.config.WriteTimeout > 0 {
		return m.config.WriteTimeout
	}

	return 10 * time.Second
}

func (m *Manager) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStreamWriteFailed, "failed to encode frame", err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return errors.Newf(errors.ErrCodeStreamNotConnected, "%s stream is not connected", m.stream)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout()))

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.NewWebSocketError(errors.WSCodeWriteFailed, string(m.stream), "write failed", err)
	}

	return nil
}

// Subscribe tracks sub and, when authenticated, subscribes to the new symbols.
// Tracked symbols are resubscribed after every successful authentication.
func (m *Manager) Subscribe(sub Subscription) error {
	return m.updateSubscription("subscribe", sub)
}

// Unsubscribe stops tracking sub and, when authenticated, unsubscribes from it.
func (m *Manager) Unsubscribe(sub Subscription) error {
	return m.updateSubscription("unsubscribe", sub)
}

func (m *Manager) updateSubscription(action string, sub Subscription) error {
	if m.stream != types.StreamMarketData {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s stream does not support subscriptions", m.stream)
	}

	m.mu.Lock()

	var delta Subscription
	if action == "subscribe" {
		delta = m.subs.add(sub)
	} else {
		delta = m.subs.remove(sub)
	}

	authenticated := m.state == types.ConnectionStateAuthenticated
	m.mu.Unlock()

	if delta.IsEmpty() || !authenticated {
		return nil
	}

	return m.writeJSON(newSubscriptionMessage(action, delta))
}

// Subscriptions returns every tracked symbol.
func (m *Manager) Subscriptions() Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.subs.all()
}

// Close stops background work, cancels pending reconnects, closes the socket
// and clears the batch queue.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true

	if m.conn != nil {
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}

	m.dropConnLocked()
	cancel := m.bgCancel
	m.bgCancel = nil
	status := m.setStateLocked(types.ConnectionStateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.wg.Wait()
	m.reconnector.Cleanup()

	if m.batcher != nil {
		m.batcher.Cleanup()
	}

	m.notifyState(status)
	m.log.Info("stream closed")

	return nil
}

// ResetReconnectAttempts clears the reconnect counter of this stream.
func (m *Manager) ResetReconnectAttempts() {
	m.reconnector.ResetReconnectAttempts()
}

// Stream returns which feed this manager owns.
func (m *Manager) Stream() types.StreamType {
	return m.stream
}

// State returns the current connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Metrics returns a copy of the connection metrics.
func (m *Manager) Metrics() types.ConnectionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connMetrics
}

// Status returns the current status snapshot of the stream.
func (m *Manager) Status() types.StreamStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statusLocked()
}

// LatestQuote returns the cached quote for symbol on the market-data stream.
func (m *Manager) LatestQuote(symbol string) (types.MarketQuote, bool) {
	if m.cache == nil {
		return types.MarketQuote{}, false //nolint:exhaustruct
	}

	return m.cache.LatestQuote(symbol)
}

// SeedQuote caches q without passing it to the batcher. A newer cached quote wins.
func (m *Manager) SeedQuote(q types.MarketQuote) {
	if m.cache == nil {
		return
	}

	m.cache.AddQuote(q)
}

// RecentTrades returns up to limit buffered trades for symbol, newest first.
func (m *Manager) RecentTrades(symbol string, limit int) []types.MarketTrade {
	if m.cache == nil {
		return nil
	}

	return m.cache.RecentTrades(symbol, limit)
}

func (m *Manager) statusLocked() types.StreamStatus {
	lastErr := ""
	if m.lastErr != nil {
		lastErr = m.lastErr.Error()
	}

	return types.StreamStatus{
		Stream:  m.stream,
		State:   m.state,
		Metrics: m.connMetrics,
		Healthy: m.state == types.ConnectionStateAuthenticated &&
			time.Since(m.connMetrics.LastMessageTime) < m.config.HealthCheckTimeout,
		GaveUp:    m.gaveUp,
		LastError: lastErr,
	}
}

// setStateLocked returns the new status when the state changed, nil otherwise.
func (m *Manager) setStateLocked(state types.ConnectionState) *types.StreamStatus {
	if m.state == state {
		return nil
	}

	m.state = state
	status := m.statusLocked()

	return &status
}

func (m *Manager) notifyState(status *types.StreamStatus) {
	if status == nil {
		return
	}

	m.metrics.SetConnectionState(m.stream, status.State)
	m.log.Debug("state changed", zap.String("state", string(status.State)))

	if m.handlers.OnStateChange != nil {
		m.handlers.OnStateChange(*status)
	}
}
