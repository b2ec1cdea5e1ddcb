// Package mockserver provides a mock Alpaca brokerage for testing.
// It serves the REST endpoints used for account, quote and order calls plus the
// market-data and trading WebSocket streams with their authentication handshakes.
package mockserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// MockAlpacaServer provides a mock Alpaca server for testing.
type MockAlpacaServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	apiKey    string
	apiSecret string

	account types.AccountInfo
	quotes  map[string]types.MarketQuote
	orders  map[string]*types.BrokerOrder
	// clientOrderIDs maps client_order_id to broker id
	clientOrderIDs map[string]string
	submitCount    int
	cancelCount    int
	failSubmits    int
	// autoFill fills market orders right after submission
	autoFill bool
	// marketAuthError forces an error ack with this code on market-data auth
	marketAuthError int
	// rejectTradingAuth answers every trading-stream auth with "unauthorized"
	rejectTradingAuth bool
	// fillBeforeResponse fills market orders before the submit response is written
	fillBeforeResponse bool

	marketConns  map[*wsClient]bool
	tradingConns map[*wsClient]bool
	subscribed   map[string]map[string]bool
	authAttempts map[types.StreamType]int
}

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	APIKey      string
	APISecret   string
	BuyingPower float64
	// Quotes maps symbol to [bid, ask]
	Quotes   map[string][2]float64
	AutoFill bool
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
	// listening is set once a trading client asked for trade_updates
	listening bool
}

func (c *wsClient) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.writeRaw(data)
}

func (c *wsClient) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewMockAlpacaServer creates a new mock Alpaca server.
func NewMockAlpacaServer(config ServerConfig) *MockAlpacaServer {
	server := &MockAlpacaServer{
		mu: sync.RWMutex{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		apiKey:    config.APIKey,
		apiSecret: config.APISecret,
		account: types.AccountInfo{
			ID:            uuid.New().String(),
			AccountNumber: "PA0000001",
			Status:        "ACTIVE",
			Currency:      "USD",
			Cash:          config.BuyingPower,
			Equity:        config.BuyingPower,
			BuyingPower:   config.BuyingPower,
		},
		quotes:         make(map[string]types.MarketQuote),
		orders:         make(map[string]*types.BrokerOrder),
		clientOrderIDs: make(map[string]string),
		autoFill:       config.AutoFill,
		marketConns:    make(map[*wsClient]bool),
		tradingConns:   make(map[*wsClient]bool),
		subscribed: map[string]map[string]bool{
			"trades": {},
			"quotes": {},
			"bars":   {},
		},
		authAttempts: make(map[types.StreamType]int),
	}

	for symbol, ba := range config.Quotes {
		server.quotes[symbol] = types.NewMarketQuote(symbol, ba[0], 100, ba[1], 100, time.Now())
	}

	return server
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockAlpacaServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()

	router.HandleFunc("/v2/account", s.withAuth(s.handleAccount)).Methods(http.MethodGet)
	router.HandleFunc("/v2/stocks/{symbol}/quotes/latest", s.withAuth(s.handleLatestQuote)).Methods(http.MethodGet)
	router.HandleFunc("/v2/orders", s.withAuth(s.handleCreateOrder)).Methods(http.MethodPost)
	router.HandleFunc("/v2/orders/{id}", s.withAuth(s.handleGetOrder)).Methods(http.MethodGet)
	router.HandleFunc("/v2/orders/{id}", s.withAuth(s.handleCancelOrder)).Methods(http.MethodDelete)

	router.HandleFunc("/stream", s.handleTradingStream)
	router.HandleFunc("/v2/{feed}", s.handleMarketStream)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop closes every socket and shuts the HTTP server down.
func (s *MockAlpacaServer) Stop() error {
	s.DropConnections()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the address the server is listening on.
func (s *MockAlpacaServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the REST base URL for both the trading and data APIs.
func (s *MockAlpacaServer) BaseURL() string {
	return "http://" + s.Address()
}

// MarketDataURL returns the market-data stream URL for the iex feed.
func (s *MockAlpacaServer) MarketDataURL() string {
	return "ws://" + s.Address() + "/v2/iex"
}

// TradingStreamURL returns the trading stream URL.
func (s *MockAlpacaServer) TradingStreamURL() string {
	return "ws://" + s.Address() + "/stream"
}

// SetBuyingPower replaces the account buying power.
func (s *MockAlpacaServer) SetBuyingPower(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account.BuyingPower = v
}

// SetQuote sets the latest quote served for symbol.
func (s *MockAlpacaServer) SetQuote(symbol string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes[symbol] = types.NewMarketQuote(symbol, bid, 100, ask, 100, time.Now())
}

// FailNextSubmissions makes the next n order submissions return HTTP 500.
func (s *MockAlpacaServer) FailNextSubmissions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failSubmits = n
}

// SetMarketAuthError makes market-data auth answer with an error ack carrying code.
// Zero restores normal authentication.
func (s *MockAlpacaServer) SetMarketAuthError(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marketAuthError = code
}

// RejectTradingAuth makes trading-stream auth answer "unauthorized" while reject is set.
func (s *MockAlpacaServer) RejectTradingAuth(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rejectTradingAuth = reject
}

// FillBeforeResponse makes market orders fill, and the fill broadcast go out,
// before the submit call answers. The response still reports "accepted".
func (s *MockAlpacaServer) FillBeforeResponse(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fillBeforeResponse = enabled
}

// SubmitCount returns how many order submissions reached the server.
func (s *MockAlpacaServer) SubmitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.submitCount
}

// CancelCount returns how many cancel requests reached the server.
func (s *MockAlpacaServer) CancelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cancelCount
}

// AuthAttempts returns how many auth payloads a stream received.
func (s *MockAlpacaServer) AuthAttempts(stream types.StreamType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authAttempts[stream]
}

// GetOrder returns a copy of an order by broker id.
func (s *MockAlpacaServer) GetOrder(id string) (types.BrokerOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return types.BrokerOrder{}, false
	}

	return *o, true
}

// Orders returns copies of all orders sorted by creation time.
func (s *MockAlpacaServer) Orders() []types.BrokerOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.BrokerOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

// Subscriptions returns the symbols subscribed on channel (trades, quotes or bars).
func (s *MockAlpacaServer) Subscriptions(channel string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.subscribed[channel]))
	for sym := range s.subscribed[channel] {
		out = append(out, sym)
	}

	sort.Strings(out)

	return out
}

// MarketConnections returns the number of open market-data sockets.
func (s *MockAlpacaServer) MarketConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.marketConns)
}

// ListeningTradingConnections returns the trading sockets subscribed to trade_updates.
func (s *MockAlpacaServer) ListeningTradingConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0

	for c := range s.tradingConns {
		if c.listening {
			n++
		}
	}

	return n
}

// DropConnections closes every open WebSocket.
func (s *MockAlpacaServer) DropConnections() {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.marketConns)+len(s.tradingConns))

	for c := range s.marketConns {
		clients = append(clients, c)
	}

	for c := range s.tradingConns {
		clients = append(clients, c)
	}

	s.marketConns = make(map[*wsClient]bool)
	s.tradingConns = make(map[*wsClient]bool)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// PushQuote sends a quote frame to every market-data client.
func (s *MockAlpacaServer) PushQuote(symbol string, bid, ask float64) {
	s.PushMarketFrame([]map[string]any{{
		"T": "q", "S": symbol, "bp": bid, "bs": 1, "ap": ask, "as": 1,
		"t": time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// PushTrade sends a trade frame to every market-data client.
func (s *MockAlpacaServer) PushTrade(symbol string, price, size float64) {
	s.PushMarketFrame([]map[string]any{{
		"T": "t", "S": symbol, "p": price, "s": size, "i": time.Now().UnixNano(),
		"t": time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// PushBar sends a bar frame to every market-data client.
func (s *MockAlpacaServer) PushBar(symbol string, open, high, low, closePrice, volume float64) {
	s.PushMarketFrame([]map[string]any{{
		"T": "b", "S": symbol, "o": open, "h": high, "l": low, "c": closePrice, "v": volume,
		"t": time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// PushMarketFrame JSON-encodes frame and sends it to every market-data client.
func (s *MockAlpacaServer) PushMarketFrame(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.PushRawMarket(data)
}

// PushRawMarket sends data verbatim to every market-data client.
func (s *MockAlpacaServer) PushRawMarket(data []byte) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.marketConns))

	for c := range s.marketConns {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		_ = c.writeRaw(data)
	}
}

// FillOrder marks an order filled and broadcasts a fill trade update.
func (s *MockAlpacaServer) FillOrder(id string, price float64) error {
	return s.transition(id, types.BrokerOrderStatusFilled, "fill", price)
}

// RejectOrder marks an order rejected and broadcasts the update.
func (s *MockAlpacaServer) RejectOrder(id string) error {
	return s.transition(id, types.BrokerOrderStatusRejected, "rejected", 0)
}

// PartiallyFillOrder broadcasts a partial fill without ending the order.
func (s *MockAlpacaServer) PartiallyFillOrder(id string, price float64) error {
	return s.transition(id, types.BrokerOrderStatusPartiallyFilled, "partial_fill", price)
}

func (s *MockAlpacaServer) transition(id string, status types.BrokerOrderStatus, event string, price float64) error {
	s.mu.Lock()

	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf("order %s not found", id)
	}

	now := time.Now().UTC()
	order.Status = status
	order.UpdatedAt = now

	total, _ := strconv.ParseFloat(order.Qty, 64)
	filled, _ := strconv.ParseFloat(order.FilledQty, 64)
	execQty := 0.0

	switch status {
	case types.BrokerOrderStatusPartiallyFilled:
		execQty = (total - filled) / 2
	case types.BrokerOrderStatusFilled:
		execQty = total - filled
		order.FilledAt = &now
	}

	if price > 0 && execQty > 0 {
		order.FilledQty = strconv.FormatFloat(filled+execQty, 'f', -1, 64)
		order.FilledAvgPrice = strconv.FormatFloat(price, 'f', -1, 64)
	}

	if status == types.BrokerOrderStatusCanceled {
		order.CanceledAt = &now
	}

	update := types.TradeUpdate{
		Event:     event,
		Order:     *order,
		Timestamp: now,
	}

	// Price and Qty describe this execution only.
	if price > 0 && execQty > 0 {
		update.Price = strconv.FormatFloat(price, 'f', -1, 64)
		update.Qty = strconv.FormatFloat(execQty, 'f', -1, 64)
		update.PositionQty = order.FilledQty
	}
	s.mu.Unlock()

	s.broadcastTradeUpdate(update)

	return nil
}

func (s *MockAlpacaServer) broadcastTradeUpdate(update types.TradeUpdate) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.tradingConns))

	for c := range s.tradingConns {
		if c.listening {
			clients = append(clients, c)
		}
	}
	s.mu.RUnlock()

	frame := map[string]any{"stream": "trade_updates", "data": update}
	for _, c := range clients {
		_ = c.write(frame)
	}
}

// REST API Handlers

func (s *MockAlpacaServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("APCA-API-KEY-ID") != s.apiKey || r.Header.Get("APCA-API-SECRET-KEY") != s.apiSecret {
			writeJSON(w, http.StatusUnauthorized, apiError{Code: 40110000, Message: "request is not authorized"})

			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// handleAccount handles GET /v2/account
func (s *MockAlpacaServer) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	acct := s.account
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 acct.ID,
		"account_number":     acct.AccountNumber,
		"status":             acct.Status,
		"currency":           acct.Currency,
		"cash":               money(acct.Cash),
		"equity":             money(acct.Equity),
		"buying_power":       money(acct.BuyingPower),
		"pattern_day_trader": acct.PatternDayTrader,
		"trading_blocked":    acct.TradingBlocked,
	})
}

// handleLatestQuote handles GET /v2/stocks/{symbol}/quotes/latest
func (s *MockAlpacaServer) handleLatestQuote(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Code: 40410000, Message: "quote not found for " + symbol})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"quote": map[string]any{
			"bp": q.BidPrice, "bs": q.BidSize,
			"ap": q.AskPrice, "as": q.AskSize,
			"t": q.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	})
}

// handleCreateOrder handles POST /v2/orders
func (s *MockAlpacaServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req types.BrokerOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Code: 40010000, Message: "invalid order body"})

		return
	}

	s.mu.Lock()
	s.submitCount++

	if s.failSubmits > 0 {
		s.failSubmits--
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, apiError{Code: 50010000, Message: "internal server error"})

		return
	}

	if req.ClientOrderID != "" {
		if _, dup := s.clientOrderIDs[req.ClientOrderID]; dup {
			s.mu.Unlock()
			writeJSON(w, http.StatusUnprocessableEntity, apiError{Code: 40010001, Message: "client_order_id must be unique"})

			return
		}
	}

	now := time.Now().UTC()
	order := &types.BrokerOrder{
		ID:            uuid.New().String(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		OrderClass:    req.OrderClass,
		Qty:           req.Qty,
		Notional:      req.Notional,
		FilledQty:     "0",
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Status:        types.BrokerOrderStatusAccepted,
		ExtendedHours: req.ExtendedHours,
		CreatedAt:     now,
		UpdatedAt:     now,
		SubmittedAt:   &now,
	}

	if req.ClientOrderID == "" {
		order.ClientOrderID = uuid.New().String()
	}

	s.orders[order.ID] = order
	s.clientOrderIDs[order.ClientOrderID] = order.ID
	market := req.Type == string(types.OrderTypeMarket)
	autoFill := s.autoFill && market
	fillFirst := s.fillBeforeResponse && market
	price := s.quotes[req.Symbol].AskPrice
	resp := *order
	s.mu.Unlock()

	if fillFirst {
		_ = s.FillOrder(resp.ID, price)
	}

	writeJSON(w, http.StatusOK, resp)

	if autoFill {
		go func() {
			time.Sleep(20 * time.Millisecond)

			_ = s.FillOrder(resp.ID, price)
		}()
	}
}

// handleGetOrder handles GET /v2/orders/{id}
func (s *MockAlpacaServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.GetOrder(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Code: 40410000, Message: "order not found"})

		return
	}

	writeJSON(w, http.StatusOK, order)
}

// handleCancelOrder handles DELETE /v2/orders/{id}
func (s *MockAlpacaServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	s.cancelCount++
	order, ok := s.orders[id]

	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, apiError{Code: 40410000, Message: "order not found"})

		return
	}

	if order.Status.IsTerminal() {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Code: 42210000, Message: "order is not cancelable"})

		return
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)

	go func() { _ = s.transition(id, types.BrokerOrderStatusCanceled, "canceled", 0) }()
}

// WebSocket Handlers

// handleMarketStream handles the market-data stream at /v2/{feed}
func (s *MockAlpacaServer) handleMarketStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn}

	s.mu.Lock()
	s.marketConns[client] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.marketConns, client)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	_ = client.write([]map[string]any{{"T": "success", "message": "connected"}})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Key    string   `json:"key"`
			Secret string   `json:"secret"`
			Trades []string `json:"trades"`
			Quotes []string `json:"quotes"`
			Bars   []string `json:"bars"`
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			_ = client.write([]map[string]any{{"T": "error", "code": 400, "message": "invalid syntax"}})

			continue
		}

		switch msg.Action {
		case "auth":
			s.mu.Lock()
			s.authAttempts[types.StreamMarketData]++
			forced := s.marketAuthError
			s.mu.Unlock()

			switch {
			case forced != 0:
				_ = client.write([]map[string]any{{"T": "error", "code": forced, "message": "forced error"}})
			case msg.Key != s.apiKey || msg.Secret != s.apiSecret:
				_ = client.write([]map[string]any{{"T": "error", "code": 402, "message": "auth failed"}})
			default:
				_ = client.write([]map[string]any{{"T": "success", "message": "authenticated"}})
			}
		case "subscribe", "unsubscribe":
			s.mu.Lock()
			for channel, symbols := range map[string][]string{"trades": msg.Trades, "quotes": msg.Quotes, "bars": msg.Bars} {
				for _, sym := range symbols {
					if msg.Action == "subscribe" {
						s.subscribed[channel][sym] = true
					} else {
						delete(s.subscribed[channel], sym)
					}
				}
			}
			s.mu.Unlock()

			_ = client.write([]map[string]any{{
				"T":      "subscription",
				"trades": s.Subscriptions("trades"),
				"quotes": s.Subscriptions("quotes"),
				"bars":   s.Subscriptions("bars"),
			}})
		default:
			_ = client.write([]map[string]any{{"T": "error", "code": 400, "message": "invalid syntax"}})
		}
	}
}

// handleTradingStream handles the trading stream at /stream
func (s *MockAlpacaServer) handleTradingStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn}

	s.mu.Lock()
	s.tradingConns[client] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.tradingConns, client)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	authorized := false

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Action string `json:"action"`
			Data   struct {
				KeyID     string   `json:"key_id"`
				SecretKey string   `json:"secret_key"`
				Streams   []string `json:"streams"`
			} `json:"data"`
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "authenticate":
			s.mu.Lock()
			s.authAttempts[types.StreamTrading]++
			rejected := s.rejectTradingAuth
			s.mu.Unlock()

			status := "unauthorized"
			if !rejected && msg.Data.KeyID == s.apiKey && msg.Data.SecretKey == s.apiSecret {
				status = "authorized"
				authorized = true
			}

			_ = client.write(map[string]any{
				"stream": "authorization",
				"data":   map[string]any{"action": "authenticate", "status": status},
			})
		case "listen":
			if !authorized {
				continue
			}

			s.mu.Lock()
			for _, name := range msg.Data.Streams {
				if name == "trade_updates" {
					client.listening = true
				}
			}
			s.mu.Unlock()

			_ = client.write(map[string]any{
				"stream": "listening",
				"data":   map[string]any{"streams": msg.Data.Streams},
			})
		}
	}
}

// StreamMessages pushes each message to the market-data clients in order.
// Quotes also update the REST latest-quote endpoint.
func (s *MockAlpacaServer) StreamMessages(msgs []types.MarketMessage) {
	for _, msg := range msgs {
		switch {
		case msg.Quote != nil:
			s.SetQuote(msg.Quote.Symbol, msg.Quote.BidPrice, msg.Quote.AskPrice)
			s.PushQuote(msg.Quote.Symbol, msg.Quote.BidPrice, msg.Quote.AskPrice)
		case msg.Trade != nil:
			s.PushTrade(msg.Trade.Symbol, msg.Trade.Price, msg.Trade.Size)
		case msg.Bar != nil:
			b := msg.Bar
			s.PushBar(b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
	}
}
