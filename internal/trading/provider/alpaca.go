package tradingprovider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey    = "APCA-API-KEY-ID"
	headerAPISecret = "APCA-API-SECRET-KEY"
)

// AlpacaProvider implements TradingProvider against the Alpaca REST API.
type AlpacaProvider struct {
	config  AlpacaProviderConfig
	trading *resty.Client
	data    *resty.Client
	limiter *rate.Limiter
	log     *logger.Logger
	paper   bool
}

// accountResponse mirrors /v2/account, whose amounts are decimal strings.
type accountResponse struct {
	ID               string `json:"id"`
	AccountNumber    string `json:"account_number"`
	Status           string `json:"status"`
	Currency         string `json:"currency"`
	Cash             string `json:"cash"`
	Equity           string `json:"equity"`
	BuyingPower      string `json:"buying_power"`
	PatternDayTrader bool   `json:"pattern_day_trader"`
	TradingBlocked   bool   `json:"trading_blocked"`
}

type latestQuoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		BidPrice    float64   `json:"bp"`
		BidSize     float64   `json:"bs"`
		BidExchange string    `json:"bx"`
		AskPrice    float64   `json:"ap"`
		AskSize     float64   `json:"as"`
		AskExchange string    `json:"ax"`
		Conditions  []string  `json:"c"`
		Tape        string    `json:"z"`
		Timestamp   time.Time `json:"t"`
	} `json:"quote"`
}

// NewAlpacaProvider creates a provider for the paper or live environment.
func NewAlpacaProvider(config AlpacaProviderConfig, paper bool) (*AlpacaProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config = config.withDefaults(paper)

	log, err := logger.NewLogger()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create logger", err)
	}

	return newAlpacaProvider(config, paper, log), nil
}

// NewAlpacaProviderWithLogger is NewAlpacaProvider with a caller-supplied logger.
func NewAlpacaProviderWithLogger(config AlpacaProviderConfig, paper bool, log *logger.Logger) (*AlpacaProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return newAlpacaProvider(config.withDefaults(paper), paper, log), nil
}

func newAlpacaProvider(config AlpacaProviderConfig, paper bool, log *logger.Logger) *AlpacaProvider {
	every := time.Minute / time.Duration(config.RequestsPerMinute)

	return &AlpacaProvider{
		config:  config,
		trading: newRestClient(config.TradingURL, config),
		data:    newRestClient(config.DataURL, config),
		limiter: rate.NewLimiter(rate.Every(every), config.RequestsPerMinute),
		log:     log.Named("alpaca"),
		paper:   paper,
	}
}

func newRestClient(baseURL string, config AlpacaProviderConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader(headerAPIKey, config.APIKey).
		SetHeader(headerAPISecret, config.APISecret).
		SetHeader("Accept", "application/json")

	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return client
}

// IsPaper reports whether the provider targets the paper environment.
func (p *AlpacaProvider) IsPaper() bool {
	return p.paper
}

func (p *AlpacaProvider) request(ctx context.Context, client *resty.Client) (*resty.Request, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRateLimited, "rate limiter wait aborted", err)
	}

	apiErr := &APIError{} //nolint:exhaustruct

	return client.R().SetContext(ctx).SetError(apiErr), nil
}

// check converts a transport failure or a non-2xx response into an error.
func (p *AlpacaProvider) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(errors.ErrCodeBrokerRequestFailed, err, "%s request failed", op)
	}

	if !resp.IsError() {
		return nil
	}

	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{} //nolint:exhaustruct
	}

	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
	}

	p.log.Warn("brokerage rejected request",
		zap.String("op", op),
		zap.Int("status", apiErr.StatusCode),
		zap.Int("code", apiErr.Code),
		zap.String("message", apiErr.Message),
	)

	if apiErr.StatusCode == http.StatusTooManyRequests {
		return errors.Wrapf(errors.ErrCodeRateLimited, apiErr, "%s rate limited", op)
	}

	return errors.Wrapf(errors.ErrCodeBrokerRejected, apiErr, "%s rejected", op)
}

// GetAccount implements TradingProvider.
func (p *AlpacaProvider) GetAccount(ctx context.Context) (types.AccountInfo, error) {
	req, err := p.request(ctx, p.trading)
	if err != nil {
		return types.AccountInfo{}, err
	}

	var out accountResponse

	resp, err := req.SetResult(&out).Get("/v2/account")
	if err := p.check("get account", resp, err); err != nil {
		return types.AccountInfo{}, err
	}

	cash, err := parseAmount("cash", out.Cash)
	if err != nil {
		return types.AccountInfo{}, err
	}

	equity, err := parseAmount("equity", out.Equity)
	if err != nil {
		return types.AccountInfo{}, err
	}

	buyingPower, err := parseAmount("buying_power", out.BuyingPower)
	if err != nil {
		return types.AccountInfo{}, err
	}

	return types.AccountInfo{
		ID:               out.ID,
		AccountNumber:    out.AccountNumber,
		Status:           out.Status,
		Currency:         out.Currency,
		Cash:             cash,
		Equity:           equity,
		BuyingPower:      buyingPower,
		PatternDayTrader: out.PatternDayTrader,
		TradingBlocked:   out.TradingBlocked,
	}, nil
}

func parseAmount(field, value string) (float64, error) {
	if value == "" {
		return 0, nil
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeBrokerDecodeFailed, err, "invalid %s %q", field, value)
	}

	return d.InexactFloat64(), nil
}

// GetLatestQuote implements TradingProvider.
func (p *AlpacaProvider) GetLatestQuote(ctx context.Context, symbol string) (types.MarketQuote, error) {
	req, err := p.request(ctx, p.data)
	if err != nil {
		return types.MarketQuote{}, err //nolint:exhaustruct
	}

	var out latestQuoteResponse

	resp, err := req.SetPathParam("symbol", symbol).SetResult(&out).Get("/v2/stocks/{symbol}/quotes/latest")
	if err := p.check("get latest quote", resp, err); err != nil {
		return types.MarketQuote{}, err //nolint:exhaustruct
	}

	q := types.NewMarketQuote(symbol, out.Quote.BidPrice, out.Quote.BidSize, out.Quote.AskPrice, out.Quote.AskSize, out.Quote.Timestamp)
	q.BidExchange = out.Quote.BidExchange
	q.AskExchange = out.Quote.AskExchange
	q.Conditions = out.Quote.Conditions
	q.Tape = out.Quote.Tape

	return q, nil
}

// SubmitOrder implements TradingProvider.
func (p *AlpacaProvider) SubmitOrder(ctx context.Context, order types.BrokerOrderRequest) (types.BrokerOrder, error) {
	req, err := p.request(ctx, p.trading)
	if err != nil {
		return types.BrokerOrder{}, err //nolint:exhaustruct
	}

	var out types.BrokerOrder

	resp, err := req.SetBody(order).SetResult(&out).Post("/v2/orders")
	if err := p.check("submit order", resp, err); err != nil {
		return types.BrokerOrder{}, err //nolint:exhaustruct
	}

	p.log.Info("order submitted",
		zap.String("broker_order_id", out.ID),
		zap.String("client_order_id", out.ClientOrderID),
		zap.String("symbol", out.Symbol),
		zap.String("status", string(out.Status)),
	)

	return out, nil
}

// CancelOrder implements TradingProvider.
func (p *AlpacaProvider) CancelOrder(ctx context.Context, brokerOrderID string) error {
	req, err := p.request(ctx, p.trading)
	if err != nil {
		return err
	}

	resp, err := req.SetPathParam("id", brokerOrderID).Delete("/v2/orders/{id}")

	return p.check("cancel order", resp, err)
}

// GetOrder implements TradingProvider.
func (p *AlpacaProvider) GetOrder(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error) {
	req, err := p.request(ctx, p.trading)
	if err != nil {
		return types.BrokerOrder{}, err //nolint:exhaustruct
	}

	var out types.BrokerOrder

	resp, err := req.SetPathParam("id", brokerOrderID).SetResult(&out).Get("/v2/orders/{id}")
	if err := p.check("get order", resp, err); err != nil {
		return types.BrokerOrder{}, err //nolint:exhaustruct
	}

	return out, nil
}
