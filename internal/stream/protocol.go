package stream

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

// Market-data stream message tags.
const (
	tagSuccess      = "success"
	tagError        = "error"
	tagSubscription = "subscription"
	tagQuote        = "q"
	tagTrade        = "t"
	tagBar          = "b"
)

const (
	msgConnected     = "connected"
	msgAuthenticated = "authenticated"
)

// Trading stream names.
const (
	streamAuthorization = "authorization"
	streamListening     = "listening"
	streamTradeUpdates  = "trade_updates"
	statusAuthorized    = "authorized"
)

type marketAuthMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscriptionMessage struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
	Bars   []string `json:"bars"`
}

type tradingAuthData struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

type tradingAuthMessage struct {
	Action string          `json:"action"`
	Data   tradingAuthData `json:"data"`
}

type listenData struct {
	Streams []string `json:"streams"`
}

type listenMessage struct {
	Action string     `json:"action"`
	Data   listenData `json:"data"`
}

func newMarketAuthMessage(key, secret string) marketAuthMessage {
	return marketAuthMessage{Action: "auth", Key: key, Secret: secret}
}

func newSubscriptionMessage(action string, sub Subscription) subscriptionMessage {
	return subscriptionMessage{
		Action: action,
		Trades: nonNil(sub.Trades),
		Quotes: nonNil(sub.Quotes),
		Bars:   nonNil(sub.Bars),
	}
}

func newTradingAuthMessage(key, secret string) tradingAuthMessage {
	return tradingAuthMessage{Action: "authenticate", Data: tradingAuthData{KeyID: key, SecretKey: secret}}
}

func newListenMessage() listenMessage {
	return listenMessage{Action: "listen", Data: listenData{Streams: []string{streamTradeUpdates}}}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

// marketFrame is one element of a market-data frame. Keys are matched exactly
// because the feed uses keys that differ only by case ("T"/"t", "S"/"s").
type marketFrame map[string]json.RawMessage

// decodeMarketFrames accepts either a JSON array of messages or a single object.
func decodeMarketFrames(data []byte) ([]marketFrame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New(errors.ErrCodeStreamDecodeFailed, "empty frame")
	}

	if trimmed[0] == '[' {
		var frames []marketFrame
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStreamDecodeFailed, "malformed market data frame", err)
		}

		return frames, nil
	}

	var frame marketFrame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStreamDecodeFailed, "malformed market data frame", err)
	}

	return []marketFrame{frame}, nil
}

func (f marketFrame) tag() string { return f.str("T") }

func (f marketFrame) str(key string) string {
	var s string
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}

	return s
}

func (f marketFrame) num(key string) float64 {
	var v float64
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}

	return v
}

func (f marketFrame) integer(key string) int64 {
	var v int64
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}

	return v
}

func (f marketFrame) strings(key string) []string {
	var v []string
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}

	return v
}

func (f marketFrame) timestamp(key string) (time.Time, error) {
	raw, ok := f[key]
	if !ok {
		return time.Time{}, errors.Newf(errors.ErrCodeStreamDecodeFailed, "missing %q", key)
	}

	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrCodeStreamDecodeFailed, err, "invalid %q", key)
	}

	return t, nil
}

// message returns the ack text; the feed has used both "msg" and "message".
func (f marketFrame) message() string {
	if m := f.str("msg"); m != "" {
		return m
	}

	return f.str("message")
}

func (f marketFrame) quote() (types.MarketQuote, error) {
	ts, err := f.timestamp("t")
	if err != nil {
		return types.MarketQuote{}, err //nolint:exhaustruct
	}

	q := types.NewMarketQuote(f.str("S"), f.num("bp"), f.num("bs"), f.num("ap"), f.num("as"), ts)
	q.BidExchange = f.str("bx")
	q.AskExchange = f.str("ax")
	q.Conditions = f.strings("c")
	q.Tape = f.str("z")

	return q, nil
}

func (f marketFrame) trade() (types.MarketTrade, error) {
	ts, err := f.timestamp("t")
	if err != nil {
		return types.MarketTrade{}, err //nolint:exhaustruct
	}

	return types.MarketTrade{
		Symbol:     f.str("S"),
		ID:         f.integer("i"),
		Price:      f.num("p"),
		Size:       f.num("s"),
		Exchange:   f.str("x"),
		Conditions: f.strings("c"),
		Tape:       f.str("z"),
		Timestamp:  ts,
	}, nil
}

func (f marketFrame) bar() (types.MarketBar, error) {
	ts, err := f.timestamp("t")
	if err != nil {
		return types.MarketBar{}, err //nolint:exhaustruct
	}

	return types.MarketBar{
		Symbol:     f.str("S"),
		Open:       f.num("o"),
		High:       f.num("h"),
		Low:        f.num("l"),
		Close:      f.num("c"),
		Volume:     f.num("v"),
		TradeCount: f.integer("n"),
		VWAP:       f.num("vw"),
		Timestamp:  ts,
	}, nil
}

// tradingFrame is one trading-stream message.
type tradingFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type authorizationData struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

func decodeTradingFrame(data []byte) (tradingFrame, error) {
	var frame tradingFrame
	if err := json.Unmarshal(bytes.TrimSpace(data), &frame); err != nil {
		return frame, errors.Wrap(errors.ErrCodeStreamDecodeFailed, "malformed trading frame", err)
	}

	if frame.Stream == "" {
		return frame, errors.New(errors.ErrCodeStreamDecodeFailed, "trading frame without stream")
	}

	return frame, nil
}
