package types

import (
	"time"

	"github.com/goccy/go-json"
)

// MarketMessageType tags a normalized market-data event.
type MarketMessageType string

const (
	MarketMessageQuote MarketMessageType = "quote"
	MarketMessageTrade MarketMessageType = "trade"
	MarketMessageBar   MarketMessageType = "bar"
)

// MarketQuote is a normalized top-of-book quote.
type MarketQuote struct {
	Symbol      string    `json:"symbol"`
	BidPrice    float64   `json:"bid_price"`
	BidSize     float64   `json:"bid_size"`
	BidExchange string    `json:"bid_exchange,omitempty"`
	AskPrice    float64   `json:"ask_price"`
	AskSize     float64   `json:"ask_size"`
	AskExchange string    `json:"ask_exchange,omitempty"`
	Conditions  []string  `json:"conditions,omitempty"`
	Tape        string    `json:"tape,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	// MidPrice and Spread are derived at normalization time.
	MidPrice float64 `json:"mid_price"`
	Spread   float64 `json:"spread"`
}

// NewMarketQuote builds a quote and computes its derived fields.
func NewMarketQuote(symbol string, bid, bidSize, ask, askSize float64, ts time.Time) MarketQuote {
	//nolint:exhaustruct
	q := MarketQuote{
		Symbol:    symbol,
		BidPrice:  bid,
		BidSize:   bidSize,
		AskPrice:  ask,
		AskSize:   askSize,
		Timestamp: ts,
	}
	q.Derive()

	return q
}

// Derive recomputes MidPrice and Spread from the bid and ask.
func (q *MarketQuote) Derive() {
	q.MidPrice = (q.BidPrice + q.AskPrice) / 2
	q.Spread = q.AskPrice - q.BidPrice
}

// MarketTrade is a normalized trade print.
type MarketTrade struct {
	Symbol     string    `json:"symbol"`
	ID         int64     `json:"id,omitempty"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Exchange   string    `json:"exchange,omitempty"`
	Conditions []string  `json:"conditions,omitempty"`
	Tape       string    `json:"tape,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarketBar is a normalized OHLCV bar.
type MarketBar struct {
	Symbol     string    `json:"symbol"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarketMessage is one entry of a market-data batch. Exactly one of Quote, Trade
// and Bar is set, matching Type.
type MarketMessage struct {
	Type  MarketMessageType
	Quote *MarketQuote
	Trade *MarketTrade
	Bar   *MarketBar
}

func NewQuoteMessage(q MarketQuote) MarketMessage {
	return MarketMessage{Type: MarketMessageQuote, Quote: &q, Trade: nil, Bar: nil}
}

func NewTradeMessage(t MarketTrade) MarketMessage {
	return MarketMessage{Type: MarketMessageTrade, Quote: nil, Trade: &t, Bar: nil}
}

func NewBarMessage(b MarketBar) MarketMessage {
	return MarketMessage{Type: MarketMessageBar, Quote: nil, Trade: nil, Bar: &b}
}

// Symbol returns the symbol of the wrapped event.
func (m MarketMessage) Symbol() string {
	switch {
	case m.Quote != nil:
		return m.Quote.Symbol
	case m.Trade != nil:
		return m.Trade.Symbol
	case m.Bar != nil:
		return m.Bar.Symbol
	default:
		return ""
	}
}

// Timestamp returns the event time of the wrapped event.
func (m MarketMessage) Timestamp() time.Time {
	switch {
	case m.Quote != nil:
		return m.Quote.Timestamp
	case m.Trade != nil:
		return m.Trade.Timestamp
	case m.Bar != nil:
		return m.Bar.Timestamp
	default:
		return time.Time{}
	}
}

type marketMessageEnvelope struct {
	Type MarketMessageType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

// MarshalJSON encodes the message as {"type": ..., "data": ...}.
func (m MarketMessage) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch m.Type {
	case MarketMessageQuote:
		data, err = json.Marshal(m.Quote)
	case MarketMessageTrade:
		data, err = json.Marshal(m.Trade)
	case MarketMessageBar:
		data, err = json.Marshal(m.Bar)
	default:
		data = []byte("null")
	}

	if err != nil {
		return nil, err
	}

	return json.Marshal(marketMessageEnvelope{Type: m.Type, Data: data})
}

// UnmarshalJSON decodes the {"type": ..., "data": ...} envelope.
func (m *MarketMessage) UnmarshalJSON(b []byte) error {
	var env marketMessageEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	*m = MarketMessage{Type: env.Type, Quote: nil, Trade: nil, Bar: nil}

	switch env.Type {
	case MarketMessageQuote:
		m.Quote = &MarketQuote{} //nolint:exhaustruct

		return json.Unmarshal(env.Data, m.Quote)
	case MarketMessageTrade:
		m.Trade = &MarketTrade{} //nolint:exhaustruct

		return json.Unmarshal(env.Data, m.Trade)
	case MarketMessageBar:
		m.Bar = &MarketBar{} //nolint:exhaustruct

		return json.Unmarshal(env.Data, m.Bar)
	default:
		return nil
	}
}
