package mocks

import (
	"testing"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketGenerator_Bars(t *testing.T) {
	config := DefaultConfig()
	config.Count = 200

	bars := NewMarketGenerator(42).Bars(config)
	require.Len(t, bars, 200)

	for i, b := range bars {
		assert.Equal(t, config.Symbol, b.Symbol)
		assert.Positive(t, b.Low, "bar %d", i)
		assert.GreaterOrEqual(t, b.High, math64Max(b.Open, b.Close, b.Low), "bar %d", i)
		assert.LessOrEqual(t, b.Low, math64Min(b.Open, b.Close, b.High), "bar %d", i)

		if i > 0 {
			assert.Equal(t, config.Interval, b.Timestamp.Sub(bars[i-1].Timestamp))
		}
	}
}

func TestMarketGenerator_Reproducible(t *testing.T) {
	config := DefaultConfig()

	a := NewMarketGenerator(7).Messages(config)
	b := NewMarketGenerator(7).Messages(config)
	assert.Equal(t, a, b)

	c := NewMarketGenerator(8).Messages(config)
	assert.NotEqual(t, a, c)
}

func TestMarketGenerator_Messages(t *testing.T) {
	config := DefaultConfig()
	config.Count = 10

	msgs := NewMarketGenerator(1).Messages(config)
	require.Len(t, msgs, 30)

	assert.Equal(t, types.MarketMessageQuote, msgs[0].Type)
	assert.Equal(t, types.MarketMessageTrade, msgs[1].Type)
	assert.Equal(t, types.MarketMessageBar, msgs[2].Type)

	for _, m := range msgs {
		if m.Quote == nil {
			continue
		}

		assert.Greater(t, m.Quote.AskPrice, m.Quote.BidPrice)
		assert.InDelta(t, (m.Quote.AskPrice+m.Quote.BidPrice)/2, m.Quote.MidPrice, 1e-9)
	}
}

func math64Max(vals ...float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		if v > out {
			out = v
		}
	}

	return out
}

func math64Min(vals ...float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		if v < out {
			out = v
		}
	}

	return out
}
