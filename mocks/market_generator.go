package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// MarketGenerator produces deterministic streams of bars, quotes and trades
// that pass the default market message bounds.
type MarketGenerator struct {
	rng *rand.Rand
}

// NewMarketGenerator creates a generator. A fixed seed gives reproducible output.
func NewMarketGenerator(seed int64) *MarketGenerator {
	return &MarketGenerator{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

// GeneratorConfig configures a generated series.
type GeneratorConfig struct {
	Symbol    string
	StartTime time.Time
	// Interval is the spacing between bars
	Interval time.Duration
	Count    int

	InitialPrice float64
	// Volatility is the per-bar standard deviation of returns (0.002 = 0.2%)
	Volatility float64
	// SpreadBps is the quoted bid/ask spread in basis points of the mid price
	SpreadBps float64

	VolumeBase float64
	// VolumeVariance is the relative spread of volumes around VolumeBase (0.0 to 1.0)
	VolumeVariance float64
}

func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "AAPL",
		StartTime:      time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		Interval:       time.Minute,
		Count:          100,
		InitialPrice:   190.0,
		Volatility:     0.002,
		SpreadBps:      2,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Bars returns a random-walk OHLCV series.
func (g *MarketGenerator) Bars(config GeneratorConfig) []types.MarketBar {
	bars := make([]types.MarketBar, config.Count)
	price := config.InitialPrice
	ts := config.StartTime

	for i := range bars {
		open := price

		// Box-Muller
		u1 := 1 - g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		closePrice := open * (1 + config.Volatility*z)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		high := math.Max(open, closePrice) + g.rng.Float64()*config.Volatility*open*0.5
		low := math.Min(open, closePrice) - g.rng.Float64()*config.Volatility*open*0.5

		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := config.VolumeBase * (1 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.MarketBar{
			Symbol:     config.Symbol,
			Open:       round(open, 4),
			High:       round(high, 4),
			Low:        round(low, 4),
			Close:      round(closePrice, 4),
			Volume:     math.Round(volume),
			TradeCount: int64(g.rng.Intn(500) + 1),
			VWAP:       round((open+high+low+closePrice)/4, 4),
			Timestamp:  ts,
		}

		price = closePrice
		ts = ts.Add(config.Interval)
	}

	return bars
}

// Quote returns a quote centered on mid with the configured spread.
func (g *MarketGenerator) Quote(config GeneratorConfig, mid float64, ts time.Time) types.MarketQuote {
	half := mid * config.SpreadBps / 20000

	return types.NewMarketQuote(
		config.Symbol,
		round(mid-half, 4),
		float64(g.rng.Intn(10)+1)*100,
		round(mid+half, 4),
		float64(g.rng.Intn(10)+1)*100,
		ts,
	)
}

// Messages interleaves, for every bar, one quote at its open, one trade at its
// close and the bar itself, in timestamp order.
func (g *MarketGenerator) Messages(config GeneratorConfig) []types.MarketMessage {
	bars := g.Bars(config)
	out := make([]types.MarketMessage, 0, len(bars)*3)

	for i, bar := range bars {
		out = append(out, types.NewQuoteMessage(g.Quote(config, bar.Open, bar.Timestamp)))
		out = append(out, types.NewTradeMessage(types.MarketTrade{
			Symbol:     config.Symbol,
			ID:         int64(i + 1),
			Price:      bar.Close,
			Size:       float64(g.rng.Intn(100) + 1),
			Exchange:   "V",
			Conditions: []string{"@"},
			Tape:       "C",
			Timestamp:  bar.Timestamp.Add(config.Interval / 2),
		}))
		out = append(out, types.NewBarMessage(bar))
	}

	return out
}

func round(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
