package stream

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// MarketCache holds the latest quote per symbol and a bounded ring buffer of the
// most recent trades across all symbols. When the ring is full the oldest trade
// is overwritten.
type MarketCache struct {
	mu     sync.RWMutex
	quotes map[string]types.MarketQuote
	trades []types.MarketTrade
	// head is the slot the next trade is written to.
	head int
	size int
}

func NewMarketCache(recentTrades int) *MarketCache {
	if recentTrades < 0 {
		recentTrades = 0
	}

	return &MarketCache{
		mu:     sync.RWMutex{},
		quotes: make(map[string]types.MarketQuote),
		trades: make([]types.MarketTrade, recentTrades),
		head:   0,
		size:   0,
	}
}

// AddQuote stores q unless a newer quote for the symbol is already cached.
func (c *MarketCache) AddQuote(q types.MarketQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.quotes[q.Symbol]; ok && prev.Timestamp.After(q.Timestamp) {
		return
	}

	c.quotes[q.Symbol] = q
}

// AddTrade appends t to the ring buffer.
func (c *MarketCache) AddTrade(t types.MarketTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.trades) == 0 {
		return
	}

	c.trades[c.head] = t
	c.head = (c.head + 1) % len(c.trades)

	if c.size < len(c.trades) {
		c.size++
	}
}

// LatestQuote returns the cached quote for symbol.
func (c *MarketCache) LatestQuote(symbol string) (types.MarketQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]

	return q, ok
}

// LatestQuotes returns a copy of every cached quote keyed by symbol.
func (c *MarketCache) LatestQuotes() map[string]types.MarketQuote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]types.MarketQuote, len(c.quotes))
	for k, v := range c.quotes {
		out[k] = v
	}

	return out
}

// RecentTrades returns up to limit trades, newest first. An empty symbol matches
// every symbol and a non-positive limit returns everything buffered.
func (c *MarketCache) RecentTrades(symbol string, limit int) []types.MarketTrade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.MarketTrade, 0, c.size)

	for i := 1; i <= c.size; i++ {
		idx := (c.head - i + len(c.trades)) % len(c.trades)

		t := c.trades[idx]
		if symbol != "" && t.Symbol != symbol {
			continue
		}

		out = append(out, t)

		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}

// PruneQuotes removes quotes older than cutoff and returns how many were removed.
func (c *MarketCache) PruneQuotes(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for symbol, q := range c.quotes {
		if q.Timestamp.Before(cutoff) {
			delete(c.quotes, symbol)
			removed++
		}
	}

	return removed
}
