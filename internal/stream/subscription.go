package stream

import "sort"

// Subscription lists symbols per market-data channel.
type Subscription struct {
	Trades []string `yaml:"trades" json:"trades,omitempty"`
	Quotes []string `yaml:"quotes" json:"quotes,omitempty"`
	Bars   []string `yaml:"bars" json:"bars,omitempty"`
}

// IsEmpty reports whether no channel lists a symbol.
func (s Subscription) IsEmpty() bool {
	return len(s.Trades) == 0 && len(s.Quotes) == 0 && len(s.Bars) == 0
}

type subscriptionSet struct {
	trades map[string]struct{}
	quotes map[string]struct{}
	bars   map[string]struct{}
}

func newSubscriptionSet() subscriptionSet {
	return subscriptionSet{
		trades: make(map[string]struct{}),
		quotes: make(map[string]struct{}),
		bars:   make(map[string]struct{}),
	}
}

// add tracks sub and returns the symbols that were not tracked before.
func (s subscriptionSet) add(sub Subscription) Subscription {
	return Subscription{
		Trades: addAll(s.trades, sub.Trades),
		Quotes: addAll(s.quotes, sub.Quotes),
		Bars:   addAll(s.bars, sub.Bars),
	}
}

// remove untracks sub and returns the symbols that were tracked.
func (s subscriptionSet) remove(sub Subscription) Subscription {
	return Subscription{
		Trades: removeAll(s.trades, sub.Trades),
		Quotes: removeAll(s.quotes, sub.Quotes),
		Bars:   removeAll(s.bars, sub.Bars),
	}
}

func (s subscriptionSet) all() Subscription {
	return Subscription{
		Trades: sortedKeys(s.trades),
		Quotes: sortedKeys(s.quotes),
		Bars:   sortedKeys(s.bars),
	}
}

func addAll(set map[string]struct{}, symbols []string) []string {
	var added []string

	for _, sym := range symbols {
		if _, ok := set[sym]; ok || sym == "" {
			continue
		}

		set[sym] = struct{}{}
		added = append(added, sym)
	}

	return added
}

func removeAll(set map[string]struct{}, symbols []string) []string {
	var removed []string

	for _, sym := range symbols {
		if _, ok := set[sym]; !ok {
			continue
		}

		delete(set, sym)
		removed = append(removed, sym)
	}

	return removed
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
