package types

// AccountInfo represents the brokerage account state used for pre-flight order checks.
type AccountInfo struct {
	// ID is the brokerage account id
	ID string `json:"id" yaml:"id"`
	// AccountNumber is the human-readable account number
	AccountNumber string `json:"account_number" yaml:"account_number"`
	// Status is the account status, ACTIVE when trading is allowed
	Status string `json:"status" yaml:"status"`
	// Currency is the account currency
	Currency string `json:"currency" yaml:"currency"`
	// Cash is the current cash balance
	Cash float64 `json:"cash" yaml:"cash"`
	// Equity is the total account value
	Equity float64 `json:"equity" yaml:"equity"`
	// BuyingPower is the available amount for new purchases
	BuyingPower float64 `json:"buying_power" yaml:"buying_power"`
	// PatternDayTrader is true when the account is flagged as a pattern day trader
	PatternDayTrader bool `json:"pattern_day_trader" yaml:"pattern_day_trader"`
	// TradingBlocked is true when the brokerage refuses new orders
	TradingBlocked bool `json:"trading_blocked" yaml:"trading_blocked"`
}
