package tradingprovider

import (
	"context"
	"fmt"
	"sort"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/schema"
)

// TradingProvider is the brokerage REST surface used by order execution.
type TradingProvider interface {
	// GetAccount returns the current account state including buying power
	GetAccount(ctx context.Context) (types.AccountInfo, error)
	// GetLatestQuote returns the latest top-of-book quote for a symbol
	GetLatestQuote(ctx context.Context, symbol string) (types.MarketQuote, error)
	// SubmitOrder places an order and returns the brokerage's view of it
	SubmitOrder(ctx context.Context, req types.BrokerOrderRequest) (types.BrokerOrder, error)
	// CancelOrder requests cancellation of an order by brokerage id
	CancelOrder(ctx context.Context, brokerOrderID string) error
	// GetOrder returns an order by brokerage id
	GetOrder(ctx context.Context, brokerOrderID string) (types.BrokerOrder, error)
}

type ProviderType string

const (
	ProviderAlpacaPaper ProviderType = "alpaca-paper"
	ProviderAlpacaLive  ProviderType = "alpaca-live"
)

type ProviderInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderAlpacaPaper: {
		Name:           string(ProviderAlpacaPaper),
		DisplayName:    "Alpaca Paper",
		Description:    "Alpaca paper trading environment for US equities without real funds",
		IsPaperTrading: true,
	},
	ProviderAlpacaLive: {
		Name:           string(ProviderAlpacaLive),
		DisplayName:    "Alpaca Live",
		Description:    "Alpaca live environment for real-funds US equities trading",
		IsPaperTrading: false,
	},
}

// GetSupportedProviders returns the registered provider names in sorted order.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific trading provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, fmt.Errorf("unsupported trading provider: %s", providerName)
	}

	return info, nil
}

// GetProviderConfigSchema returns the JSON schema for a provider's configuration.
func GetProviderConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderAlpacaPaper, ProviderAlpacaLive:
		return schema.ToJSONSchema(AlpacaProviderConfig{})
	default:
		return "", fmt.Errorf("unsupported trading provider: %s", providerName)
	}
}

// ParseProviderConfig parses a JSON configuration string for the given provider.
func ParseProviderConfig(providerName string, jsonConfig string) (any, error) {
	switch ProviderType(providerName) {
	case ProviderAlpacaPaper, ProviderAlpacaLive:
		return parseAlpacaConfig(jsonConfig)
	default:
		return nil, fmt.Errorf("unsupported trading provider: %s", providerName)
	}
}

// NewTradingProvider creates a trading provider based on the provider type.
// Request logs go to log; a nil log falls back to a production logger.
func NewTradingProvider(providerType ProviderType, config any, log *logger.Logger) (TradingProvider, error) {
	switch providerType {
	case ProviderAlpacaPaper, ProviderAlpacaLive:
		cfg, ok := config.(*AlpacaProviderConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for %s provider", providerType)
		}

		paper := providerType == ProviderAlpacaPaper

		if log == nil {
			provider, err := NewAlpacaProvider(*cfg, paper)
			if err != nil {
				return nil, err
			}

			return provider, nil
		}

		provider, err := NewAlpacaProviderWithLogger(*cfg, paper, log)
		if err != nil {
			return nil, err
		}

		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported trading provider: %s", providerType)
	}
}
