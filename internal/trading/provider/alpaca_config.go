package tradingprovider

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

const (
	alpacaPaperTradingURL = "https://paper-api.alpaca.markets"
	alpacaLiveTradingURL  = "https://api.alpaca.markets"
	alpacaDataURL         = "https://data.alpaca.markets"

	defaultRequestsPerMinute = 200
	defaultRequestTimeout    = 10 * time.Second
)

// AlpacaProviderConfig contains configuration for the Alpaca REST API.
type AlpacaProviderConfig struct {
	APIKey    string `json:"apiKey" yaml:"api_key" jsonschema:"title=API Key,description=Alpaca API key id" validate:"required"`
	APISecret string `json:"apiSecret" yaml:"api_secret" jsonschema:"title=API Secret,description=Alpaca API secret key" validate:"required"`
	// TradingURL and DataURL default to the Alpaca endpoints of the selected environment.
	TradingURL        string        `json:"tradingUrl,omitempty" yaml:"trading_url" jsonschema:"title=Trading URL" validate:"omitempty,url"`
	DataURL           string        `json:"dataUrl,omitempty" yaml:"data_url" jsonschema:"title=Data URL" validate:"omitempty,url"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout" jsonschema:"title=Request timeout" validate:"gte=0"`
	RequestsPerMinute int           `json:"requestsPerMinute,omitempty" yaml:"requests_per_minute" jsonschema:"title=Requests per minute,default=200" validate:"gte=0"`
}

// Validate validates the AlpacaProviderConfig struct.
func (c *AlpacaProviderConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid alpaca provider config", err)
	}

	return nil
}

// withDefaults fills empty endpoints and limits for the paper or live environment.
func (c AlpacaProviderConfig) withDefaults(paper bool) AlpacaProviderConfig {
	if c.TradingURL == "" {
		c.TradingURL = alpacaLiveTradingURL
		if paper {
			c.TradingURL = alpacaPaperTradingURL
		}
	}

	if c.DataURL == "" {
		c.DataURL = alpacaDataURL
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}

	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}

	return c
}

// parseAlpacaConfig parses a JSON configuration string into an AlpacaProviderConfig.
func parseAlpacaConfig(jsonConfig string) (*AlpacaProviderConfig, error) {
	var config AlpacaProviderConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "failed to parse alpaca config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
