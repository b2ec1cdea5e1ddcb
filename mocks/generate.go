package mocks

//go:generate mockgen -destination=./mock_trading_provider.go -package=mocks github.com/rxtech-lab/argo-alpaca/internal/trading/provider TradingProvider
//go:generate mockgen -destination=./mock_notifier.go -package=mocks github.com/rxtech-lab/argo-alpaca/internal/notifier Notifier
//go:generate mockgen -destination=./mock_order_tracker.go -package=mocks github.com/rxtech-lab/argo-alpaca/internal/trading/executor OrderTracker
