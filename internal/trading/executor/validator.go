package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	msgQtyAndNotional       = "Cannot specify both qty and notional"
	msgQtyOrNotional        = "Must specify either qty or notional"
	msgLimitPriceRequired   = "Limit price is required for limit orders"
	msgStopPriceRequired    = "Stop price is required for stop orders"
	msgTrailRequired        = "Trailing stop orders require either trail_price or trail_percent"
	msgTrailBoth            = "Cannot specify both trail_price and trail_percent"
	msgBracketLegs          = "Bracket orders require both take_profit and stop_loss"
	msgInsufficientBuyPower = "Insufficient buying power"
)

// AccountDataProvider supplies the live account and quote data used for pre-flight checks.
type AccountDataProvider interface {
	GetAccount(ctx context.Context) (types.AccountInfo, error)
	GetLatestQuote(ctx context.Context, symbol string) (types.MarketQuote, error)
}

// QuoteSource is a local cache of streamed quotes consulted before the REST quote endpoint.
type QuoteSource interface {
	LatestQuote(symbol string) (types.MarketQuote, bool)
}

// ValidationResult reports every violation found for an order request.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// OrderValidator checks order requests against field constraints and live account data.
type OrderValidator struct {
	provider AccountDataProvider
	quotes   QuoteSource
	validate *validator.Validate
	log      *logger.Logger
}

func NewOrderValidator(provider AccountDataProvider, log *logger.Logger) *OrderValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	return &OrderValidator{
		provider: provider,
		quotes:   nil,
		validate: validate,
		log:      log.Named("validator"),
	}
}

// WithQuoteSource makes the validator price buy orders from src when it holds a quote.
func (v *OrderValidator) WithQuoteSource(src QuoteSource) *OrderValidator {
	v.quotes = src

	return v
}

// ValidateOrder runs the structural checks and, when they pass, the account
// checks. Violations are returned as data, never as an error.
func (v *OrderValidator) ValidateOrder(ctx context.Context, req types.ExecutorOrderRequest) ValidationResult {
	errs := v.structuralErrors(req)
	if len(errs) > 0 {
		v.log.Info("order failed structural validation",
			zap.String("symbol", req.Symbol),
			zap.Strings("errors", errs),
		)

		return ValidationResult{Valid: false, Errors: errs}
	}

	errs = v.accountErrors(ctx, req)
	if len(errs) > 0 {
		v.log.Info("order failed account validation",
			zap.String("symbol", req.Symbol),
			zap.Strings("errors", errs),
		)

		return ValidationResult{Valid: false, Errors: errs}
	}

	return ValidationResult{Valid: true, Errors: nil}
}

func (v *OrderValidator) structuralErrors(req types.ExecutorOrderRequest) []string {
	var errs []string

	errs = append(errs, v.tagErrors(req)...)

	switch {
	case req.Qty.IsSome() && req.Notional.IsSome():
		errs = append(errs, msgQtyAndNotional)
	case req.Qty.IsNone() && req.Notional.IsNone():
		errs = append(errs, msgQtyOrNotional)
	case req.Qty.IsSome() && req.Qty.Unwrap() <= 0:
		errs = append(errs, "qty must be greater than 0")
	case req.Notional.IsSome() && req.Notional.Unwrap() <= 0:
		errs = append(errs, "notional must be greater than 0")
	}

	needsLimit := req.Type == types.OrderTypeLimit || req.Type == types.OrderTypeStopLimit
	needsStop := req.Type == types.OrderTypeStop || req.Type == types.OrderTypeStopLimit

	if needsLimit {
		if limit, err := req.LimitPrice.Take(); err != nil {
			errs = append(errs, msgLimitPriceRequired)
		} else if limit <= 0 {
			errs = append(errs, "limit_price must be greater than 0")
		}
	}

	if needsStop {
		if stop, err := req.StopPrice.Take(); err != nil {
			errs = append(errs, msgStopPriceRequired)
		} else if stop <= 0 {
			errs = append(errs, "stop_price must be greater than 0")
		}
	}

	if req.Type == types.OrderTypeTrailingStop {
		switch {
		case req.TrailPrice.IsNone() && req.TrailPercent.IsNone():
			errs = append(errs, msgTrailRequired)
		case req.TrailPrice.IsSome() && req.TrailPercent.IsSome():
			errs = append(errs, msgTrailBoth)
		}
	}

	if req.IsBracket() {
		if req.TakeProfit.IsNone() || req.StopLoss.IsNone() {
			errs = append(errs, msgBracketLegs)
		}
	}

	return errs
}

// tagErrors converts the request's struct-tag violations into readable messages
// keyed by json field path.
func (v *OrderValidator) tagErrors(req types.ExecutorOrderRequest) []string {
	err := req.Validate(v.validate)
	if err == nil {
		return nil
	}

	parts := []error{err}

	var joined interface{ Unwrap() []error }
	if stderrors.As(err, &joined) {
		parts = joined.Unwrap()
	}

	var out []string

	for _, part := range parts {
		var fieldErrs *types.FieldErrors
		if !stderrors.As(part, &fieldErrs) {
			out = append(out, part.Error())

			continue
		}

		prefix := ""
		if fieldErrs.Path != "" {
			prefix = fieldErrs.Path + "."
		}

		for _, fe := range fieldErrs.Errors {
			out = append(out, fieldMessage(prefix+fe.Field(), fe))
		}
	}

	return out
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
