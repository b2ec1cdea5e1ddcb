package types

import (
	stderrors "errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

type OrderSide string

type OrderType string

type TimeInForce string

type OrderClass string

// OrderExecutionStatus is the executor-owned lifecycle status of an order record.
type OrderExecutionStatus string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceOPG TimeInForce = "opg"
	TimeInForceCLS TimeInForce = "cls"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

const (
	OrderClassSimple  OrderClass = "simple"
	OrderClassBracket OrderClass = "bracket"
)

const (
	OrderStatusPending    OrderExecutionStatus = "pending"
	OrderStatusValidating OrderExecutionStatus = "validating"
	OrderStatusSubmitting OrderExecutionStatus = "submitting"
	OrderStatusSubmitted  OrderExecutionStatus = "submitted"
	OrderStatusMonitoring OrderExecutionStatus = "monitoring"
	OrderStatusCompleted  OrderExecutionStatus = "completed"
	OrderStatusFailed     OrderExecutionStatus = "failed"
	OrderStatusRetrying   OrderExecutionStatus = "retrying"
)

// IsTerminal reports whether no further executor transition can occur.
func (s OrderExecutionStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// TakeProfitLeg is the take-profit child of a bracket order.
type TakeProfitLeg struct {
	LimitPrice float64 `yaml:"limit_price" json:"limit_price" validate:"gt=0"`
}

// StopLossLeg is the stop-loss child of a bracket order.
type StopLossLeg struct {
	StopPrice float64 `yaml:"stop_price" json:"stop_price" validate:"gt=0"`
	// LimitPrice turns the stop-loss leg into a stop-limit order when set.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price,omitempty"`
}

// ExecutorOrderRequest is the caller-supplied order intent.
type ExecutorOrderRequest struct {
	Symbol      string      `yaml:"symbol" json:"symbol" validate:"required"`
	Side        OrderSide   `yaml:"side" json:"side" validate:"required,oneof=buy sell"`
	Type        OrderType   `yaml:"type" json:"type" validate:"required,oneof=market limit stop stop_limit trailing_stop"`
	TimeInForce TimeInForce `yaml:"time_in_force" json:"time_in_force" validate:"required,oneof=day gtc opg cls ioc fok"`
	// Qty and Notional are mutually exclusive; exactly one must be set.
	Qty      optional.Option[float64] `yaml:"qty" json:"qty,omitempty"`
	Notional optional.Option[float64] `yaml:"notional" json:"notional,omitempty"`

	LimitPrice   optional.Option[float64] `yaml:"limit_price" json:"limit_price,omitempty"`
	StopPrice    optional.Option[float64] `yaml:"stop_price" json:"stop_price,omitempty"`
	TrailPrice   optional.Option[float64] `yaml:"trail_price" json:"trail_price,omitempty"`
	TrailPercent optional.Option[float64] `yaml:"trail_percent" json:"trail_percent,omitempty"`

	ExtendedHours bool       `yaml:"extended_hours" json:"extended_hours,omitempty"`
	OrderClass    OrderClass `yaml:"order_class" json:"order_class,omitempty" validate:"omitempty,oneof=simple bracket"`
	// TakeProfit is the take profit leg. Can be None if not set.
	TakeProfit optional.Option[TakeProfitLeg] `yaml:"take_profit" json:"take_profit,omitempty"`
	// StopLoss is the stop loss leg. Can be None if not set.
	StopLoss optional.Option[StopLossLeg] `yaml:"stop_loss" json:"stop_loss,omitempty"`

	// IdempotencyKey is sent as the brokerage client order id. Generated when empty.
	IdempotencyKey string `yaml:"idempotency_key" json:"idempotency_key,omitempty"`
}

// IsBracket reports whether the request asks for a bracket order, either explicitly
// through OrderClass or implicitly by carrying a take-profit or stop-loss leg.
func (r ExecutorOrderRequest) IsBracket() bool {
	return r.OrderClass == OrderClassBracket || r.TakeProfit.IsSome() || r.StopLoss.IsSome()
}

// FieldErrors holds the struct-tag violations found on one part of an order
// request. Path is the json name of the bracket leg, empty for the request itself.
type FieldErrors struct {
	Path   string
	Errors validator.ValidationErrors
}

func (e *FieldErrors) Error() string {
	if e.Path == "" {
		return e.Errors.Error()
	}

	return e.Path + ": " + e.Errors.Error()
}

func (e *FieldErrors) Unwrap() error {
	return e.Errors
}

// Validate runs the struct-tag checks on the request and every bracket leg it
// carries. A nil validate uses a default validator. Violations from each part are
// joined as *FieldErrors under an ErrCodeInvalidOrder error.
func (r *ExecutorOrderRequest) Validate(validate *validator.Validate) error {
	if validate == nil {
		validate = validator.New()
	}

	var parts []error

	check := func(path string, s any) {
		err := validate.Struct(s)
		if err == nil {
			return
		}

		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			parts = append(parts, &FieldErrors{Path: path, Errors: fieldErrs})

			return
		}

		parts = append(parts, err)
	}

	check("", r)

	if tp, err := r.TakeProfit.Take(); err == nil {
		check("take_profit", tp)
	}

	if sl, err := r.StopLoss.Take(); err == nil {
		check("stop_loss", sl)
	}

	if len(parts) == 0 {
		return nil
	}

	return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", stderrors.Join(parts...))
}

// ExecutorOrderState is the durable order record owned by the executor.
type ExecutorOrderState struct {
	ID             string               `json:"id"`
	IdempotencyKey string               `json:"idempotency_key"`
	Request        ExecutorOrderRequest `json:"request"`
	// BrokerOrderID is empty until the brokerage accepts the order.
	BrokerOrderID string               `json:"broker_order_id,omitempty"`
	Status        OrderExecutionStatus `json:"status"`
	RetryCount    int                  `json:"retry_count"`
	LastError     string               `json:"last_error,omitempty"`
	// Errors holds the validator's error list for orders rejected before submission.
	Errors             []string                     `json:"errors,omitempty"`
	LastBrokerResponse optional.Option[BrokerOrder] `json:"last_broker_response,omitempty"`
	CreatedAt          time.Time                    `json:"created_at"`
	UpdatedAt          time.Time                    `json:"updated_at"`
	SubmittedAt        optional.Option[time.Time]   `json:"submitted_at,omitempty"`
	CompletedAt        optional.Option[time.Time]   `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable slices with the receiver.
func (s ExecutorOrderState) Clone() ExecutorOrderState {
	out := s
	if s.Errors != nil {
		out.Errors = append([]string(nil), s.Errors...)
	}

	return out
}
