package types

import "time"

// BrokerOrderStatus is the order status reported by the brokerage.
type BrokerOrderStatus string

const (
	BrokerOrderStatusNew             BrokerOrderStatus = "new"
	BrokerOrderStatusAccepted        BrokerOrderStatus = "accepted"
	BrokerOrderStatusPendingNew      BrokerOrderStatus = "pending_new"
	BrokerOrderStatusPartiallyFilled BrokerOrderStatus = "partially_filled"
	BrokerOrderStatusFilled          BrokerOrderStatus = "filled"
	BrokerOrderStatusDoneForDay      BrokerOrderStatus = "done_for_day"
	BrokerOrderStatusCanceled        BrokerOrderStatus = "canceled"
	BrokerOrderStatusExpired         BrokerOrderStatus = "expired"
	BrokerOrderStatusReplaced        BrokerOrderStatus = "replaced"
	BrokerOrderStatusPendingCancel   BrokerOrderStatus = "pending_cancel"
	BrokerOrderStatusPendingReplace  BrokerOrderStatus = "pending_replace"
	BrokerOrderStatusRejected        BrokerOrderStatus = "rejected"
	BrokerOrderStatusSuspended       BrokerOrderStatus = "suspended"
)

// IsTerminal reports whether the brokerage will send no further updates for the order.
func (s BrokerOrderStatus) IsTerminal() bool {
	switch s {
	case BrokerOrderStatusFilled, BrokerOrderStatusCanceled, BrokerOrderStatusExpired, BrokerOrderStatusRejected:
		return true
	default:
		return false
	}
}

// BrokerTakeProfit is the take_profit object of the brokerage order schema.
type BrokerTakeProfit struct {
	LimitPrice string `json:"limit_price"`
}

// BrokerStopLoss is the stop_loss object of the brokerage order schema.
type BrokerStopLoss struct {
	StopPrice  string `json:"stop_price"`
	LimitPrice string `json:"limit_price,omitempty"`
}

// BrokerOrderRequest is the body of a brokerage order submission. Numeric
// fields are decimal strings.
type BrokerOrderRequest struct {
	Symbol        string            `json:"symbol"`
	Qty           string            `json:"qty,omitempty"`
	Notional      string            `json:"notional,omitempty"`
	Side          string            `json:"side"`
	Type          string            `json:"type"`
	TimeInForce   string            `json:"time_in_force"`
	LimitPrice    string            `json:"limit_price,omitempty"`
	StopPrice     string            `json:"stop_price,omitempty"`
	TrailPrice    string            `json:"trail_price,omitempty"`
	TrailPercent  string            `json:"trail_percent,omitempty"`
	ExtendedHours bool              `json:"extended_hours,omitempty"`
	ClientOrderID string            `json:"client_order_id,omitempty"`
	OrderClass    string            `json:"order_class,omitempty"`
	TakeProfit    *BrokerTakeProfit `json:"take_profit,omitempty"`
	StopLoss      *BrokerStopLoss   `json:"stop_loss,omitempty"`
}

// BrokerOrder is an order as returned by the brokerage REST API and embedded in
// trade_updates events.
type BrokerOrder struct {
	ID             string            `json:"id"`
	ClientOrderID  string            `json:"client_order_id"`
	Symbol         string            `json:"symbol"`
	Side           string            `json:"side"`
	Type           string            `json:"type"`
	TimeInForce    string            `json:"time_in_force"`
	OrderClass     string            `json:"order_class,omitempty"`
	Qty            string            `json:"qty,omitempty"`
	Notional       string            `json:"notional,omitempty"`
	FilledQty      string            `json:"filled_qty,omitempty"`
	FilledAvgPrice string            `json:"filled_avg_price,omitempty"`
	LimitPrice     string            `json:"limit_price,omitempty"`
	StopPrice      string            `json:"stop_price,omitempty"`
	Status         BrokerOrderStatus `json:"status"`
	ExtendedHours  bool              `json:"extended_hours,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	SubmittedAt    *time.Time        `json:"submitted_at,omitempty"`
	FilledAt       *time.Time        `json:"filled_at,omitempty"`
	CanceledAt     *time.Time        `json:"canceled_at,omitempty"`
	Legs           []BrokerOrder     `json:"legs,omitempty"`
}

// TradeUpdate is one event from the trading stream's trade_updates channel.
type TradeUpdate struct {
	Event       string      `json:"event"`
	ExecutionID string      `json:"execution_id,omitempty"`
	Order       BrokerOrder `json:"order"`
	Timestamp   time.Time   `json:"timestamp"`
	Price       string      `json:"price,omitempty"`
	Qty         string      `json:"qty,omitempty"`
	PositionQty string      `json:"position_qty,omitempty"`
}
