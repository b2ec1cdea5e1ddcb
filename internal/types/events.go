package types

import "time"

// OrderEventType names a downstream order lifecycle event.
type OrderEventType string

const (
	OrderEventQueued    OrderEventType = "order_queued"
	OrderEventSubmitted OrderEventType = "order_submitted"
	OrderEventUpdated   OrderEventType = "order_updated"
	OrderEventFailed    OrderEventType = "order_failed"
	OrderEventCompleted OrderEventType = "order_completed"
)

// OrderEvent is published to the client notifier once per lifecycle transition.
type OrderEvent struct {
	Type      OrderEventType     `json:"type"`
	Order     ExecutorOrderState `json:"order"`
	Errors    []string           `json:"errors,omitempty"`
	Update    *TradeUpdate       `json:"update,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
