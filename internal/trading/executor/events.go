// Package executor runs outbound orders through validation, submission,
// monitoring and bounded retry.
package executor

import (
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

// OrderSubmittedEvent is emitted by the OrderSubmitter once the brokerage accepts an order.
type OrderSubmittedEvent struct {
	OrderID  string
	Response types.BrokerOrder
	At       time.Time
}

// OrderFailedEvent is emitted by the OrderSubmitter when a submission attempt fails.
type OrderFailedEvent struct {
	OrderID string
	Err     error
	At      time.Time
}

// OrderUpdateEvent is emitted by the OrderMonitor for trade updates of tracked orders.
type OrderUpdateEvent struct {
	BrokerOrderID string
	Update        types.TradeUpdate
	// Terminal is set when the update ended monitoring of the order.
	Terminal bool
}

// SubmissionObserver receives submitter outcomes. Callbacks run on the
// submitting goroutine before SubmitOrder returns.
type SubmissionObserver interface {
	OnOrderSubmitted(event OrderSubmittedEvent)
	OnOrderFailed(event OrderFailedEvent)
}

// OrderUpdateObserver receives trade updates for tracked orders.
type OrderUpdateObserver interface {
	OnOrderUpdate(event OrderUpdateEvent)
}

// OrderTracker registers accepted orders for brokerage-side monitoring.
type OrderTracker interface {
	MonitorOrder(state types.ExecutorOrderState) error
}
