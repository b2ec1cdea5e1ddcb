// Package repository stores executor order records keyed by internal id and
// indexed by brokerage order id.
//
// At most one record maps to a given brokerage id. Saving a record with a
// brokerage id that another record holds retracts the stale mapping first.
package repository

import (
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

// OrderRepository is the durable keyed store of order execution records.
type OrderRepository interface {
	// Save inserts or replaces the record with state.ID.
	Save(state types.ExecutorOrderState) error
	// Get returns the record with the given internal id.
	Get(id string) (types.ExecutorOrderState, error)
	// GetByBrokerID resolves a brokerage order id to its record.
	GetByBrokerID(brokerOrderID string) (types.ExecutorOrderState, error)
	// List returns every record ordered by creation time.
	List() ([]types.ExecutorOrderState, error)
	// Close releases the underlying storage.
	Close() error
}

func notFound(kind, id string) error {
	return errors.Newf(errors.ErrCodeOrderNotFound, "order with %s %q not found", kind, id)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.HasCode(err, errors.ErrCodeOrderNotFound)
}
