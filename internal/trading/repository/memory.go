package repository

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

// MemoryRepository keeps order records in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	orders   map[string]types.ExecutorOrderState
	byBroker map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mu:       sync.RWMutex{},
		orders:   make(map[string]types.ExecutorOrderState),
		byBroker: make(map[string]string),
	}
}

// Save implements OrderRepository.
func (r *MemoryRepository) Save(state types.ExecutorOrderState) error {
	if state.ID == "" {
		return errors.New(errors.ErrCodeMissingParameter, "order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.orders[state.ID]; ok && prev.BrokerOrderID != "" && prev.BrokerOrderID != state.BrokerOrderID {
		if r.byBroker[prev.BrokerOrderID] == state.ID {
			delete(r.byBroker, prev.BrokerOrderID)
		}
	}

	if state.BrokerOrderID != "" {
		if owner, ok := r.byBroker[state.BrokerOrderID]; ok && owner != state.ID {
			stale := r.orders[owner]
			stale.BrokerOrderID = ""
			r.orders[owner] = stale
		}

		r.byBroker[state.BrokerOrderID] = state.ID
	}

	r.orders[state.ID] = state.Clone()

	return nil
}

// Get implements OrderRepository.
func (r *MemoryRepository) Get(id string) (types.ExecutorOrderState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.orders[id]
	if !ok {
		return types.ExecutorOrderState{}, notFound("id", id)
	}

	return state.Clone(), nil
}

// GetByBrokerID implements OrderRepository.
func (r *MemoryRepository) GetByBrokerID(brokerOrderID string) (types.ExecutorOrderState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byBroker[brokerOrderID]
	if !ok {
		return types.ExecutorOrderState{}, notFound("broker id", brokerOrderID)
	}

	return r.orders[id].Clone(), nil
}

// List implements OrderRepository.
func (r *MemoryRepository) List() ([]types.ExecutorOrderState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ExecutorOrderState, 0, len(r.orders))
	for _, s := range r.orders {
		out = append(out, s.Clone())
	}

	sortByCreation(out)

	return out, nil
}

// Close implements OrderRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

func sortByCreation(states []types.ExecutorOrderState) {
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].ID < states[j].ID
		}

		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
}
