package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/metrics"
	"github.com/rxtech-lab/argo-alpaca/internal/notifier"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/repository"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

// Config controls the executor drain loop and retry policy.
type Config struct {
	// MaxAttempts is the number of submission attempts before an order fails.
	MaxAttempts   int
	DrainInterval time.Duration
	RetryDelay    time.Duration
	// PublishTimeout bounds each notifier call.
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		DrainInterval:  100 * time.Millisecond,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Executor is the order lifecycle engine. Orders are queued and drained one at
// a time, so no two orders are validated or submitted concurrently.
//
//	pending -> validating -> submitting -> submitted -> monitoring -> completed
//	validating -> failed, submitting -> retrying -> submitting, retrying -> failed
//
// Only the executor writes OrderExecutionStatus.
type Executor struct {
	config    Config
	repo      repository.OrderRepository
	validator *OrderValidator
	submitter *OrderSubmitter
	tracker   OrderTracker
	notifier  notifier.Notifier
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	queue      []string
	processing bool
	running    bool
	stopped    bool
	retries    map[string]*time.Timer
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// recordMu serializes read-modify-write cycles on order records.
	recordMu sync.Mutex
}

var (
	_ SubmissionObserver  = (*Executor)(nil)
	_ OrderUpdateObserver = (*Executor)(nil)
)

// NewExecutor wires an executor and registers it as the submitter's observer.
// The caller registers it with the order monitor.
func NewExecutor(
	config Config,
	repo repository.OrderRepository,
	validator *OrderValidator,
	submitter *OrderSubmitter,
	tracker OrderTracker,
	sink notifier.Notifier,
	log *logger.Logger,
	m *metrics.Metrics,
) *Executor {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}

	if config.DrainInterval <= 0 {
		config.DrainInterval = defaults.DrainInterval
	}

	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}

	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}

	e := &Executor{
		config:     config,
		repo:       repo,
		validator:  validator,
		submitter:  submitter,
		tracker:    tracker,
		notifier:   sink,
		log:        log.Named("executor"),
		metrics:    m,
		mu:         sync.Mutex{},
		queue:      nil,
		processing: false,
		running:    false,
		stopped:    false,
		retries:    make(map[string]*time.Timer),
		cancel:     nil,
		wg:         sync.WaitGroup{},
		recordMu:   sync.Mutex{},
	}

	submitter.AddObserver(e)

	return e
}

// Start recovers unfinished orders from the repository and starts the drain loop.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeExecutorStopped, "executor is stopped")
	}

	if e.running {
		e.mu.Unlock()

		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.recover(); err != nil {
		e.log.Error("failed to recover orders", zap.Error(err))
	}

	e.wg.Add(1)

	go e.drainLoop(runCtx)

	e.log.Info("executor started",
		zap.Int("max_attempts", e.config.MaxAttempts),
		zap.Duration("drain_interval", e.config.DrainInterval),
	)

	return nil
}

// Stop halts the drain loop and pending retries. Queued orders stay persisted.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()

		return
	}

	e.stopped = true
	e.running = false

	cancel := e.cancel
	for id, t := range e.retries {
		t.Stop()
		delete(e.retries, id)
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.wg.Wait()
	e.log.Info("executor stopped")
}

// recover re-queues orders that were waiting for submission and re-registers
// accepted orders with the tracker.
func (e *Executor) recover() error {
	states, err := e.repo.List()
	if err != nil {
		return err
	}

	for _, state := range states {
		switch state.Status {
		case types.OrderStatusPending, types.OrderStatusValidating, types.OrderStatusRetrying:
			e.enqueue(state.ID)
		case types.OrderStatusSubmitting:
			// the outcome of the interrupted call is unknown; the same client order id makes a resubmission safe
			e.enqueue(state.ID)
		case types.OrderStatusSubmitted, types.OrderStatusMonitoring:
			if err := e.tracker.MonitorOrder(state); err != nil {
				e.log.Warn("failed to resume monitoring", zap.String("order_id", state.ID), zap.Error(err))
			}
		case types.OrderStatusCompleted, types.OrderStatusFailed:
		}
	}

	return nil
}

func (e *Executor) drainLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ProcessNext(ctx)
		}
	}
}

// ProcessNext dequeues and processes at most one order. It returns false when
// the queue is empty or another order is in flight.
func (e *Executor) ProcessNext(ctx context.Context) bool {
	e.mu.Lock()
	if e.processing || len(e.queue) == 0 {
		e.mu.Unlock()

		return false
	}

	id := e.queue[0]
	e.queue = e.queue[1:]
	e.processing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	e.processOrder(ctx, id)

	return true
}

// SubmitOrder records a new pending order and queues it. Processing is asynchronous.
func (e *Executor) SubmitOrder(_ context.Context, req types.ExecutorOrderRequest) (types.ExecutorOrderState, error) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()

	if stopped {
		return types.ExecutorOrderState{}, errors.New(errors.ErrCodeExecutorStopped, "executor is stopped")
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	now := time.Now().UTC()
	state := types.ExecutorOrderState{
		ID:                 uuid.NewString(),
		IdempotencyKey:     req.IdempotencyKey,
		Request:            req,
		BrokerOrderID:      "",
		Status:             types.OrderStatusPending,
		RetryCount:         0,
		LastError:          "",
		Errors:             nil,
		LastBrokerResponse: optional.None[types.BrokerOrder](),
		CreatedAt:          now,
		UpdatedAt:          now,
		SubmittedAt:        optional.None[time.Time](),
		CompletedAt:        optional.None[time.Time](),
	}

	if err := e.repo.Save(state); err != nil {
		return types.ExecutorOrderState{}, err
	}

	e.metrics.OrderTransition(types.OrderStatusPending)
	e.log.Info("order queued",
		zap.String("order_id", state.ID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("type", string(req.Type)),
	)
	e.publish(types.OrderEventQueued, state, nil)
	e.enqueue(state.ID)

	return state.Clone(), nil
}

// CancelOrder asks the brokerage to cancel an accepted, unfinished order. The
// record moves to completed when the brokerage confirms the cancel.
func (e *Executor) CancelOrder(ctx context.Context, id string) error {
	state, err := e.repo.Get(id)
	if err != nil {
		return err
	}

	if state.Status.IsTerminal() {
		return errors.Newf(errors.ErrCodeOrderNotCancelable, "order %s is already %s", id, state.Status)
	}

	if state.BrokerOrderID == "" {
		return errors.Newf(errors.ErrCodeOrderNotCancelable, "order %s has not been accepted by the brokerage (status %s)", id, state.Status)
	}

	return e.submitter.CancelOrder(ctx, state.BrokerOrderID)
}

// GetOrder returns the record with the given internal id.
func (e *Executor) GetOrder(id string) (types.ExecutorOrderState, error) {
	return e.repo.Get(id)
}

// ListOrders returns every record ordered by creation time.
func (e *Executor) ListOrders() ([]types.ExecutorOrderState, error) {
	return e.repo.List()
}

// QueueLength returns the number of orders waiting to be processed.
func (e *Executor) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.queue)
}

func (e *Executor) enqueue(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	e.queue = append(e.queue, id)
}

func (e *Executor) processOrder(ctx context.Context, id string) {
	e.recordMu.Lock()

	state, err := e.repo.Get(id)
	if err != nil {
		e.recordMu.Unlock()
		e.log.Error("queued order not found", zap.String("order_id", id), zap.Error(err))

		return
	}

	if state.Status.IsTerminal() {
		e.recordMu.Unlock()

		return
	}

	retrying := state.Status == types.OrderStatusRetrying

	if !retrying {
		if !e.transitionLocked(&state, types.OrderStatusValidating, types.OrderEventUpdated, nil) {
			e.recordMu.Unlock()

			return
		}

		e.recordMu.Unlock()

		result := e.validator.ValidateOrder(ctx, state.Request)

		e.recordMu.Lock()

		if !result.Valid {
			state.Errors = result.Errors
			state.LastError = strings.Join(result.Errors, "; ")
			state.CompletedAt = optional.Some(time.Now().UTC())
			e.transitionLocked(&state, types.OrderStatusFailed, types.OrderEventFailed, nil)
			e.recordMu.Unlock()

			return
		}
	}

	state.RetryCount++
	state.Errors = nil

	if !e.transitionLocked(&state, types.OrderStatusSubmitting, types.OrderEventUpdated, nil) {
		e.recordMu.Unlock()

		return
	}

	e.recordMu.Unlock()

	// outcomes arrive through OnOrderSubmitted and OnOrderFailed
	_, _ = e.submitter.SubmitOrder(ctx, state.ID, state.Request)
}

// OnOrderSubmitted records the brokerage id and hands the order to the tracker.
func (e *Executor) OnOrderSubmitted(event OrderSubmittedEvent) {
	e.recordMu.Lock()

	state, err := e.repo.Get(event.OrderID)
	if err != nil {
		e.recordMu.Unlock()
		e.log.Error("submitted order not found", zap.String("order_id", event.OrderID), zap.Error(err))

		return
	}

	if state.Status.IsTerminal() {
		e.recordMu.Unlock()

		return
	}

	resp := event.Response
	state.BrokerOrderID = resp.ID
	state.LastBrokerResponse = optional.Some(resp)
	state.SubmittedAt = optional.Some(event.At.UTC())
	state.LastError = ""

	if resp.ClientOrderID != "" {
		state.IdempotencyKey = resp.ClientOrderID
	}

	if !e.transitionLocked(&state, types.OrderStatusSubmitted, types.OrderEventSubmitted, nil) {
		e.recordMu.Unlock()

		return
	}

	if resp.Status.IsTerminal() {
		state.CompletedAt = optional.Some(time.Now().UTC())
		e.transitionLocked(&state, types.OrderStatusCompleted, types.OrderEventCompleted, nil)
		e.recordMu.Unlock()

		return
	}

	e.recordMu.Unlock()

	if err := e.tracker.MonitorOrder(state); err != nil {
		e.log.Error("failed to monitor order", zap.String("order_id", state.ID), zap.Error(err))
	}

	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	current, err := e.repo.Get(state.ID)
	if err != nil || current.Status != types.OrderStatusSubmitted {
		return
	}

	e.transitionLocked(&current, types.OrderStatusMonitoring, types.OrderEventUpdated, nil)
}

// OnOrderFailed schedules a retry while attempts remain and fails the order otherwise.
func (e *Executor) OnOrderFailed(event OrderFailedEvent) {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	state, err := e.repo.Get(event.OrderID)
	if err != nil {
		e.log.Error("failed order not found", zap.String("order_id", event.OrderID), zap.Error(err))

		return
	}

	if state.Status.IsTerminal() {
		return
	}

	state.LastError = event.Err.Error()

	if state.RetryCount < e.config.MaxAttempts {
		if e.transitionLocked(&state, types.OrderStatusRetrying, types.OrderEventUpdated, nil) {
			e.scheduleRetry(state.ID)
		}

		return
	}

	e.log.Error("order submission attempts exhausted",
		zap.String("order_id", state.ID),
		zap.Int("attempts", state.RetryCount),
		zap.Error(errors.Wrap(errors.ErrCodeSubmissionExhausted, "submission attempts exhausted", event.Err)),
	)

	state.Errors = []string{state.LastError}
	state.CompletedAt = optional.Some(time.Now().UTC())
	e.transitionLocked(&state, types.OrderStatusFailed, types.OrderEventFailed, nil)
}

// OnOrderUpdate applies a brokerage update to the record it belongs to.
func (e *Executor) OnOrderUpdate(event OrderUpdateEvent) {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	state, err := e.repo.GetByBrokerID(event.BrokerOrderID)
	if err != nil {
		e.log.Warn("update for unknown brokerage order",
			zap.String("broker_order_id", event.BrokerOrderID),
			zap.Error(err),
		)

		return
	}

	if state.Status.IsTerminal() {
		return
	}

	update := event.Update
	state.LastBrokerResponse = optional.Some(update.Order)

	if update.Order.Status.IsTerminal() {
		state.CompletedAt = optional.Some(time.Now().UTC())
		e.transitionLocked(&state, types.OrderStatusCompleted, types.OrderEventCompleted, &update)

		return
	}

	state.UpdatedAt = time.Now().UTC()
	if err := e.repo.Save(state); err != nil {
		e.log.Error("failed to persist order update", zap.String("order_id", state.ID), zap.Error(err))

		return
	}

	e.publish(types.OrderEventUpdated, state, &update)
}

func (e *Executor) scheduleRetry(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	if t, ok := e.retries[id]; ok {
		t.Stop()
	}

	e.retries[id] = time.AfterFunc(e.config.RetryDelay, func() {
		e.mu.Lock()
		delete(e.retries, id)
		e.mu.Unlock()

		e.enqueue(id)
	})
}

// transitionLocked persists the new status and publishes event. Callers hold recordMu.
func (e *Executor) transitionLocked(
	state *types.ExecutorOrderState,
	status types.OrderExecutionStatus,
	event types.OrderEventType,
	update *types.TradeUpdate,
) bool {
	previous := state.Status
	state.Status = status
	state.UpdatedAt = time.Now().UTC()

	if err := e.repo.Save(*state); err != nil {
		e.log.Error("failed to persist order transition",
			zap.String("order_id", state.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)

		return false
	}

	e.metrics.OrderTransition(status)
	e.log.Info("order transition",
		zap.String("order_id", state.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
		zap.Int("attempt", state.RetryCount),
	)
	e.publish(event, *state, update)

	return true
}

func (e *Executor) publish(eventType types.OrderEventType, state types.ExecutorOrderState, update *types.TradeUpdate) {
	if e.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.PublishTimeout)
	defer cancel()

	event := types.OrderEvent{
		Type:      eventType,
		Order:     state.Clone(),
		Errors:    state.Errors,
		Update:    update,
		Timestamp: time.Now().UTC(),
	}

	if err := e.notifier.PublishOrderEvent(ctx, event); err != nil {
		e.log.Warn("failed to publish order event",
			zap.String("order_id", state.ID),
			zap.String("event", string(eventType)),
			zap.Error(err),
		)
	}
}
