package stream

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"go.uber.org/zap"
)

// ReconnectConfig bounds the reconnect schedule of one stream.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay" validate:"gt=0" jsonschema:"default=1s"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay" validate:"gtefield=BaseDelay" jsonschema:"default=30s"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" validate:"gt=0" jsonschema:"default=10"`
}

// ReconnectHandlers are invoked from timer goroutines, never under the coordinator's lock.
type ReconnectHandlers struct {
	// OnReconnect runs when a scheduled delay elapses.
	OnReconnect func(attempt int)
	// OnGiveUp fires exactly once after MaxAttempts scheduled attempts have failed.
	OnGiveUp func(lastErr error)
	// OnScheduled runs for every scheduled attempt.
	OnScheduled func(attempt int, delay time.Duration)
}

// ReconnectionCoordinator schedules reconnects for one stream with a delay of
// min(BaseDelay*2^attempt, MaxDelay) and gives up after MaxAttempts.
type ReconnectionCoordinator struct {
	stream   types.StreamType
	config   ReconnectConfig
	handlers ReconnectHandlers
	log      *logger.Logger

	mu         sync.Mutex
	backoff    *backoff.ExponentialBackOff
	attempts   int
	timer      *time.Timer
	generation uint64
	gaveUp     bool
	lastErr    error
}

func NewReconnectionCoordinator(stream types.StreamType, config ReconnectConfig, handlers ReconnectHandlers, log *logger.Logger) *ReconnectionCoordinator {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.BaseDelay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &ReconnectionCoordinator{
		stream:     stream,
		config:     config,
		handlers:   handlers,
		log:        log.Named("reconnect").With(zap.String("stream", string(stream))),
		mu:         sync.Mutex{},
		backoff:    b,
		attempts:   0,
		timer:      nil,
		generation: 0,
		gaveUp:     false,
		lastErr:    nil,
	}
}

// HandleError records err and schedules a reconnect.
func (c *ReconnectionCoordinator) HandleError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.log.Warn("stream error, scheduling reconnect", zap.Error(err))
	c.schedule()
}

// HandleDisconnect schedules a reconnect after the socket closed.
func (c *ReconnectionCoordinator) HandleDisconnect() {
	c.schedule()
}

func (c *ReconnectionCoordinator) schedule() {
	c.mu.Lock()

	// one pending attempt at a time; nothing after give-up
	if c.timer != nil || c.gaveUp {
		c.mu.Unlock()

		return
	}

	if c.attempts >= c.config.MaxAttempts {
		c.gaveUp = true
		lastErr := c.lastErr
		onGiveUp := c.handlers.OnGiveUp
		c.mu.Unlock()

		c.log.Error("reconnect attempts exhausted, giving up",
			zap.Int("max_attempts", c.config.MaxAttempts),
			zap.Error(lastErr),
		)

		if onGiveUp != nil {
			onGiveUp(lastErr)
		}

		return
	}

	delay := c.backoff.NextBackOff()
	c.attempts++
	attempt := c.attempts
	gen := c.generation
	c.timer = time.AfterFunc(delay, func() { c.fire(gen, attempt) })
	onScheduled := c.handlers.OnScheduled
	c.mu.Unlock()

	c.log.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))

	if onScheduled != nil {
		onScheduled(attempt, delay)
	}
}

func (c *ReconnectionCoordinator) fire(gen uint64, attempt int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()

		return
	}

	c.timer = nil
	onReconnect := c.handlers.OnReconnect
	c.mu.Unlock()

	if onReconnect != nil {
		onReconnect(attempt)
	}
}

// ResetReconnectAttempts clears the attempt counter and the give-up latch. Called
// after a confirmed successful connect and by operators restarting a stream.
func (c *ReconnectionCoordinator) ResetReconnectAttempts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts = 0
	c.gaveUp = false
	c.lastErr = nil
	c.backoff.Reset()
}

// Cleanup cancels any pending reconnect.
func (c *ReconnectionCoordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Attempts returns the number of attempts scheduled since the last reset.
func (c *ReconnectionCoordinator) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attempts
}

// Pending reports whether a reconnect is currently scheduled.
func (c *ReconnectionCoordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.timer != nil
}

// GaveUp reports whether the attempt budget has been exhausted.
func (c *ReconnectionCoordinator) GaveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gaveUp
}
