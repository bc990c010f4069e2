package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/whereabouts/internal/infrastructure/mqtt"
)

// State represents the connectivity of the supervised feed.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Default backoff bounds.
const (
	DefaultMinInterval = 1 * time.Second
	DefaultMaxInterval = 120 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running supervisor.
var ErrAlreadyRunning = errors.New("supervisor: already running")

// Broker is the connection the supervisor drives.
// *mqtt.Client satisfies it.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Disconnect()
	SetOnConnectionLost(callback func(err error))
}

// Config holds the subscription and backoff settings.
type Config struct {
	// Topic is the filter subscribed to after every connect.
	Topic string

	// QoS for the subscription.
	QoS byte

	// Handler receives every message on Topic.
	Handler mqtt.MessageHandler

	// MinInterval is the first backoff wait after a failed attempt.
	MinInterval time.Duration

	// MaxInterval caps the backoff wait.
	MaxInterval time.Duration

	// OnStateChange is called after each state transition (optional).
	OnStateChange func(State)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Supervisor keeps a Broker connected and subscribed.
type Supervisor struct {
	broker Broker
	config Config
	logger Logger
	sleep  SleepFunc

	mu            sync.RWMutex
	state         State
	attempts      int
	lastError     error
	connectedAt   time.Time
	stopRequested bool
	cancel        context.CancelFunc

	lost chan error
	done chan struct{}
}

// New creates a supervisor for broker. Zero intervals take the defaults.
func New(broker Broker, cfg Config) *Supervisor {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}

	return &Supervisor{
		broker: broker,
		config: cfg,
		logger: noopLogger{},
		sleep:  sleepContext,
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetSleep replaces the backoff wait. Must be called before Start.
func (s *Supervisor) SetSleep(sleep SleepFunc) {
	s.sleep = sleep
}

// Start begins connecting in the background and returns immediately.
//
// Connection failures are retried until Stop is called or ctx is done;
// they are never returned from Start.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopRequested = false
	s.lost = make(chan error, 1)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.broker.SetOnConnectionLost(s.handleConnectionLost)

	go s.run(ctx, done)
	return nil
}

// Stop disconnects without retrying and waits for the loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.broker.Disconnect()
	s.setState(StateDisconnected)
	s.logger.Info("mqtt broker disconnected as expected")

	s.mu.Lock()
	s.done = nil
	s.mu.Unlock()
}

// handleConnectionLost is registered with the broker.
func (s *Supervisor) handleConnectionLost(err error) {
	s.mu.RLock()
	lost := s.lost
	s.mu.RUnlock()

	select {
	case lost <- err:
	default:
	}
}

// run drives the state machine until ctx is cancelled.
func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.config.MinInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.config.MaxInterval,
	}
	b.Reset()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			s.logger.Error("mqtt connect failed",
				"error", err,
				"retry_in", wait,
			)
			if err := s.sleep(ctx, wait); err != nil {
				return
			}
			continue
		}

		b.Reset()

		select {
		case <-ctx.Done():
			return
		case err := <-s.lost:
			if s.isStopRequested() {
				return
			}
			s.recordError(err)
			s.setState(StateDisconnected)
			s.logger.Warn("mqtt connection lost, reconnecting", "error", err)
		}
	}
}

// connect makes one attempt and subscribes on success.
func (s *Supervisor) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	s.logger.Debug("connecting to mqtt broker", "attempt", attempt)

	// Drop a stale loss signal from the previous connection.
	select {
	case <-s.lost:
	default:
	}

	if err := s.broker.Connect(ctx); err != nil {
		s.recordError(err)
		s.setState(StateDisconnected)
		return err
	}

	if err := s.broker.Subscribe(s.config.Topic, s.config.QoS, s.config.Handler); err != nil {
		s.broker.Disconnect()
		err = fmt.Errorf("subscribing to %s: %w", s.config.Topic, err)
		s.recordError(err)
		s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.setState(StateConnected)
	s.logger.Info("mqtt connected and subscribed", "topic", s.config.Topic)
	return nil
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed && s.config.OnStateChange != nil {
		s.config.OnStateChange(state)
	}
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

func (s *Supervisor) isStopRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopRequested
}

// State returns the current connectivity state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected returns true if the feed is connected and subscribed.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns statistics about the supervised connection.
type Stats struct {
	State          State     `json:"state"`
	Attempts       int       `json:"attempts"`
	ConnectedSince time.Time `json:"connected_since,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the supervisor's counters.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		State:    s.state,
		Attempts: s.attempts,
	}
	if s.state == StateConnected {
		stats.ConnectedSince = s.connectedAt
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
