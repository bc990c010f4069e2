package clock

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/nerrad567/whereabouts/internal/actuator"
	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
	"github.com/nerrad567/whereabouts/internal/infrastructure/database"
	"github.com/nerrad567/whereabouts/internal/person"
	"github.com/nerrad567/whereabouts/internal/router"
	"github.com/nerrad567/whereabouts/internal/statestore"
	"github.com/nerrad567/whereabouts/internal/zone"
)

// messageBuffer is the number of feed messages queued ahead of the loop.
const messageBuffer = 64

// ErrStopped is returned by Enqueue once Run has exited.
var ErrStopped = errors.New("clock: service stopped")

// Logger defines the logging interface for the service.
// It is handed down to every component the service builds.
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

// ActuatorUsesFeed reports whether the configured actuator publishes over
// the feed's MQTT connection, so its commands are lost while that is down.
func ActuatorUsesFeed(cfg *config.Config) bool {
	return cfg.Actuator.Type == config.ActuatorMQTT
}

// ActuatorFactory builds the actuator for a configuration.
type ActuatorFactory func(cfg *config.Config) actuator.Actuator

// Options configure a Service.
type Options struct {
	// ConfigPath is re-read on every reload.
	ConfigPath string

	// SelfTest runs the actuator self-test before every restore.
	SelfTest bool

	// WaitForFeed reports whether startup work for a configuration must
	// wait for FeedConnected(true). It is asked again after every reload.
	// Nil never waits.
	WaitForFeed func(cfg *config.Config) bool

	// Pause overrides the self-test pauses (tests).
	Pause actuator.PauseFunc
}

type message struct {
	topic   string
	payload []byte
}

// snapshot is everything rebuilt on reload.
type snapshot struct {
	cfg      *config.Config
	zones    *zone.Registry
	people   *person.Registry
	db       *database.DB
	actuator actuator.Actuator
	router   *router.Router
}

func (s *snapshot) close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Service is the clock's single processing loop.
type Service struct {
	opts        Options
	logger      Logger
	newActuator ActuatorFactory
	recorder    router.Recorder

	messages chan message
	reloads  chan struct{}
	feed     chan bool
	done     chan struct{}

	// Owned by the Run loop after Start.
	snap           *snapshot
	feedConnected  bool
	pendingStartup bool
}

// New creates a service. Call Start, then Run.
//
// Parameters:
//   - opts: Service options
//   - newActuator: Builds the actuator for each snapshot
//   - logger: Logger instance (may be nil)
func New(opts Options, newActuator ActuatorFactory, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		opts:        opts,
		logger:      logger,
		newActuator: newActuator,
		messages:    make(chan message, messageBuffer),
		reloads:     make(chan struct{}, 1),
		feed:        make(chan bool, 1),
		done:        make(chan struct{}),
	}
}

// SetRecorder attaches telemetry to every router the service builds.
// Must be called before Start.
func (s *Service) SetRecorder(recorder router.Recorder) {
	s.recorder = recorder
}

// Start builds the first snapshot from cfg.
//
// Any error here is a startup error. Startup work is queued for Run.
func (s *Service) Start(cfg *config.Config) error {
	snap, err := s.build(cfg)
	if err != nil {
		return err
	}
	s.snap = snap
	s.pendingStartup = true
	return nil
}

// Config returns the active configuration. Not safe to call concurrently with Run.
func (s *Service) Config() *config.Config {
	if s.snap == nil {
		return nil
	}
	return s.snap.cfg
}

// HealthCheck verifies the state database. Not safe to call concurrently with Run.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.snap == nil {
		return database.ErrNotOpen
	}
	return s.snap.db.HealthCheck(ctx)
}

// Enqueue hands a feed message to the loop. It has the mqtt.MessageHandler
// signature and blocks while the queue is full.
func (s *Service) Enqueue(topic string, payload []byte) error {
	select {
	case s.messages <- message{topic: topic, payload: payload}:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// RequestReload asks the loop to reload configuration at the next safe point.
func (s *Service) RequestReload() {
	select {
	case s.reloads <- struct{}{}:
	default:
	}
}

// FeedConnected reports feed connectivity to the loop.
//
// It never blocks; if the loop has not yet seen the previous report, that
// report is replaced.
func (s *Service) FeedConnected(up bool) {
	for {
		select {
		case s.feed <- up:
			return
		default:
		}
		select {
		case <-s.feed:
		default:
		}
	}
}

// Close releases the active snapshot. Call after Run has returned.
func (s *Service) Close() error {
	err := s.snap.close()
	s.snap = nil
	return err
}

// Run processes messages, reloads and feed changes until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		if s.pendingStartup && s.startupReady() {
			s.pendingStartup = false
			s.startup(ctx)
		}

		select {
		case <-ctx.Done():
			return nil

		case msg := <-s.messages:
			if ctx.Err() != nil {
				return nil
			}
			s.snap.router.Handle(ctx, msg.topic, msg.payload) //nolint:errcheck // Router logs every drop

		case <-s.reloads:
			if err := s.reload(); err != nil {
				s.logger.Error("reload failed, keeping current configuration", "error", err)
			}

		case up := <-s.feed:
			s.feedConnected = up
		}
	}
}

// startupReady reports whether the active snapshot's startup work can run.
func (s *Service) startupReady() bool {
	if s.feedConnected || s.opts.WaitForFeed == nil {
		return true
	}
	return !s.opts.WaitForFeed(s.snap.cfg)
}

// build creates a snapshot. Nothing is returned half-built.
func (s *Service) build(cfg *config.Config) (*snapshot, error) {
	zones, err := zone.NewRegistry(cfg.Zones)
	if err != nil {
		return nil, fmt.Errorf("building zones: %w", err)
	}
	s.logger.Debug("zones loaded", "count", len(zones.All()))

	people, err := person.NewRegistry(cfg.People, s.logger)
	if err != nil {
		return nil, fmt.Errorf("building people: %w", err)
	}
	s.logger.Debug("people loaded", "count", people.Len())

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	store := statestore.New(db.DB)
	store.SetLogger(s.logger)

	act := s.newActuator(cfg)
	rt := router.New(people, zones, store, act, s.logger)
	if s.recorder != nil {
		rt.SetRecorder(s.recorder)
	}

	return &snapshot{
		cfg:      cfg,
		zones:    zones,
		people:   people,
		db:       db,
		actuator: act,
		router:   rt,
	}, nil
}

// reload swaps in a snapshot built from the config file.
func (s *Service) reload() error {
	s.logger.Info("reloading configuration", "path", s.opts.ConfigPath)

	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	next, err := s.build(cfg)
	if err != nil {
		return err
	}

	if !reflect.DeepEqual(s.snap.cfg.MQTT, cfg.MQTT) {
		s.logger.Warn("mqtt configuration changed; restart to apply")
	}

	prev := s.snap
	s.snap = next
	if err := prev.close(); err != nil {
		s.logger.Error("closing previous state database", "error", err)
	}

	s.pendingStartup = true
	s.logger.Info("configuration reloaded",
		"zones", len(next.zones.All()),
		"people", next.people.Len(),
	)
	return nil
}

// startup runs the self-test (if enabled) and restores saved state.
func (s *Service) startup(ctx context.Context) {
	if s.opts.SelfTest {
		err := actuator.SelfTest(ctx, s.snap.actuator, s.snap.people.Channels(), s.snap.zones.All(), s.logger, s.opts.Pause)
		if err != nil {
			s.logger.Warn("self-test interrupted", "error", err)
			return
		}
	}

	n, err := s.snap.router.Restore(ctx)
	if err != nil {
		// Already logged by the router; the clock runs with hands where they are.
		return
	}
	s.logger.Info("state restored", "hands", n)
}
