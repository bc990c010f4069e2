package router

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/whereabouts/internal/infrastructure/mqtt"
	"github.com/nerrad567/whereabouts/internal/person"
	"github.com/nerrad567/whereabouts/internal/statestore"
	"github.com/nerrad567/whereabouts/internal/zone"
)

// restoreTimeLayout formats the last-seen time in restore log lines.
const restoreTimeLayout = "2006-01-02 15:04:05 MST"

// People resolves a topic identity to a person.
type People interface {
	// Lookup returns the first person whose identity pattern matches.
	Lookup(identity string) (person.Person, bool)
}

// Zones resolves an event to a zone.
type Zones interface {
	// Resolve returns the zone for an action and region description.
	Resolve(action zone.Action, region string) zone.Zone
}

// Store persists and replays per-identity state.
type Store interface {
	// RecordState appends a state record for identity.
	RecordState(ctx context.Context, identity, zoneName string, angle int, at time.Time) error

	// LatestStates returns the newest record for every identity.
	LatestStates(ctx context.Context) ([]statestore.Record, error)
}

// Actuator moves one hand of the clock.
type Actuator interface {
	// SetChannelPosition points channel at angle degrees.
	SetChannelPosition(channel, angle int)
}

// Recorder receives every routed transition (optional telemetry).
type Recorder interface {
	RecordTransition(t Transition)
}

// Transition is a resolved and actuated event.
type Transition struct {
	Identity string
	Person   string
	Zone     string
	Angle    int
	At       time.Time
}

// Logger defines the logging interface for the router.
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

// Router routes transition events to the actuator and the store.
type Router struct {
	people   People
	zones    Zones
	store    Store
	actuator Actuator
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// New creates a router.
//
// Parameters:
//   - people: Identity registry
//   - zones: Zone registry
//   - store: State store for persistence and restore
//   - actuator: Hand driver
//   - logger: Logger instance (may be nil)
func New(people People, zones Zones, store Store, actuator Actuator, logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		people:   people,
		zones:    zones,
		store:    store,
		actuator: actuator,
		logger:   logger,
		now:      time.Now,
	}
}

// SetRecorder attaches a telemetry recorder. nil disables it.
func (r *Router) SetRecorder(recorder Recorder) {
	r.recorder = recorder
}

// SetClock replaces the time source used for persisted timestamps.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Handle processes one message from the event feed.
//
// Nothing here is fatal. A dropped message is logged and returned as one
// of the Err* values; a non-transition message returns nil silently. A
// persistence failure is logged and does not undo the actuation.
//
// Parameters:
//   - ctx: Context for the persistence write
//   - topic: namespace/user/device/event
//   - payload: OwnTracks JSON message
//
// Returns:
//   - error: nil when routed or ignored, otherwise the drop reason
func (r *Router) Handle(ctx context.Context, topic string, payload []byte) error {
	r.logger.Debug("received message", "topic", topic, "payload", string(payload))

	event, err := DecodeEvent(payload)
	if err != nil {
		r.logger.Warn("dropping undecodable message", "topic", topic, "error", err)
		return err
	}
	if !event.IsTransition() {
		return nil
	}

	parsed, ok := mqtt.ParseEventTopic(topic)
	if !ok {
		r.logger.Warn("dropping message on malformed topic", "topic", topic)
		return fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
	}
	identity := parsed.Identity()

	p, ok := r.people.Lookup(identity)
	if !ok {
		r.logger.Warn("message for unknown user/device", "identity", identity)
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, identity)
	}

	z := r.zones.Resolve(event.ZoneAction(), event.Region)

	r.logger.Info("person moved",
		"person", p.DisplayName,
		"zone", z.Name,
		"angle", z.Angle,
		"event", event.Action,
		"region", event.Region,
	)
	r.actuator.SetChannelPosition(p.Channel, z.Angle)

	at := r.now()
	if err := r.store.RecordState(ctx, identity, z.Name, z.Angle, at); err != nil {
		r.logger.Error("state not persisted",
			"identity", identity,
			"zone", z.Name,
			"error", err,
		)
	}

	if r.recorder != nil {
		r.recorder.RecordTransition(Transition{
			Identity: identity,
			Person:   p.DisplayName,
			Zone:     z.Name,
			Angle:    z.Angle,
			At:       at,
		})
	}

	return nil
}

// Restore moves every known person's hand to their last persisted zone.
//
// Records whose identity no longer matches a configured person are logged
// and skipped.
//
// Returns:
//   - int: Number of hands restored
//   - error: Non-nil only if the store could not be read
func (r *Router) Restore(ctx context.Context) (int, error) {
	records, err := r.store.LatestStates(ctx)
	if err != nil {
		r.logger.Error("reading saved state", "error", err)
		return 0, fmt.Errorf("restoring state: %w", err)
	}

	restored := 0
	for _, rec := range records {
		p, ok := r.people.Lookup(rec.Identity)
		if !ok {
			r.logger.Error("saved state for unknown user/device", "identity", rec.Identity)
			continue
		}

		r.logger.Info("restoring last seen position",
			"person", p.DisplayName,
			"identity", rec.Identity,
			"zone", rec.ZoneName,
			"angle", rec.Angle,
			"last_seen", rec.Time().Local().Format(restoreTimeLayout),
		)
		r.actuator.SetChannelPosition(p.Channel, rec.Angle)
		restored++
	}

	return restored, nil
}
