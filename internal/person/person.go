package person

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
)

// ErrInvalidIdentity is returned when an identity pattern does not compile.
var ErrInvalidIdentity = errors.New("person: invalid identity pattern")

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Person is somebody tracked on the clock.
type Person struct {
	DisplayName   string
	TrackerUser   string
	TrackerDevice string

	// Channel is the actuator output showing this person.
	Channel int
}

// Identity returns the identity key, "<user>/<device>".
func (p Person) Identity() string {
	return p.TrackerUser + "/" + p.TrackerDevice
}

// entry pairs a compiled identity pattern with its person.
type entry struct {
	pattern *regexp.Regexp
	person  Person
}

// Registry looks up people by tracker identity. It is immutable once built.
type Registry struct {
	entries []entry
	logger  Logger
}

// NewRegistry builds a Registry from the declared people.
//
// People sharing an identity key are collapsed into one entry that keeps the
// position of the first declaration and the values of the last. Duplicate
// channel assignments are logged as warnings; they are not an error.
//
// Parameters:
//   - people: Declared people in configuration order
//   - logger: Receives duplicate warnings and lookup traces (nil for none)
//
// Returns:
//   - *Registry: Immutable registry
//   - error: ErrInvalidIdentity if an identity pattern does not compile
func NewRegistry(people []config.PersonConfig, logger Logger) (*Registry, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Registry{logger: logger}
	index := make(map[string]int, len(people))

	for _, pc := range people {
		if pc.Channel == nil {
			return nil, fmt.Errorf("person %s: channel is required", pc.Name)
		}
		p := Person{
			DisplayName:   pc.Name,
			TrackerUser:   pc.TrackerUser,
			TrackerDevice: pc.TrackerDevice,
			Channel:       *pc.Channel,
		}
		key := p.Identity()

		re, err := regexp.Compile(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidIdentity, key, err)
		}

		if i, dup := index[key]; dup {
			logger.Warn("person declared more than once, keeping last declaration",
				"identity", key,
				"replaced", r.entries[i].person.DisplayName,
				"name", p.DisplayName,
			)
			r.entries[i] = entry{pattern: re, person: p}
			continue
		}
		index[key] = len(r.entries)
		r.entries = append(r.entries, entry{pattern: re, person: p})
	}

	for channel, names := range r.DuplicateChannels() {
		logger.Warn("channel assigned to more than one person",
			"channel", channel,
			"people", names,
		)
	}

	return r, nil
}

// Lookup returns the first person whose identity pattern is found in identity.
func (r *Registry) Lookup(identity string) (Person, bool) {
	for _, e := range r.entries {
		r.logger.Debug("checking identity pattern", "pattern", e.pattern.String(), "identity", identity)
		if e.pattern.MatchString(identity) {
			return e.person, true
		}
	}
	return Person{}, false
}

// People returns every registered person in registration order.
func (r *Registry) People() []Person {
	people := make([]Person, len(r.entries))
	for i, e := range r.entries {
		people[i] = e.person
	}
	return people
}

// Channels returns the distinct channels in use, in registration order.
func (r *Registry) Channels() []int {
	seen := make(map[int]bool, len(r.entries))
	var channels []int
	for _, e := range r.entries {
		if !seen[e.person.Channel] {
			seen[e.person.Channel] = true
			channels = append(channels, e.person.Channel)
		}
	}
	return channels
}

// DuplicateChannels returns each channel assigned to more than one person,
// with the display names sharing it.
func (r *Registry) DuplicateChannels() map[int][]string {
	byChannel := make(map[int][]string)
	for _, e := range r.entries {
		byChannel[e.person.Channel] = append(byChannel[e.person.Channel], e.person.DisplayName)
	}

	dups := make(map[int][]string)
	for channel, names := range byChannel {
		if len(names) > 1 {
			sort.Strings(names)
			dups[channel] = names
		}
	}
	return dups
}

// Len returns the number of registered people.
func (r *Registry) Len() int {
	return len(r.entries)
}
