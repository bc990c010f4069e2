package zone

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
)

// Fixed zone names.
const (
	NameTraveling   = "traveling"
	NameUnknown     = "unknown"
	NameLost        = "lost"
	NameMortalPeril = "mortal_peril"
)

// ErrInvalidPattern is returned when a named zone pattern does not compile.
var ErrInvalidPattern = errors.New("zone: invalid pattern")

// Action is the direction of a region transition.
type Action string

// Transition actions.
const (
	ActionEnter Action = "enter"
	ActionLeave Action = "leave"
)

// Zone is a position on the clock face.
type Zone struct {
	// Name is the unique zone name.
	Name string

	// Angle is the actuator angle pointing at this zone.
	Angle int

	// pattern is nil for the fixed zones.
	pattern *regexp.Regexp
}

// Pattern returns the match expression, or "" for fixed zones.
func (z Zone) Pattern() string {
	if z.pattern == nil {
		return ""
	}
	return z.pattern.String()
}

// matches reports whether the region description contains a match.
func (z Zone) matches(region string) bool {
	return z.pattern != nil && z.pattern.MatchString(region)
}

// Registry resolves transitions to zones.
type Registry struct {
	traveling   Zone
	unknown     Zone
	lost        Zone
	mortalPeril Zone
	named       []Zone
}

// NewRegistry builds a Registry from the zones section of the configuration.
//
// Returns:
//   - *Registry: Immutable registry
//   - error: ErrInvalidPattern if a named pattern fails to compile, or an
//     error naming a fixed zone whose angle is missing
func NewRegistry(cfg config.ZonesConfig) (*Registry, error) {
	fixed := func(name string, fz config.FixedZoneConfig) (Zone, error) {
		if fz.Angle == nil {
			return Zone{}, fmt.Errorf("zone %s: angle is required", name)
		}
		return Zone{Name: name, Angle: *fz.Angle}, nil
	}

	r := &Registry{named: make([]Zone, 0, len(cfg.Named))}
	var err error
	if r.traveling, err = fixed(NameTraveling, cfg.Traveling); err != nil {
		return nil, err
	}
	if r.unknown, err = fixed(NameUnknown, cfg.Unknown); err != nil {
		return nil, err
	}
	if r.lost, err = fixed(NameLost, cfg.Lost); err != nil {
		return nil, err
	}
	if r.mortalPeril, err = fixed(NameMortalPeril, cfg.MortalPeril); err != nil {
		return nil, err
	}

	seen := map[string]bool{
		NameTraveling: true, NameUnknown: true, NameLost: true, NameMortalPeril: true,
	}
	for _, n := range cfg.Named {
		if seen[n.Label] {
			return nil, fmt.Errorf("zone %s: duplicate name", n.Label)
		}
		seen[n.Label] = true

		if n.Angle == nil {
			return nil, fmt.Errorf("zone %s: angle is required", n.Label)
		}
		if n.Pattern == "" {
			return nil, fmt.Errorf("%w: zone %s has no pattern", ErrInvalidPattern, n.Label)
		}
		re, err := regexp.Compile(n.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: zone %s: %w", ErrInvalidPattern, n.Label, err)
		}
		r.named = append(r.named, Zone{Name: n.Label, Angle: *n.Angle, pattern: re})
	}

	return r, nil
}

// Resolve returns the zone for a transition.
//
// A leave always resolves to the traveling zone. Otherwise named zones are
// tried in declaration order and the first whose pattern is found anywhere
// in region wins; no match resolves to the unknown zone. Lost and mortal
// peril are never returned.
func (r *Registry) Resolve(action Action, region string) Zone {
	if action == ActionLeave {
		return r.traveling
	}
	for _, z := range r.named {
		if z.matches(region) {
			return z
		}
	}
	return r.unknown
}

// All returns every zone: the four fixed zones first, then named zones in
// declaration order.
func (r *Registry) All() []Zone {
	all := make([]Zone, 0, 4+len(r.named))
	all = append(all, r.traveling, r.unknown, r.lost, r.mortalPeril)
	return append(all, r.named...)
}

// Traveling returns the traveling zone.
func (r *Registry) Traveling() Zone { return r.traveling }

// Unknown returns the unknown zone.
func (r *Registry) Unknown() Zone { return r.unknown }

// Lost returns the lost zone.
func (r *Registry) Lost() Zone { return r.lost }

// MortalPeril returns the mortal peril zone.
func (r *Registry) MortalPeril() Zone { return r.mortalPeril }
