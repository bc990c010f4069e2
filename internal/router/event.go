package router

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/whereabouts/internal/zone"
)

// TypeTransition is the OwnTracks message type the router acts on.
const TypeTransition = "transition"

// Event is the subset of an OwnTracks message the router reads.
type Event struct {
	Type   string `json:"_type"`
	Action string `json:"event"`
	Region string `json:"desc"`
}

// IsTransition reports whether the event is a region transition.
func (e Event) IsTransition() bool {
	return e.Type == TypeTransition
}

// ZoneAction maps the OwnTracks event name onto a zone action.
// Anything other than "leave" resolves like an enter.
func (e Event) ZoneAction() zone.Action {
	if e.Action == string(zone.ActionLeave) {
		return zone.ActionLeave
	}
	return zone.ActionEnter
}

// DecodeEvent parses an OwnTracks payload.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return e, nil
}
