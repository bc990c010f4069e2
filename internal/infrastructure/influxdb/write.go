package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTransition is the measurement every routed transition is written to.
const MeasurementTransition = "zone_transition"

// TransitionPoint builds the point for one transition.
//
// Tags are low cardinality (one value per configured person and zone), the
// angle is the only field.
func TransitionPoint(identity, person, zone string, angle int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTransition,
		map[string]string{
			"identity": identity,
			"person":   person,
			"zone":     zone,
		},
		map[string]interface{}{
			"angle": angle,
		},
		at,
	)
}

// WriteTransition records a person moving into a zone.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Errors are delivered to the SetOnError callback.
//
// Parameters:
//   - identity: user/device the event came from (e.g., "alice/phone1")
//   - person: Display name of the matched person
//   - zone: Resolved zone name
//   - angle: Hand angle for the zone
//   - at: Time the transition was persisted
func (c *Client) WriteTransition(identity, person, zone string, angle int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(TransitionPoint(identity, person, zone, angle, at))
}
