// Package actuator drives the clock hands.
//
// Two implementations are provided:
//   - MQTT publishes retained position commands for a servo bridge process
//     that owns the PWM board
//   - Log only logs positions (no hardware attached)
//
// SelfTest sweeps every hand through its range and across every zone,
// used at startup when the clock is run with --servo-test.
package actuator
