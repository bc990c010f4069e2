// Package router turns OwnTracks transition messages into clock hand moves.
//
// For each message the router:
//  1. Decodes the JSON payload (undecodable payloads are dropped)
//  2. Ignores anything that is not a transition
//  3. Resolves the topic's user/device identity to a person
//  4. Resolves the zone from the event action and region description
//  5. Moves the person's hand, then persists the new state
//
// Actuation always happens before persistence, so a failed write never
// stops the hand from moving; it only means the position may not survive a
// restart.
//
// Restore replays the last persisted state of every person onto the
// actuator at startup and after a configuration reload.
//
// Thread Safety: a Router is meant to be driven from a single loop.
// Handle and Restore must not be called concurrently.
package router
