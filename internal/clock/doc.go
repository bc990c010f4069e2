// Package clock runs the whereabouts clock.
//
// A Service owns the reloadable state of the clock, called the snapshot:
// configuration, zone and person registries, the state database and the
// actuator. It processes everything on one loop:
//
//   - feed messages, enqueued by the MQTT handler and routed one at a time
//   - reload requests (SIGHUP), applied between messages
//   - feed connectivity changes, which release deferred startup work
//
// Startup work (the optional self-test, then restoring every hand from the
// state file) runs after Start and again after every successful reload.
// When the actuator needs the feed connection it waits until the feed is up.
//
// A reload never touches the live MQTT connection. Changes to the mqtt
// section are logged and take effect on the next restart.
package clock
