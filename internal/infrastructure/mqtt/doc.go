// Package mqtt provides the MQTT transport for the whereabouts clock.
//
// This package manages:
//   - A single paho client built from the mqtt config section
//   - One-shot connect attempts with timeout and context cancellation
//   - Subscriptions and publishes with QoS validation
//   - Last Will and Testament plus online/offline status messages
//   - Forwarding of paho's internal diagnostics into the structured logger
//
// Automatic reconnection in paho is switched off. The connection
// supervisor decides when to reconnect and re-subscribes after every
// successful connect, because subscriptions do not survive a clean
// session disconnect.
//
// Usage:
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnConnectionLost(func(err error) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    // retry later
//	}
//	err := client.Subscribe(mqtt.Topics{}.TransitionEvents("owntracks"), 1, handler)
package mqtt
