// Package supervisor keeps the MQTT event feed connected.
//
// The supervisor owns the connection lifecycle:
//
//	disconnected -> connecting -> connected -> disconnected (...)
//
// Features:
//   - First connect failure is not fatal; it enters the retry loop
//   - Immediate reconnect after an unexpected disconnect
//   - Bounded exponential backoff between failed attempts, reset on success
//   - Subscription reissued after every successful connect
//   - No retry after an expected local Stop
//
// Example usage:
//
//	sup := supervisor.New(client, supervisor.Config{
//	    Topic:       mqtt.Topics{}.TransitionEvents("owntracks"),
//	    QoS:         1,
//	    Handler:     handler,
//	    MinInterval: time.Second,
//	    MaxInterval: 120 * time.Second,
//	})
//	sup.Start(ctx)
//	defer sup.Stop()
package supervisor
