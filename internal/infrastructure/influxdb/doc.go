// Package influxdb provides optional InfluxDB telemetry for the clock.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, transition writes and health monitoring.
//
// # Purpose
//
// Every routed transition is written as a zone_transition point, giving a
// queryable history of who was where alongside the SQLite state file.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "home",
//	    Bucket:  "whereabouts",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTransition("alice/phone1", "Alice", "home", 45, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via a
// callback. Connection and health check errors are returned directly.
package influxdb
