// Package logging provides structured logging for the whereabouts clock.
//
// This package wraps Go's standard log/slog package so every component logs
// key/value records with the same default fields (service, version).
//
// Configuration comes from the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("zone resolved", "person", "Alice", "zone", "home")
//	storeLog := logger.Component("statestore")
//
// Persistence, feed and per-event failures surface only through this
// logger; they never terminate the process.
package logging
