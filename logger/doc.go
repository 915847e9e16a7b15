// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap, and defines the canonical field constructors
// (request id, peer ip, cache key, container name, ...) so that every
// stage of a compile request logs the same keys.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("request received", logger.RequestID(id), logger.PeerIP(ip))
package logger
