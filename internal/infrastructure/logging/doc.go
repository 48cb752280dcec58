// Package logging provides structured logging for Tank Relay.
//
// It wraps log/slog so every entry carries the service name and version.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relay starting", "device", cfg.Serial.Device)
//	logger.Component("publisher").Warn("publish failed", "error", err)
//
// Never log MQTT passwords.
package logging
