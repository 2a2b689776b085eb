// Package logging provides structured logging for the fireplace bridge.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Setting debug: true at the top level forces the debug level.
//
// Never log broker or device passwords.
package logging
