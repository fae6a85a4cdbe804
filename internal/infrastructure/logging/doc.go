// Package logging provides structured logging for the playout worker.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same shape.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Channel scoping via ForChannel (id, name, engine)
//   - Component scoping via Component
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
//	chLogger := logger.ForChannel(chCfg).Component("session")
//	chLogger.Info("advanced", "item", 42)
//
// Lower-level packages (amcp, osc, controller, session) do not import this
// package. They accept a small Logger interface that *Logger satisfies.
package logging
