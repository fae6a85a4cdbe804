package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "nebula-playout"

// Logger is the worker's structured logger. Every entry carries the service
// name and build version; channel loggers add the channel identity.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging section of the worker
// configuration. Output "stderr" writes to standard error, anything else to
// standard output.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter builds the logger on an arbitrary writer.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

// parseLevel maps a configured level name onto slog. "critical" is accepted
// for configurations carried over from older workers. Unknown names log at
// info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// ForChannel returns a child logger for one playout channel. Entries carry
// the channel id, its display name and the playout engine.
//
// Example:
//
//	chLog := log.ForChannel(chCfg)
//	chLog.Component("session").Info("advanced", "item", 42)
func (l *Logger) ForChannel(ch config.ChannelConfig) *Logger {
	args := []any{"channel", ch.ID}
	if ch.Name != "" {
		args = append(args, "channel_name", ch.Name)
	}
	if ch.Engine != "" {
		args = append(args, "engine", ch.Engine)
	}
	return l.With(args...)
}

// Default is the logger used before the configuration is loaded: JSON on
// standard output at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
