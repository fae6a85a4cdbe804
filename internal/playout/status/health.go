package status

import (
	"context"
	"sync"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/influxdb"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/mqtt"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
)

// Health status values.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthStopping = "stopping"
)

// Reporter defaults.
const (
	DefaultHealthInterval   = 30 * time.Second
	DefaultTelemetryTimeout = 5 * time.Second
)

// HealthMessage is published retained on the channel health topic.
type HealthMessage struct {
	ChannelID        int       `json:"id_channel"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	Connected        bool      `json:"connected"`
	Queries          uint64    `json:"queries"`
	Errors           uint64    `json:"errors"`
	Reconnects       uint64    `json:"reconnects"`
	TelemetryAge     *float64  `json:"telemetry_age"`
	TelemetryPackets uint64    `json:"telemetry_packets"`
	TelemetryDropped uint64    `json:"telemetry_dropped"`
	Uptime           int64     `json:"uptime_seconds"`
	Timestamp        time.Time `json:"timestamp"`
}

// HealthSource provides device counters, typically the channel controller.
type HealthSource interface {
	Health() controller.Health
}

// HealthWriter records health samples, typically the InfluxDB client.
type HealthWriter interface {
	WriteHealth(h influxdb.Health)
}

// ReporterConfig holds configuration for a channel health reporter.
type ReporterConfig struct {
	ChannelID int

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// TelemetryTimeout marks the channel degraded once telemetry is older.
	// Default: 5 seconds.
	TelemetryTimeout time.Duration

	Source HealthSource

	// Bus and Influx are optional; a reporter with neither only logs.
	Bus    Bus
	Topics mqtt.Topics
	Influx HealthWriter

	Logger Logger
}

// Reporter publishes a channel's device health at a fixed interval.
//
// Thread Safety:
//   - Run must be called once. Stop may be called from any goroutine.
type Reporter struct {
	cfg       ReporterConfig
	startTime time.Time
	now       func() time.Time
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.Mutex
	lastStatus string
}

// NewReporter creates a health reporter.
//
// Parameters:
//   - cfg: Reporter configuration; Source is required
//
// Returns:
//   - *Reporter: Ready to run
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if cfg.TelemetryTimeout <= 0 {
		cfg.TelemetryTimeout = DefaultTelemetryTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reporter{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run publishes immediately and then on every interval until ctx is
// cancelled or Stop is called. The last message published is "stopping".
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.Publish()
	for {
		select {
		case <-ctx.Done():
			r.publishStopping()
			return nil
		case <-r.done:
			r.publishStopping()
			return nil
		case <-ticker.C:
			r.Publish()
		}
	}
}

// Stop ends Run.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Publish reports the current health once.
func (r *Reporter) Publish() HealthMessage {
	msg := r.snapshot()

	r.mu.Lock()
	changed := msg.Status != r.lastStatus
	r.lastStatus = msg.Status
	r.mu.Unlock()
	if changed && msg.Status == HealthDegraded {
		r.logger.Warn("channel degraded", "channel", msg.ChannelID, "reason", msg.Reason)
	} else if changed {
		r.logger.Info("channel health", "channel", msg.ChannelID, "status", msg.Status)
	}

	r.send(msg)
	if r.cfg.Influx != nil {
		age := time.Duration(-1)
		if msg.TelemetryAge != nil {
			age = time.Duration(*msg.TelemetryAge * float64(time.Second))
		}
		r.cfg.Influx.WriteHealth(influxdb.Health{
			ChannelID:    msg.ChannelID,
			Connected:    msg.Connected,
			Queries:      msg.Queries,
			Errors:       msg.Errors,
			Reconnects:   msg.Reconnects,
			TelemetryAge: age,
		})
	}
	return msg
}

func (r *Reporter) publishStopping() {
	msg := r.snapshot()
	msg.Status = HealthStopping
	msg.Reason = ""
	r.send(msg)
}

func (r *Reporter) send(msg HealthMessage) {
	if r.cfg.Bus == nil || !r.cfg.Bus.IsConnected() {
		return
	}
	if err := r.cfg.Bus.PublishJSON(r.cfg.Topics.PlayoutHealth(msg.ChannelID), msg, true); err != nil {
		r.logger.Warn("health not published", "channel", msg.ChannelID, "error", err)
	}
}

func (r *Reporter) snapshot() HealthMessage {
	h := r.cfg.Source.Health()
	now := r.now()

	msg := HealthMessage{
		ChannelID:        r.cfg.ChannelID,
		Connected:        h.Connected,
		Queries:          h.Queries,
		Errors:           h.Errors,
		Reconnects:       h.Reconnects,
		TelemetryPackets: h.TelemetryPackets,
		TelemetryDropped: h.TelemetryDropped,
		Uptime:           int64(now.Sub(r.startTime).Seconds()),
		Timestamp:        now.UTC(),
	}
	if !h.LastTelemetry.IsZero() {
		age := now.Sub(h.LastTelemetry).Seconds()
		msg.TelemetryAge = &age
	}
	msg.Status, msg.Reason = r.determineStatus(h, now)
	return msg
}

func (r *Reporter) determineStatus(h controller.Health, now time.Time) (status, reason string) {
	switch {
	case !h.Connected:
		return HealthDegraded, "device disconnected"
	case h.LastTelemetry.IsZero():
		return HealthDegraded, "no telemetry received"
	case now.Sub(h.LastTelemetry) > r.cfg.TelemetryTimeout:
		return HealthDegraded, "telemetry stale"
	}
	return HealthHealthy, ""
}
