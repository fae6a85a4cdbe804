package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAdvance  = "playout_advance"
	MeasurementProgress = "playout_progress"
	MeasurementHealth   = "playout_health"
)

// Advance describes an item going on air.
type Advance struct {
	ChannelID int
	ItemID    int64
	AssetID   int64
	Title     string
	// Duration is the effective on-air duration in seconds.
	Duration float64
	Start    time.Time
}

// Progress is one on-air position sample.
type Progress struct {
	ChannelID int
	ItemID    int64
	Position  float64
	Duration  float64
	Paused    bool
	Live      bool
}

// Health is one device health sample.
type Health struct {
	ChannelID  int
	Connected  bool
	Queries    uint64
	Errors     uint64
	Reconnects uint64
	// TelemetryAge is the time since the last telemetry packet; negative
	// when none has ever arrived.
	TelemetryAge time.Duration
}

func (c *Client) tags(channelID int) map[string]string {
	return map[string]string{
		"site":       c.site,
		"id_channel": strconv.Itoa(channelID),
	}
}

// WriteAdvance records an item going on air at a.Start, or now when unset.
func (c *Client) WriteAdvance(a Advance) {
	ts := a.Start
	if ts.IsZero() {
		ts = c.now()
	}
	c.WritePointWithTime(MeasurementAdvance, c.tags(a.ChannelID), map[string]any{
		"id_item":  a.ItemID,
		"id_asset": a.AssetID,
		"title":    a.Title,
		"duration": a.Duration,
	}, ts)
}

// WriteProgress records an on-air position sample.
func (c *Client) WriteProgress(p Progress) {
	c.WritePoint(MeasurementProgress, c.tags(p.ChannelID), map[string]any{
		"id_item":  p.ItemID,
		"position": p.Position,
		"duration": p.Duration,
		"paused":   p.Paused,
		"live":     p.Live,
	})
}

// WriteHealth records device health counters.
func (c *Client) WriteHealth(h Health) {
	fields := map[string]any{
		"connected":  h.Connected,
		"queries":    int64(h.Queries),    //nolint:gosec // Counters stay far below MaxInt64
		"errors":     int64(h.Errors),     //nolint:gosec // Counters stay far below MaxInt64
		"reconnects": int64(h.Reconnects), //nolint:gosec // Counters stay far below MaxInt64
	}
	if h.TelemetryAge >= 0 {
		fields["telemetry_age"] = h.TelemetryAge.Seconds()
	}
	c.WritePoint(MeasurementHealth, c.tags(h.ChannelID), fields)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
// Points are dropped silently after Close.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
