package status

import (
	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/mqtt"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

// Bus is the MQTT client as seen by the publishers.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AsRunMessage is published on the asrun topic for every advance.
type AsRunMessage struct {
	ChannelID int     `json:"id_channel"`
	AsRunID   int64   `json:"id_asrun"`
	UUID      string  `json:"uuid"`
	ItemID    int64   `json:"id_item"`
	AssetID   int64   `json:"id_asset,omitempty"`
	Title     string  `json:"title"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
}

// NewAsRunMessage describes an advance for the status bus.
func NewAsRunMessage(channelID int, rec *asrun.Record, item *catalog.Item) AsRunMessage {
	return AsRunMessage{
		ChannelID: channelID,
		AsRunID:   rec.ID,
		UUID:      rec.UUID,
		ItemID:    item.ID,
		AssetID:   item.AssetID,
		Title:     item.DisplayTitle(),
		Start:     catalog.UnixSeconds(rec.Start),
		Duration:  item.EffectiveDuration(),
	}
}

// MQTT publishes session output on the channel topics.
type MQTT struct {
	bus    Bus
	topics mqtt.Topics
	logger Logger
}

var _ session.Publisher = (*MQTT)(nil)

// NewMQTT creates the MQTT publisher.
func NewMQTT(bus Bus, topics mqtt.Topics, logger Logger) *MQTT {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTT{bus: bus, topics: topics, logger: logger}
}

// PublishStatus sends the retained status snapshot. Snapshots are dropped
// while the broker is unreachable; the next one supersedes them anyway.
func (p *MQTT) PublishStatus(channelID int, st session.Stat) {
	if !p.bus.IsConnected() {
		return
	}
	if err := p.bus.PublishJSON(p.topics.PlayoutStatus(channelID), st, true); err != nil {
		p.logger.Debug("status not published", "channel", channelID, "error", err)
	}
}

// PublishAdvance sends the advance event.
func (p *MQTT) PublishAdvance(channelID int, rec *asrun.Record, item *catalog.Item) {
	msg := NewAsRunMessage(channelID, rec, item)
	if err := p.bus.PublishJSON(p.topics.PlayoutAsRun(channelID), msg, false); err != nil {
		p.logger.Warn("advance not published", "channel", channelID, "item", item.ID, "error", err)
	}
}

// Publish sends a plugin payload on a channel-scoped topic.
func (p *MQTT) Publish(channelID int, name string, payload any) error {
	return p.bus.PublishJSON(p.topics.Playout(channelID, name), payload, false)
}
