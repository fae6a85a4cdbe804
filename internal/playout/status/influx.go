package status

import (
	"sync"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/influxdb"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

// DefaultSampleInterval is the minimum gap between progress points of a
// channel.
const DefaultSampleInterval = time.Second

// PointWriter is the InfluxDB client as seen by the publisher.
type PointWriter interface {
	WriteAdvance(a influxdb.Advance)
	WriteProgress(p influxdb.Progress)
}

// Influx records advances and sampled progress as history points.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Influx struct {
	w        PointWriter
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[int]time.Time
}

var _ session.Publisher = (*Influx)(nil)

// NewInflux creates the history publisher. A zero interval selects
// DefaultSampleInterval.
func NewInflux(w PointWriter, interval time.Duration) *Influx {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Influx{
		w:        w,
		interval: interval,
		now:      time.Now,
		last:     make(map[int]time.Time),
	}
}

// PublishStatus samples the on-air position. Idle channels are not
// recorded.
func (p *Influx) PublishStatus(channelID int, st session.Stat) {
	if st.CurrentItem == nil && !st.CurrentLive {
		return
	}

	now := p.now()
	p.mu.Lock()
	due := now.Sub(p.last[channelID]) >= p.interval
	if due {
		p.last[channelID] = now
	}
	p.mu.Unlock()
	if !due {
		return
	}

	var itemID int64
	if st.CurrentItem != nil {
		itemID = *st.CurrentItem
	}
	p.w.WriteProgress(influxdb.Progress{
		ChannelID: channelID,
		ItemID:    itemID,
		Position:  st.Position,
		Duration:  st.Duration,
		Paused:    st.Paused,
		Live:      st.CurrentLive,
	})
}

// PublishAdvance records the advance at the as-run start time.
func (p *Influx) PublishAdvance(channelID int, rec *asrun.Record, item *catalog.Item) {
	p.w.WriteAdvance(influxdb.Advance{
		ChannelID: channelID,
		ItemID:    item.ID,
		AssetID:   item.AssetID,
		Title:     item.DisplayTitle(),
		Duration:  item.EffectiveDuration(),
		Start:     rec.Start,
	})
}

// Publish ignores plugin payloads.
func (p *Influx) Publish(int, string, any) error { return nil }
