package plugin

import (
	"context"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
)

// KindNowPlaying is the now/next publishing plugin kind.
const KindNowPlaying = "nowplaying"

// Entry is one side of a now/next pair.
type Entry struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// NowPlaying is the payload published after every advance.
type NowPlaying struct {
	Channel  int     `json:"id_channel"`
	Now      *Entry  `json:"now"`
	Next     *Entry  `json:"next"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// nowPlaying publishes the current and cued items.
//
// Settings:
//   - topic: topic name under the channel, default "nowplaying"
type nowPlaying struct {
	host  Host
	topic string
}

func newNowPlaying(m Manifest, host Host) (Plugin, error) {
	topic := m.Settings["topic"]
	if topic == "" {
		topic = KindNowPlaying
	}
	return &nowPlaying{host: host, topic: topic}, nil
}

func (p *nowPlaying) OnInit(context.Context) error { return nil }

func (p *nowPlaying) OnMain(context.Context) error { return nil }

func (p *nowPlaying) OnChange(context.Context) error {
	return p.host.Publish(p.topic, p.snapshot())
}

func (p *nowPlaying) OnCommand(_ context.Context, action string, _ map[string]any) bool {
	if action != "refresh" {
		return false
	}
	return p.host.Publish(p.topic, p.snapshot()) == nil
}

func (p *nowPlaying) snapshot() NowPlaying {
	return NowPlaying{
		Channel:  p.host.ChannelID(),
		Now:      entry(p.host.CurrentItem()),
		Next:     entry(p.host.CuedItem()),
		Position: p.host.Position(),
		Duration: p.host.Duration(),
	}
}

func entry(item *catalog.Item) *Entry {
	if item == nil {
		return nil
	}
	return &Entry{ID: item.ID, Title: item.DisplayTitle(), Duration: item.EffectiveDuration()}
}
