package session

import "github.com/nebulabroadcast/nebula-worker/internal/playout/controller"

// Stat is the playback snapshot served by "stat" and published on every
// progress tick.
type Stat struct {
	ChannelID    int                 `json:"id_channel"`
	FPS          float64             `json:"fps"`
	CurrentFname string              `json:"current_fname"`
	CuedFname    string              `json:"cued_fname"`
	RequestTime  float64             `json:"request_time"`
	Paused       bool                `json:"paused"`
	Position     float64             `json:"position"`
	Duration     float64             `json:"duration"`
	CurrentItem  *int64              `json:"current_item"`
	CuedItem     *int64              `json:"cued_item"`
	CurrentTitle *string             `json:"current_title"`
	CuedTitle    *string             `json:"cued_title"`
	Loop         bool                `json:"loop"`
	Cueing       string              `json:"cueing,omitempty"`
	CueState     controller.CueState `json:"cue_state"`
	EventID      *int64              `json:"id_event"`
	CurrentLive  bool                `json:"current_live"`
	CuedLive     bool                `json:"cued_live"`
}
