package osc

import (
	"strconv"
	"strings"
	"sync"
)

// ProducerEmpty is the producer name CasparCG reports for an unused layer.
const ProducerEmpty = "empty"

// Leaf holds the last known facts about one side of a layer.
type Leaf struct {
	// Name is the clip as reported by file/name or file/path.
	Name     string
	Producer string
	Position float64
	Duration float64
	FPS      float64
	Paused   bool
	Loop     bool
}

// IsEmpty reports whether nothing is loaded on this side of the layer.
func (l Leaf) IsEmpty() bool {
	return l.Producer == "" || l.Producer == ProducerEmpty
}

// Layer pairs the on-air (foreground) and preloaded (background) state.
type Layer struct {
	Foreground Leaf
	Background Leaf
}

type channelState struct {
	fps    float64
	layers map[int]*Layer
}

// Tree is the last-known-value store. It is safe for concurrent use.
type Tree struct {
	mu       sync.RWMutex
	channels map[int]*channelState
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{channels: make(map[int]*channelState)}
}

// Snapshot returns a copy of the layer state. ok is false when nothing has
// been received for that channel and layer yet.
func (t *Tree) Snapshot(channel, layer int) (Layer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ch, ok := t.channels[channel]
	if !ok {
		return Layer{}, false
	}
	l, ok := ch.layers[layer]
	if !ok {
		return Layer{}, false
	}
	return *l, true
}

// ChannelFPS returns the frame rate reported for the channel, 0 if unknown.
func (t *Tree) ChannelFPS(channel int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ch, ok := t.channels[channel]; ok {
		return ch.fps
	}
	return 0
}

// Apply stores the values of the messages. Messages with addresses the
// tree does not track are ignored. It reports how many were applied.
func (t *Tree) Apply(msgs []Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, m := range msgs {
		if t.applyLocked(m) {
			applied++
		}
	}
	return applied
}

func (t *Tree) channel(id int) *channelState {
	ch, ok := t.channels[id]
	if !ok {
		ch = &channelState{layers: make(map[int]*Layer)}
		t.channels[id] = ch
	}
	return ch
}

// applyLocked handles one message. Caller holds mu.
//
// Accepted addresses:
//
//	/channel/<ch>/framerate
//	/channel/<ch>/stage/layer/<l>/[foreground|background/]<field...>
//
// A layer path without a foreground/background segment is the 2.0 layout
// and refers to the foreground.
func (t *Tree) applyLocked(m Message) bool {
	parts := strings.Split(strings.TrimPrefix(m.Address, "/"), "/")
	if len(parts) < 3 || parts[0] != "channel" {
		return false
	}
	chID, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}

	if len(parts) == 3 && parts[2] == "framerate" {
		fps, ok := frameRate(m.Args)
		if !ok {
			return false
		}
		t.channel(chID).fps = fps
		return true
	}

	if len(parts) < 6 || parts[2] != "stage" || parts[3] != "layer" {
		return false
	}
	layerID, err := strconv.Atoi(parts[4])
	if err != nil {
		return false
	}

	field := parts[5:]
	background := false
	switch field[0] {
	case "foreground":
		field = field[1:]
	case "background":
		background = true
		field = field[1:]
	}
	if len(field) == 0 {
		return false
	}

	ch := t.channel(chID)
	layer, ok := ch.layers[layerID]
	if !ok {
		layer = &Layer{}
		ch.layers[layerID] = layer
	}
	leaf := &layer.Foreground
	if background {
		leaf = &layer.Background
	}
	return applyField(leaf, strings.Join(field, "/"), m.Args)
}

func applyField(leaf *Leaf, field string, args []any) bool {
	if len(args) == 0 {
		return false
	}
	switch field {
	case "file/name", "file/path":
		s, ok := args[0].(string)
		if !ok {
			return false
		}
		leaf.Name = s
	case "producer", "producer/type":
		s, ok := args[0].(string)
		if !ok {
			return false
		}
		leaf.Producer = s
		if s == ProducerEmpty {
			*leaf = Leaf{Producer: ProducerEmpty}
		}
	case "file/time":
		pos, ok := number(args[0])
		if !ok {
			return false
		}
		leaf.Position = pos
		if len(args) > 1 {
			if dur, ok := number(args[1]); ok {
				leaf.Duration = dur
			}
		}
	case "file/fps", "file/frame/fps":
		fps, ok := number(args[0])
		if !ok {
			return false
		}
		leaf.FPS = fps
	case "paused":
		b, ok := boolean(args[0])
		if !ok {
			return false
		}
		leaf.Paused = b
	case "loop", "file/loop":
		b, ok := boolean(args[0])
		if !ok {
			return false
		}
		leaf.Loop = b
	default:
		return false
	}
	return true
}

// frameRate accepts either a single number or a numerator/denominator pair.
func frameRate(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	num, ok := number(args[0])
	if !ok {
		return 0, false
	}
	if len(args) > 1 {
		den, ok := number(args[1])
		if !ok || den == 0 {
			return 0, false
		}
		return num / den, true
	}
	return num, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func boolean(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int32:
		return b != 0, true
	case int64:
		return b != 0, true
	}
	return false, false
}
