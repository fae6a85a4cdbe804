package catalog

import (
	"fmt"
	"math"
	"time"
)

// ObjectStatus is the availability of a media file.
type ObjectStatus string

// Object status values.
const (
	StatusOffline    ObjectStatus = "offline"
	StatusOnline     ObjectStatus = "online"
	StatusCreating   ObjectStatus = "creating"
	StatusCorrupted  ObjectStatus = "corrupted"
	StatusRetrieving ObjectStatus = "retrieving"
	StatusReset      ObjectStatus = "reset"
	StatusUnknown    ObjectStatus = "unknown"
)

// ParseObjectStatus validates a status string.
func ParseObjectStatus(s string) (ObjectStatus, error) {
	switch st := ObjectStatus(s); st {
	case StatusOffline, StatusOnline, StatusCreating, StatusCorrupted,
		StatusRetrieving, StatusReset, StatusUnknown:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Available reports whether a file in this state can be handed to the
// device: it exists, or it is being written and will exist by air time.
func (s ObjectStatus) Available() bool {
	return s == StatusOnline || s == StatusCreating
}

// RunMode controls whether an event or item advances automatically.
type RunMode string

// Run modes.
const (
	RunAuto   RunMode = "auto"
	RunManual RunMode = "manual"
	RunSoft   RunMode = "soft"
	RunHard   RunMode = "hard"
	RunSkip   RunMode = "skip"
)

// ParseRunMode validates a run mode string. The empty string is auto.
func ParseRunMode(s string) (RunMode, error) {
	if s == "" {
		return RunAuto, nil
	}
	switch rm := RunMode(s); rm {
	case RunAuto, RunManual, RunSoft, RunHard, RunSkip:
		return rm, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRunMode, s)
}

// ItemRole marks boundary and live items within a bin.
type ItemRole string

// Item roles. RoleNormal is the zero value.
const (
	RoleNormal  ItemRole = ""
	RoleLeadIn  ItemRole = "lead_in"
	RoleLeadOut ItemRole = "lead_out"
	RoleLive    ItemRole = "live"
)

// Asset is a media reference.
type Asset struct {
	ID        int64        `json:"id"`
	Title     string       `json:"title"`
	StorageID int          `json:"id_storage"`
	Path      string       `json:"path"`
	Duration  float64      `json:"duration"`
	FPS       float64      `json:"fps"`
	Status    ObjectStatus `json:"status"`
}

// Item is a playlist entry. Items without an asset are virtual: they carry
// their own duration and cannot be played from a file.
type Item struct {
	ID       int64    `json:"id"`
	BinID    int64    `json:"id_bin"`
	AssetID  int64    `json:"id_asset,omitempty"`
	Position int      `json:"position"`
	Title    string   `json:"title,omitempty"`
	MarkIn   float64  `json:"mark_in"`
	MarkOut  float64  `json:"mark_out"`
	Duration float64  `json:"duration"`
	Role     ItemRole `json:"item_role,omitempty"`
	RunMode  RunMode  `json:"run_mode"`
	Loop     bool     `json:"loop"`

	// Asset is loaded together with the item; nil for virtual items.
	Asset *Asset `json:"asset,omitempty"`
}

// IsVirtual reports whether the item has no media behind it.
func (i *Item) IsVirtual() bool {
	return i.AssetID == 0
}

// EffectiveDuration returns the on-air duration of the item in seconds.
//
// Marked items play mark_out - mark_in. Otherwise the raw asset duration is
// used; asset-level marks are deliberately ignored. Virtual items report
// their own duration.
func (i *Item) EffectiveDuration() float64 {
	if i.IsVirtual() {
		return i.Duration
	}
	if i.MarkOut > 0 {
		return i.MarkOut - i.MarkIn
	}
	if i.Asset != nil {
		return i.Asset.Duration
	}
	return 0
}

// DisplayTitle returns the item title, falling back to the asset title.
func (i *Item) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	if i.Asset != nil {
		return i.Asset.Title
	}
	return ""
}

// FPS returns the asset frame rate, 25 when unknown.
func (i *Item) FPS() float64 {
	if i.Asset != nil && i.Asset.FPS > 0 {
		return i.Asset.FPS
	}
	return 25
}

func (i *Item) String() string {
	if t := i.DisplayTitle(); t != "" {
		return fmt.Sprintf("item ID:%d (%s)", i.ID, t)
	}
	return fmt.Sprintf("item ID:%d", i.ID)
}

// Event is a schedule entry. BinID is zero for events without a playlist.
type Event struct {
	ID        int64     `json:"id"`
	ChannelID int       `json:"id_channel"`
	Start     time.Time `json:"start"`
	Title     string    `json:"title,omitempty"`
	RunMode   RunMode   `json:"run_mode"`
	BinID     int64     `json:"id_magic"`
}

func (e *Event) String() string {
	if e.Title != "" {
		return fmt.Sprintf("event ID:%d (%s)", e.ID, e.Title)
	}
	return fmt.Sprintf("event ID:%d", e.ID)
}

// UnixSeconds converts t to fractional unix seconds as stored in the
// events and asrun tables.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second)))).UTC()
}
