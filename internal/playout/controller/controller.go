package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/amcp"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/osc"
)

// CueState is the cueing tri-state shared by all engines.
type CueState string

// Cue states.
const (
	CueIdle    CueState = "idle"
	CueCueing  CueState = "cueing"
	CueCued    CueState = "cued"
	liveMarker          = "LIVE"
)

// CueRequest describes what to load and how.
type CueRequest struct {
	Item  *catalog.Item
	Fname string
	Play  bool
	Auto  bool
	Loop  bool
}

// Status is a point-in-time copy of the controller's playback state.
type Status struct {
	CurrentItem  *catalog.Item
	CuedItem     *catalog.Item
	CurrentFname string
	CuedFname    string
	CueState     CueState
	CueTarget    string
	Position     float64
	Duration     float64
	FPS          float64
	Paused       bool
	Loop         bool
}

// Health describes the device link.
type Health struct {
	Connected     bool
	LastTelemetry time.Time
	Queries       uint64
	Errors        uint64
	Reconnects    uint64

	// Telemetry datagrams accepted and dropped, when the source counts them.
	TelemetryPackets uint64
	TelemetryDropped uint64
}

// Host is implemented by the channel session.
type Host interface {
	// OnChange is called after a confirmed advance.
	OnChange()
	// OnProgress is called on every loop tick.
	OnProgress()
	// OnLiveEnter and OnLiveLeave toggle the live overlay.
	OnLiveEnter()
	OnLiveLeave()
	// CueNext cues the item following the current one and reports
	// whether something was cued.
	CueNext(ctx context.Context) bool
	// CuedLive reports whether the cued item is a live source.
	CuedLive() bool
	// CurrentLive reports whether a live source is on air.
	CurrentLive() bool
}

// Controller is the engine-independent device contract.
type Controller interface {
	// Start binds telemetry and launches the polling loop.
	Start(ctx context.Context) error
	Cue(ctx context.Context, req CueRequest) error
	Take(ctx context.Context) error
	Retake(ctx context.Context) error
	Freeze(ctx context.Context) error
	Abort(ctx context.Context) error
	Clear(ctx context.Context) error
	// Set changes an engine property. Only "loop" is supported.
	Set(ctx context.Context, key, value string) error
	// Query sends a raw device command, for plugins.
	Query(ctx context.Context, command string) (*amcp.Response, error)
	// OnMain runs once per scheduling tick.
	OnMain(ctx context.Context)
	// Restore makes item current and forgets any cued item. Used by
	// crash recovery.
	Restore(item *catalog.Item)
	// Layer returns "<device channel>-<layer>" for plugin commands.
	Layer(layer int) string
	Status() Status
	Health() Health
	Close() error
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

// Recorder receives controller metrics.
type Recorder interface {
	QueryDone(channelID int, d time.Duration, err error)
	Advanced(channelID int)
	CueFailed(channelID int)
}

type noopRecorder struct{}

func (noopRecorder) QueryDone(int, time.Duration, error) {}
func (noopRecorder) Advanced(int)                        {}
func (noopRecorder) CueFailed(int)                       {}

// Telemetry is the device state source polled by the loop.
type Telemetry interface {
	Start(ctx context.Context) error
	Snapshot(channel, layer int) (osc.Layer, bool)
	ChannelFPS(channel int) float64
	LastPacket() time.Time
	Close() error
}

// Options carry optional collaborators. Zero values select defaults.
type Options struct {
	Logger   Logger
	Recorder Recorder

	// Querier and Telemetry replace the network clients built from the
	// channel configuration.
	Querier   amcp.Querier
	Telemetry Telemetry
}

// New creates the controller for the channel's configured engine.
//
// Parameters:
//   - cfg: Channel configuration; cfg.Engine selects the implementation
//   - host: The channel session
//   - opts: Optional collaborators
//
// Returns:
//   - Controller: Ready to Start
//   - error: ErrUnknownEngine for unsupported engines
func New(cfg config.ChannelConfig, host Host, opts Options) (Controller, error) {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	switch cfg.Engine {
	case config.EngineCasparCG:
		return newCasparCG(cfg, host, opts), nil
	}
	return nil, fmt.Errorf("%w: %q (channel %d)", ErrUnknownEngine, cfg.Engine, cfg.ID)
}
