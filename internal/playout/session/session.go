package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/amcp"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/sequence"
)

const (
	// mainInterval is the scheduling tick.
	mainInterval = time.Second

	// statusInterval is the minimum gap between progress status messages.
	statusInterval = 300 * time.Millisecond

	// maxCueLevel bounds how many following items CueNext tries.
	maxCueLevel = 5
)

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

type noopPublisher struct{}

func (noopPublisher) PublishStatus(int, Stat)                          {}
func (noopPublisher) PublishAdvance(int, *asrun.Record, *catalog.Item) {}
func (noopPublisher) Publish(int, string, any) error                   { return nil }

// Deps are the collaborators of a Session.
type Deps struct {
	Channel    config.ChannelConfig
	Catalog    catalog.Repository
	Storages   *catalog.Storages
	AsRun      asrun.Repository
	Publisher  Publisher
	Logger     Logger
	PluginsDir string

	// Controller carries optional controller collaborators.
	Controller controller.Options
}

// Session is the playout orchestrator for one channel.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - mu guards the session fields only and is never held across calls
//     into the controller, the catalog or plugins.
//   - The plugin set is swapped atomically by Start; API handlers may run
//     before it is loaded and then see an empty set.
type Session struct {
	channel   config.ChannelConfig
	catalog   catalog.Repository
	storages  *catalog.Storages
	asrun     asrun.Repository
	resolver  *sequence.Resolver
	ctrl      controller.Controller
	plugins   atomic.Pointer[plugin.Set]
	publisher Publisher
	logger    Logger
	now       func() time.Time

	pluginsDir string

	mu           sync.Mutex
	baseCtx      context.Context //nolint:containedctx // Context for controller callbacks
	currentItem  *catalog.Item
	currentEvent *catalog.Event
	currentLive  bool
	cuedLive     bool
	autoEvent    int64
	lastRun      int64
	lastInfo     time.Time
}

// New creates a session and its device controller.
//
// Parameters:
//   - deps: Collaborators; Channel, Catalog, Storages and AsRun are required
//
// Returns:
//   - *Session: Ready to Run
//   - error: controller.ErrUnknownEngine for an unsupported engine
func New(deps Deps) (*Session, error) {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Controller.Logger == nil {
		deps.Controller.Logger = deps.Logger
	}

	s := &Session{
		channel:    deps.Channel,
		catalog:    deps.Catalog,
		storages:   deps.Storages,
		asrun:      deps.AsRun,
		publisher:  deps.Publisher,
		logger:     deps.Logger,
		now:        time.Now,
		pluginsDir: deps.PluginsDir,
		baseCtx:    context.Background(),
	}
	s.plugins.Store(plugin.NewSet(deps.Logger))

	s.resolver = sequence.NewResolver(deps.Catalog, deps.Channel.ID)
	s.resolver.SetLogger(deps.Logger)

	ctrl, err := controller.New(deps.Channel, deviceHost{s}, deps.Controller)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// ChannelID returns the playout channel id.
func (s *Session) ChannelID() int {
	return s.channel.ID
}

// Start loads plugins and starts the device controller.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	plugins := plugin.Load(ctx, s.pluginsDir, s.channel.Plugins, s, s.logger)
	s.plugins.Store(plugins)

	if err := s.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("starting controller: %w", err)
	}
	s.logger.Info("channel session started",
		"channel", s.channel.ID,
		"name", s.channel.Name,
		"plugins", plugins.Len(),
	)
	s.OnProgress()
	return nil
}

// Run starts the session and runs the scheduling tick until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck // Shutdown path

	if s.channel.RecoverOnStart {
		if err := s.Recover(ctx); err != nil {
			s.logger.Warn("startup recovery failed", "channel", s.channel.ID, "error", err)
		}
	}

	ticker := time.NewTicker(mainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.OnMain(ctx)
		}
	}
}

// Close stops the controller and waits for plugin work to finish.
func (s *Session) Close() error {
	err := s.ctrl.Close()
	s.plugins.Load().Wait()
	s.logger.Info("channel session stopped", "channel", s.channel.ID)
	return err
}

// Controller returns the device controller.
func (s *Session) Controller() controller.Controller {
	return s.ctrl
}

// Health returns the device counters of the channel controller.
func (s *Session) Health() controller.Health {
	return s.ctrl.Health()
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// CuedLive reports whether the cued item is a live source.
func (s *Session) CuedLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cuedLive
}

// CurrentLive reports whether a live source is on air.
func (s *Session) CurrentLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLive
}

// CurrentItem returns the item last confirmed on air.
func (s *Session) CurrentItem() *catalog.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentItem
}

// CuedItem returns the item loaded in the background, if any.
func (s *Session) CuedItem() *catalog.Item {
	return s.ctrl.Status().CuedItem
}

// Position returns the on-air position relative to mark-in, in seconds.
func (s *Session) Position() float64 {
	return s.ctrl.Status().Position
}

// Duration returns the on-air clip duration within its marks.
func (s *Session) Duration() float64 {
	return s.ctrl.Status().Duration
}

// Layer formats a device channel-layer address.
func (s *Session) Layer(layer int) string {
	return s.ctrl.Layer(layer)
}

// Query passes a raw device command through the controller.
func (s *Session) Query(ctx context.Context, command string) (*amcp.Response, error) {
	return s.ctrl.Query(ctx, command)
}

// Publish sends payload on a channel-scoped topic.
func (s *Session) Publish(name string, payload any) error {
	return s.publisher.Publish(s.channel.ID, name, payload)
}

var _ plugin.Host = (*Session)(nil)

// deviceHost adapts the session to the controller's callback contract.
type deviceHost struct {
	s *Session
}

var _ controller.Host = deviceHost{}

func (h deviceHost) OnChange()         { h.s.OnChange(h.s.context()) }
func (h deviceHost) OnProgress()       { h.s.OnProgress() }
func (h deviceHost) OnLiveEnter()      { h.s.OnLiveEnter() }
func (h deviceHost) OnLiveLeave()      { h.s.OnLiveLeave() }
func (h deviceHost) CuedLive() bool    { return h.s.CuedLive() }
func (h deviceHost) CurrentLive() bool { return h.s.CurrentLive() }

func (h deviceHost) CueNext(ctx context.Context) bool {
	return h.s.CueNext(ctx, nil, false) != nil
}

// Stat returns the full playback snapshot.
func (s *Session) Stat() Stat {
	st := s.ctrl.Status()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stat{
		ChannelID:    s.channel.ID,
		FPS:          s.channel.FPS,
		CurrentFname: st.CurrentFname,
		CuedFname:    st.CuedFname,
		RequestTime:  catalog.UnixSeconds(s.now()),
		Paused:       st.Paused,
		Position:     st.Position,
		Duration:     st.Duration,
		Loop:         st.Loop,
		CueState:     st.CueState,
		CurrentLive:  s.currentLive,
		CuedLive:     s.cuedLive,
	}
	if st.CueState == controller.CueCueing {
		out.Cueing = st.CueTarget
	}
	if item := st.CurrentItem; item != nil {
		id, title := item.ID, item.DisplayTitle()
		out.CurrentItem, out.CurrentTitle = &id, &title
	}
	if item := st.CuedItem; item != nil {
		id, title := item.ID, item.DisplayTitle()
		out.CuedItem, out.CuedTitle = &id, &title
	}
	if s.currentEvent != nil {
		id := s.currentEvent.ID
		out.EventID = &id
	}
	return out
}

// isNotFound reports whether err is a catalog miss.
func isNotFound(err error) bool {
	return errors.Is(err, catalog.ErrEventNotFound) || errors.Is(err, catalog.ErrItemNotFound)
}
