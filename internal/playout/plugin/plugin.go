package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/amcp"
)

// Host is the channel session as seen by plugins.
type Host interface {
	ChannelID() int
	CurrentItem() *catalog.Item
	CuedItem() *catalog.Item
	Position() float64
	Duration() float64
	// Layer formats "<device channel>-<layer>".
	Layer(layer int) string
	// Query sends a raw device command.
	Query(ctx context.Context, command string) (*amcp.Response, error)
	// Publish sends payload on the channel's topic named by name.
	Publish(name string, payload any) error
}

// Plugin is the capability contract every plugin kind implements.
type Plugin interface {
	OnInit(ctx context.Context) error
	OnMain(ctx context.Context) error
	OnChange(ctx context.Context) error
	// OnCommand handles an operator action and reports success.
	OnCommand(ctx context.Context, action string, data map[string]any) bool
}

// Factory builds a plugin of one kind from its manifest.
type Factory func(m Manifest, host Host) (Plugin, error)

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

// Kinds maps manifest kinds to their factories.
var Kinds = map[string]Factory{
	KindCG:         newCG,
	KindNowPlaying: newNowPlaying,
}

type instance struct {
	manifest Manifest
	plugin   Plugin
	busy     atomic.Bool
}

// Set holds the active plugins of one channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Each plugin has at most one OnMain goroutine.
type Set struct {
	instances []*instance
	logger    Logger
	wg        sync.WaitGroup
}

// NewSet creates an empty plugin set.
func NewSet(logger Logger) *Set {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Set{logger: logger}
}

// Load reads "<dir>/<name>.yaml" for each name and initialises the plugins.
//
// A plugin that is missing, invalid or fails OnInit is logged and skipped;
// the remaining plugins still load.
//
// Parameters:
//   - ctx: Passed to OnInit
//   - dir: Plugins directory
//   - names: Plugin names enabled on the channel
//   - host: The channel session
//   - logger: Optional logger (nil for none)
//
// Returns:
//   - *Set: The plugins that loaded, possibly none
func Load(ctx context.Context, dir string, names []string, host Host, logger Logger) *Set {
	s := NewSet(logger)
	if len(names) == 0 {
		return s
	}
	if dir == "" {
		s.logger.Warn("plugins directory not configured", "plugins", names)
		return s
	}
	if _, err := os.Stat(dir); err != nil {
		s.logger.Warn("plugins directory does not exist", "dir", dir)
		return s
	}

	for _, name := range names {
		m, err := LoadManifest(filepath.Join(dir, name+".yaml"))
		if err != nil {
			s.logger.Error("unable to load plugin", "plugin", name, "error", err)
			continue
		}
		if err := s.Add(ctx, *m, host); err != nil {
			s.logger.Error("unable to initialise plugin", "plugin", name, "error", err)
			continue
		}
		s.logger.Info("plugin initialised", "plugin", m.Name, "kind", m.Kind)
	}
	return s
}

// Add builds and initialises a plugin from a manifest.
func (s *Set) Add(ctx context.Context, m Manifest, host Host) error {
	factory, ok := Kinds[m.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	p, err := factory(m, host)
	if err != nil {
		return err
	}
	return s.add(ctx, m, p)
}

func (s *Set) add(ctx context.Context, m Manifest, p Plugin) error {
	inst := &instance{manifest: m, plugin: p}
	inst.busy.Store(true)
	err := p.OnInit(ctx)
	inst.busy.Store(false)
	if err != nil {
		return fmt.Errorf("initialising %s: %w", m.Name, err)
	}
	s.instances = append(s.instances, inst)
	return nil
}

// Len returns the number of active plugins.
func (s *Set) Len() int {
	return len(s.instances)
}

// Tick starts OnMain for every plugin that is not already running it.
func (s *Set) Tick(ctx context.Context) {
	for _, inst := range s.instances {
		if !inst.busy.CompareAndSwap(false, true) {
			continue
		}
		s.wg.Add(1)
		go func(inst *instance) {
			defer s.wg.Done()
			defer inst.busy.Store(false)
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("plugin panicked", "plugin", inst.manifest.Name, "panic", r)
				}
			}()
			if err := inst.plugin.OnMain(ctx); err != nil {
				s.logger.Error("plugin main failed", "plugin", inst.manifest.Name, "error", err)
			}
		}(inst)
	}
}

// OnChange notifies every plugin of an advance. Errors and panics are
// logged and never stop the remaining plugins.
func (s *Set) OnChange(ctx context.Context) {
	for _, inst := range s.instances {
		s.notifyChange(ctx, inst)
	}
}

func (s *Set) notifyChange(ctx context.Context, inst *instance) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin panicked", "plugin", inst.manifest.Name, "panic", r)
		}
	}()
	if err := inst.plugin.OnChange(ctx); err != nil {
		s.logger.Error("plugin on_change failed", "plugin", inst.manifest.Name, "error", err)
	}
}

// List returns the manifests of plugins that expose operator controls.
func (s *Set) List() []Manifest {
	out := []Manifest{}
	for _, inst := range s.instances {
		if len(inst.manifest.Slots) == 0 {
			continue
		}
		out = append(out, inst.manifest)
	}
	return out
}

// Exec runs an operator action on the named plugin.
//
// Returns:
//   - error: ErrNotFound for unknown names, ErrCommandFailed when the
//     plugin rejects the action
func (s *Set) Exec(ctx context.Context, name, action string, data map[string]any) error {
	for _, inst := range s.instances {
		if inst.manifest.Name != name {
			continue
		}
		if !inst.plugin.OnCommand(ctx, action, data) {
			return fmt.Errorf("%w: %s %s", ErrCommandFailed, name, action)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Wait blocks until all in-flight OnMain calls return.
func (s *Set) Wait() {
	s.wg.Wait()
}

// IsNotFound reports whether err means the plugin is not active.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
