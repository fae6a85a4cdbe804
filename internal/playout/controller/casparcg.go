package controller

import (
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/amcp"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/osc"
)

const (
	// stuckCueTimeout is how long a cue may wait for telemetry
	// confirmation before it is abandoned and retried.
	stuckCueTimeout = 5 * time.Second

	// telemetryTimeout is how long without packets before OnMain warns.
	telemetryTimeout = 5 * time.Second
)

// pendingCue is the in-flight half of the cue tri-state.
type pendingCue struct {
	target string
	item   *catalog.Item
	since  time.Time
}

// casparCG controls one CasparCG channel layer over AMCP and watches it
// over OSC.
//
// Thread Safety:
//   - mu guards all playback state.
//   - Cue holds mu for the whole device round-trip, so at most one cue is
//     in flight per channel.
//   - Host callbacks run with mu released.
type casparCG struct {
	cfg       config.ChannelConfig
	host      Host
	amcp      amcp.Querier
	telemetry Telemetry
	logger    Logger
	recorder  Recorder
	now       func() time.Time

	mu           sync.Mutex
	current      *catalog.Item
	cued         *catalog.Item
	currentFname string
	cuedFname    string
	state        CueState
	pending      pendingCue
	position     float64
	duration     float64
	fps          float64
	paused       bool
	loop         bool

	// Shutdown coordination
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Controller = (*casparCG)(nil)

func newCasparCG(cfg config.ChannelConfig, host Host, opts Options) *casparCG {
	querier := opts.Querier
	if querier == nil {
		client := amcp.New(amcp.Config{Host: cfg.Caspar.Host, Port: cfg.Caspar.Port})
		client.SetLogger(opts.Logger)
		querier = client
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		listener := osc.NewListener(net.JoinHostPort("", strconv.Itoa(cfg.Caspar.OSCPort)))
		listener.SetLogger(opts.Logger)
		telemetry = listener
	}

	return &casparCG{
		cfg:       cfg,
		host:      host,
		amcp:      querier,
		telemetry: telemetry,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		now:       time.Now,
		state:     CueIdle,
		fps:       cfg.FPS,
		done:      make(chan struct{}),
	}
}

// Start binds the telemetry socket, makes a first connection attempt and
// launches the per-frame loop.
func (c *casparCG) Start(ctx context.Context) error {
	if err := c.telemetry.Start(ctx); err != nil {
		return fmt.Errorf("starting telemetry for channel %d: %w", c.cfg.ID, err)
	}

	if connector, ok := c.amcp.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			// The client reconnects on the next query.
			c.logger.Error("unable to connect to CasparCG", "channel", c.cfg.ID, "error", err)
		}
	}

	c.wg.Add(1)
	go c.run(ctx)

	c.logger.Info("controller started",
		"channel", c.cfg.ID,
		"engine", c.cfg.Engine,
		"layer", c.feedLayer(),
	)
	return nil
}

func (c *casparCG) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.safeTick(ctx)
		}
	}
}

// safeTick keeps the loop alive if a tick panics.
func (c *casparCG) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in controller loop", "channel", c.cfg.ID, "panic", r)
		}
	}()
	c.tick(ctx)
}

// tick reconciles state with one telemetry snapshot.
func (c *casparCG) tick(ctx context.Context) {
	layer, ok := c.telemetry.Snapshot(c.cfg.Caspar.Channel, c.cfg.Caspar.FeedLayer)
	if !ok {
		return
	}
	fg, bg := layer.Foreground, layer.Background
	currentName := baseName(fg.Name)
	cuedName := baseName(bg.Name)
	cuedLive := c.host.CuedLive()

	var advanced, liveEnter bool

	c.mu.Lock()
	if fps := c.telemetry.ChannelFPS(c.cfg.Caspar.Channel); fps > 0 {
		c.fps = fps
	}
	c.paused = fg.Paused
	c.loop = fg.Loop
	c.position = fg.Position
	c.duration = c.clampedDuration(fg.Duration)

	cueing := c.state == CueCueing
	switch {
	case cuedLive:
		if bg.IsEmpty() && !fg.IsEmpty() && !cueing {
			c.logger.Info("advanced to live source", "channel", c.cfg.ID, "item", c.cued)
			c.current = c.cued
			c.currentFname = liveMarker
			c.cued = nil
			c.state = CueIdle
			advanced, liveEnter = true, true
		}
	case cuedName == "" && currentName != "":
		// A new cue may already be loading; the item that went on air is
		// still the confirmed one and gets its own advance.
		if c.cued != nil && currentName == c.cuedFname {
			c.logger.Info("advanced", "channel", c.cfg.ID, "item", c.cued, "file", currentName)
			c.current = c.cued
			c.currentFname = currentName
			advanced = true
		}
		c.cued = nil
		if !cueing {
			c.state = CueIdle
		}
	}
	c.mu.Unlock()

	if advanced {
		c.recorder.Advanced(c.cfg.ID)
	}
	if liveEnter {
		c.host.OnLiveEnter()
	}
	if advanced {
		c.host.OnChange()
	}

	c.mu.Lock()
	needNext := c.current != nil && c.cued == nil && c.state != CueCueing
	c.mu.Unlock()
	if needNext {
		c.host.CueNext(ctx)
	}

	retry := c.reconcileCue(layer, c.host.CuedLive(), c.host.CurrentLive())
	if retry {
		c.host.CueNext(ctx)
	}

	c.host.OnProgress()
}

// reconcileCue settles an in-flight cue against telemetry and drops a
// cued item the device no longer agrees with. It reports whether the
// cue should be retried.
func (c *casparCG) reconcileCue(layer osc.Layer, cuedLive, currentLive bool) bool {
	currentName := baseName(layer.Foreground.Name)
	cuedName := baseName(layer.Background.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	retry := false
	switch {
	case c.state == CueCueing:
		target := baseName(c.pending.target)
		switch {
		case cuedName != "" && cuedName == target:
			c.confirmCueLocked()
		case cuedLive && !layer.Background.IsEmpty():
			c.confirmCueLocked()
		case !cuedLive && c.now().Sub(c.pending.since) > stuckCueTimeout && c.current != nil:
			c.logger.Warn("cueing timed out, retrying",
				"channel", c.cfg.ID,
				"target", c.pending.target,
				"background", cuedName,
			)
			c.state = CueIdle
			c.pending = pendingCue{}
			retry = true
		}
	case c.cued != nil && !cuedLive && cuedName != "" && cuedName != c.cuedFname:
		c.logger.Error("cued item does not match background", "channel", c.cfg.ID,
			"expected", c.cuedFname,
			"background", cuedName,
		)
		c.cued = nil
		c.state = CueIdle
	}

	if !currentLive || c.currentFname != liveMarker {
		c.currentFname = currentName
	}
	c.cuedFname = cuedName
	return retry
}

func (c *casparCG) confirmCueLocked() {
	c.cued = c.pending.item
	c.cuedFname = baseName(c.pending.target)
	c.state = CueCued
	c.pending = pendingCue{}
	c.logger.Debug("cue confirmed", "channel", c.cfg.ID, "item", c.cued)
}

func (c *casparCG) clampedDuration(dur float64) float64 {
	if c.current == nil {
		return dur
	}
	if c.current.MarkOut > 0 && c.current.MarkOut < dur {
		dur = c.current.MarkOut
	}
	if c.current.MarkIn > 0 {
		dur -= c.current.MarkIn
	}
	return dur
}

// Cue loads req.Fname on the feed layer, or plays it straight away when
// req.Play is set. On failure the cue state is exactly what it was before.
func (c *casparCG) Cue(ctx context.Context, req CueRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	verb := "LOADBG"
	if req.Play {
		verb = "PLAY"
	}
	parts := []string{verb, c.feedLayer(), req.Fname}
	if req.Auto {
		parts = append(parts, "AUTO")
	}
	if req.Loop {
		parts = append(parts, "LOOP")
	}
	if req.Item != nil {
		parts = append(parts, c.marksLocked(req.Item)...)
	}

	prevState, prevPending := c.state, c.pending
	c.state = CueCueing
	c.pending = pendingCue{target: req.Fname, item: req.Item, since: c.now()}

	if _, err := c.query(ctx, strings.Join(parts, " ")); err != nil {
		c.state, c.pending = prevState, prevPending
		c.recorder.CueFailed(c.cfg.ID)
		return fmt.Errorf("unable to cue %s: %w", req.Fname, err)
	}

	if req.Play {
		c.state = CueIdle
		if c.cued != nil {
			c.state = CueCued
		}
		c.pending = pendingCue{}
		c.current = req.Item
		c.currentFname = baseName(req.Fname)
	}
	return nil
}

// marksLocked renders SEEK and LENGTH for an item's marks, in frames.
func (c *casparCG) marksLocked(item *catalog.Item) []string {
	var parts []string
	fps := c.fps
	if fps <= 0 {
		fps = item.FPS()
	}
	if item.MarkIn > 0 {
		parts = append(parts, "SEEK", strconv.Itoa(int(item.MarkIn*fps)))
	}
	if item.MarkOut > 0 && item.MarkOut > item.MarkIn {
		parts = append(parts, "LENGTH", strconv.Itoa(int((item.MarkOut-item.MarkIn)*fps)))
	}
	return parts
}

// Take starts the cued clip.
func (c *casparCG) Take(ctx context.Context) error {
	if _, err := c.query(ctx, "PLAY "+c.feedLayer()); err != nil {
		return fmt.Errorf("take failed: %w", err)
	}
	if c.host.CurrentLive() {
		c.host.OnLiveLeave()
	}
	return nil
}

// Retake restarts the current clip from its mark-in.
func (c *casparCG) Retake(ctx context.Context) error {
	if c.host.CurrentLive() {
		return fmt.Errorf("retake: %w", ErrLiveForbidden)
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return fmt.Errorf("retake: %w", ErrNoCurrentItem)
	}
	seek := 0
	if c.current.MarkIn > 0 {
		seek = int(c.current.MarkIn * c.fps)
	}
	cmd := fmt.Sprintf("PLAY %s %s SEEK %d", c.feedLayer(), c.currentFname, seek)
	if c.current.MarkOut > 0 && c.current.MarkOut > c.current.MarkIn {
		cmd += " LENGTH " + strconv.Itoa(int((c.current.MarkOut-c.current.MarkIn)*c.fps))
	}
	_, err := c.query(ctx, cmd)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("retake failed: %w", err)
	}
	c.host.CueNext(ctx)
	return nil
}

// Freeze toggles pause on the feed layer.
func (c *casparCG) Freeze(ctx context.Context) error {
	if c.host.CurrentLive() {
		return fmt.Errorf("freeze: %w", ErrLiveForbidden)
	}

	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()

	cmd := "PAUSE " + c.feedLayer()
	if paused {
		cmd = "RESUME " + c.feedLayer()
	}
	if _, err := c.query(ctx, cmd); err != nil {
		return fmt.Errorf("unable to freeze: %w", err)
	}
	if paused {
		c.logger.Info("playback resumed", "channel", c.cfg.ID)
	} else {
		c.logger.Info("playback paused", "channel", c.cfg.ID)
	}
	return nil
}

// Abort reloads the cued clip into the foreground, stopped.
func (c *casparCG) Abort(ctx context.Context) error {
	c.mu.Lock()
	if c.cued == nil {
		c.mu.Unlock()
		return fmt.Errorf("abort: %w", ErrNothingCued)
	}
	parts := append([]string{"LOAD", c.feedLayer(), c.cuedFname}, c.marksLocked(c.cued)...)
	_, err := c.query(ctx, strings.Join(parts, " "))
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("unable to abort: %w", err)
	}
	return nil
}

// Clear empties the feed layer.
func (c *casparCG) Clear(ctx context.Context) error {
	if _, err := c.query(ctx, "CLEAR "+c.feedLayer()); err != nil {
		return fmt.Errorf("unable to clear: %w", err)
	}
	return nil
}

// Set changes a playback property of the running clip.
func (c *casparCG) Set(ctx context.Context, key, value string) error {
	if key != "loop" {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
	flag := "0"
	if ParseBool(value) {
		flag = "1"
	}
	if _, err := c.query(ctx, fmt.Sprintf("CALL %s LOOP %s", c.feedLayer(), flag)); err != nil {
		return fmt.Errorf("unable to set loop: %w", err)
	}
	return nil
}

// Query sends a raw AMCP command.
func (c *casparCG) Query(ctx context.Context, command string) (*amcp.Response, error) {
	return c.query(ctx, command)
}

func (c *casparCG) query(ctx context.Context, command string) (*amcp.Response, error) {
	start := c.now()
	resp, err := c.amcp.Query(ctx, command)
	c.recorder.QueryDone(c.cfg.ID, c.now().Sub(start), err)
	if err != nil {
		c.logger.Error("device command failed", "channel", c.cfg.ID, "command", command, "error", err)
		return nil, err
	}
	c.logger.Debug("device command", "channel", c.cfg.ID, "command", command, "code", resp.Code)
	return resp, nil
}

// OnMain warns when telemetry has gone quiet.
func (c *casparCG) OnMain(context.Context) {
	last := c.telemetry.LastPacket()
	if last.IsZero() || c.now().Sub(last) > telemetryTimeout {
		c.logger.Warn("waiting for telemetry", "channel", c.cfg.ID, "osc_port", c.cfg.Caspar.OSCPort)
	}
}

// Restore marks item as current and forgets whatever was cued.
func (c *casparCG) Restore(item *catalog.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = item
	c.cued = nil
	c.cuedFname = ""
	c.state = CueIdle
	c.pending = pendingCue{}
}

// Layer formats a device channel-layer address.
func (c *casparCG) Layer(layer int) string {
	return fmt.Sprintf("%d-%d", c.cfg.Caspar.Channel, layer)
}

func (c *casparCG) feedLayer() string {
	return c.Layer(c.cfg.Caspar.FeedLayer)
}

// Status returns a copy of the playback state. Position and duration are
// relative to the current item's marks; duration is zero while live.
func (c *casparCG) Status() Status {
	live := c.host.CurrentLive()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		CurrentItem:  c.current,
		CuedItem:     c.cued,
		CurrentFname: c.currentFname,
		CuedFname:    c.cuedFname,
		CueState:     c.state,
		CueTarget:    c.pending.target,
		Position:     c.position,
		Duration:     c.duration,
		FPS:          c.fps,
		Paused:       c.paused,
		Loop:         c.loop,
	}
	if c.current != nil && c.current.MarkIn > 0 {
		st.Position -= c.current.MarkIn
	}
	if live {
		st.Duration = 0
	}
	return st
}

// Health reports the device link statistics.
func (c *casparCG) Health() Health {
	stats := c.amcp.Stats()
	h := Health{
		Connected:     stats.Connected,
		LastTelemetry: c.telemetry.LastPacket(),
		Queries:       stats.Queries,
		Errors:        stats.Errors,
		Reconnects:    stats.Reconnects,
	}
	if counted, ok := c.telemetry.(interface{ Stats() osc.Stats }); ok {
		ts := counted.Stats()
		h.TelemetryPackets, h.TelemetryDropped = ts.Packets, ts.Dropped
	}
	return h
}

// Close stops the loop and releases both device connections.
func (c *casparCG) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()

	telErr := c.telemetry.Close()
	if err := c.amcp.Close(); err != nil {
		return err
	}
	return telErr
}

// ParseBool accepts the truthy spellings used by control clients.
func ParseBool(value string) bool {
	switch value {
	case "1", "True", "true":
		return true
	}
	return false
}

// baseName strips the extension so that "clip.mov" and "clip" compare equal.
func baseName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
