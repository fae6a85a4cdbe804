package osc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 65535

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

// Stats holds operational statistics.
type Stats struct {
	Packets    uint64
	Dropped    uint64
	LastPacket time.Time
}

// Listener receives OSC datagrams and maintains a Tree.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The receive goroutine only decodes and stores.
type Listener struct {
	addr string
	tree *Tree

	mu      sync.Mutex
	conn    net.PacketConn
	closed  bool
	started bool

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	logger Logger

	packets    atomic.Uint64
	dropped    atomic.Uint64
	lastPacket atomic.Int64 // unix nanoseconds
}

// NewListener creates a listener for addr, e.g. ":5253".
func NewListener(addr string) *Listener {
	return &Listener{addr: addr, tree: NewTree(), logger: noopLogger{}, done: newCloseOnce()}
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// SetLogger sets the logger. Call before Start.
func (l *Listener) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Start binds the UDP socket and starts the receive goroutine. The
// listener stops when ctx is cancelled or Close is called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}
	if l.started {
		return nil
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", l.addr)
	if err != nil {
		return fmt.Errorf("osc: listening on %s: %w", l.addr, err)
	}
	l.conn = conn
	l.started = true

	l.wg.Add(1)
	go l.receiveLoop(conn)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			l.Close() //nolint:errcheck // Shutdown path
		case <-l.done.Done():
		}
	}()

	l.logger.Info("telemetry listener started", "addr", conn.LocalAddr().String())
	return nil
}

func (l *Listener) receiveLoop(conn net.PacketConn) {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("telemetry read failed", "error", err)
			continue
		}
		if err := l.HandlePacket(buf[:n]); err != nil {
			l.logger.Debug("dropping telemetry packet", "error", err, "size", n)
		}
	}
}

// HandlePacket decodes one datagram into the tree.
func (l *Listener) HandlePacket(data []byte) error {
	if len(data) == 0 || (data[0] != '/' && data[0] != '#') {
		l.dropped.Add(1)
		return fmt.Errorf("%w: not an OSC packet", ErrMalformedPacket)
	}
	msgs, err := Decode(data)
	if err != nil {
		l.dropped.Add(1)
		return err
	}
	l.tree.Apply(msgs)
	l.packets.Add(1)
	l.lastPacket.Store(time.Now().UnixNano())
	return nil
}

// Snapshot returns a copy of the layer state.
func (l *Listener) Snapshot(channel, layer int) (Layer, bool) {
	return l.tree.Snapshot(channel, layer)
}

// ChannelFPS returns the frame rate the device reports for the channel.
func (l *Listener) ChannelFPS(channel int) float64 {
	return l.tree.ChannelFPS(channel)
}

// LastPacket returns when the last valid packet arrived, zero if never.
func (l *Listener) LastPacket() time.Time {
	ns := l.lastPacket.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LocalAddr returns the bound address, nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stats returns current operational statistics.
func (l *Listener) Stats() Stats {
	return Stats{
		Packets:    l.packets.Load(),
		Dropped:    l.dropped.Load(),
		LastPacket: l.LastPacket(),
	}
}

// Close stops the listener and waits for its goroutines.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.mu.Unlock()

	l.done.Close()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	return err
}

// Wait blocks until the receive goroutine has exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}
