package amcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPort is the AMCP port of a stock CasparCG server.
	DefaultPort = 5250

	// defaultTimeout bounds dialing and each read or write.
	defaultTimeout = 2 * time.Second

	delimiter = "\r\n"
)

// Config holds AMCP connection settings.
type Config struct {
	Host string

	// Port defaults to 5250.
	Port int

	// Timeout bounds dialing and every read/write. Default: 2 seconds.
	Timeout time.Duration
}

// Response is a successful AMCP reply.
type Response struct {
	Code int
	// Data is the payload line for 200/201 replies, empty for 202.
	Data string
}

// Stats holds operational statistics.
type Stats struct {
	Queries      uint64
	Errors       uint64
	Reconnects   uint64
	LastActivity time.Time
	Connected    bool
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

// Querier is the interface consumed by device controllers.
type Querier interface {
	Query(ctx context.Context, command string) (*Response, error)
	Stats() Stats
	Close() error
}

var _ Querier = (*Client)(nil)

// Client is a lazily connecting AMCP client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Only one request is on the wire at any time.
type Client struct {
	cfg Config

	// mu serialises requests and guards the connection.
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
	dialed bool

	logger   Logger
	loggerMu sync.RWMutex

	queries      atomic.Uint64
	errorsTotal  atomic.Uint64
	reconnects   atomic.Uint64
	lastActivity atomic.Int64
	connected    atomic.Bool
}

// New creates a client. No connection is made until the first Query or an
// explicit Connect.
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	return &Client{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Address returns the host:port the client talks to.
func (c *Client) Address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) String() string {
	return "amcp://" + c.Address()
}

// Connect establishes the connection if it is not already up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnected(ctx)
}

// Query sends a command and reads its response.
//
// Parameters:
//   - ctx: Bounds the whole exchange in addition to the configured timeout
//   - command: A single AMCP command without the line terminator
//
// Returns:
//   - *Response: The reply for 2xx codes
//   - error: *ConnectionError or *ProtocolError
func (c *Client) Query(ctx context.Context, command string) (*Response, error) {
	command = strings.TrimSpace(command)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries.Add(1)

	if err := c.ensureConnected(ctx); err != nil {
		c.errorsTotal.Add(1)
		return nil, err
	}

	if !strings.HasPrefix(command, "INFO") {
		c.log().Debug("executing AMCP", "command", command, "server", c.Address())
	}

	resp, err := c.exchange(ctx, command)
	if err != nil {
		c.errorsTotal.Add(1)
		if IsConnectionError(err) {
			c.log().Warn("AMCP connection lost", "command", command, "error", err)
			c.dropLocked()
		}
		return nil, err
	}
	c.lastActivity.Store(time.Now().Unix())
	return resp, nil
}

// exchange writes one command and parses the reply. Caller holds mu.
func (c *Client) exchange(ctx context.Context, command string) (*Response, error) {
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		return nil, &ConnectionError{Op: "set deadline", Err: err}
	}

	if _, err := c.conn.Write([]byte(command + delimiter)); err != nil {
		return nil, &ConnectionError{Op: "write", Err: err}
	}

	status, err := c.readLine()
	if err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	if status == "" {
		return nil, &ConnectionError{Op: "read", Err: fmt.Errorf("%w: empty status line", ErrMalformedResponse)}
	}

	code, err := parseCode(status)
	if err != nil {
		return nil, &ConnectionError{Op: "read", Err: fmt.Errorf("%w: %q", ErrMalformedResponse, status)}
	}

	switch {
	case code == 202:
		return &Response{Code: code}, nil

	case code == 200 || code == 201:
		data, err := c.readLine()
		if err != nil {
			return nil, &ConnectionError{Op: "read payload", Err: err}
		}
		return &Response{Code: code, Data: data}, nil

	case code >= 300 && code < 600:
		if code == 400 {
			// The server echoes the offending command on a second line.
			if _, err := c.readLine(); err != nil {
				return nil, &ConnectionError{Op: "drain error echo", Err: err}
			}
		}
		return nil, &ProtocolError{Code: code, Message: strings.TrimSpace(status[3:]), Command: command}
	}

	return nil, &ConnectionError{Op: "read", Err: fmt.Errorf("%w: unexpected code %d", ErrMalformedResponse, code)}
}

func (c *Client) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, delimiter), nil
}

// deadline returns the earlier of the context deadline and now + timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// parseCode reads the three digit status code at the start of a line.
func parseCode(line string) (int, error) {
	if len(line) < 3 {
		return 0, ErrMalformedResponse
	}
	switch line[0] {
	case '2', '3', '4', '5':
	default:
		return 0, ErrMalformedResponse
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0, ErrMalformedResponse
	}
	return code, nil
}

// ensureConnected dials if there is no live connection. Caller holds mu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.closed {
		return &ConnectionError{Op: "connect", Err: ErrClosed}
	}
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.Address())
	if err != nil {
		c.log().Error("unable to connect CasparCG server", "server", c.Address(), "error", err)
		return &ConnectionError{Op: "connect", Err: err}
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	if c.dialed {
		c.reconnects.Add(1)
		c.log().Info("reconnected to CasparCG server", "server", c.Address())
	} else {
		c.log().Info("connected to CasparCG server", "server", c.Address())
	}
	c.dialed = true
	c.connected.Store(true)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// dropLocked closes the current connection. Caller holds mu.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Connection is already broken
	}
	c.conn = nil
	c.reader = nil
	c.connected.Store(false)
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Queries:      c.queries.Load(),
		Errors:       c.errorsTotal.Load(),
		Reconnects:   c.reconnects.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		Connected:    c.connected.Load(),
	}
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close closes the connection. Subsequent queries fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.connected.Store(false)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing AMCP connection: %w", err)
	}
	return nil
}
