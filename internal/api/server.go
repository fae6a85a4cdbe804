package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/audit"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/logging"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/metrics"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandBus is the MQTT client as seen by the command subscriber.
type CommandBus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Channels []Channel
	AsRun    asrun.Repository

	// ControllerPorts maps channel ids to their legacy per-channel port.
	ControllerPorts map[int]int

	// Optional collaborators.
	Audit       audit.Repository
	MQTT        CommandBus
	Metrics     *metrics.Metrics
	MetricsPath string
	Hub         *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP control API.
//
// It manages the main listener, the per-channel controller_port
// listeners, routes, middleware and the WebSocket hub.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	channels    map[int]Channel
	order       []int
	ports       map[int]int
	asrun       asrun.Repository
	auditLog    audit.Repository
	mqtt        CommandBus
	metrics     *metrics.Metrics
	metricsPath string
	version     string
	hub         *Hub
	tickets     *ticketStore
	cancel      context.CancelFunc

	mu      sync.Mutex
	servers []*http.Server
	addrs   []string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, channels, as-run log)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing or channel ids repeat
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.AsRun == nil {
		return nil, fmt.Errorf("as-run repository is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		channels:    make(map[int]Channel, len(deps.Channels)),
		asrun:       deps.AsRun,
		auditLog:    deps.Audit,
		ports:       deps.ControllerPorts,
		mqtt:        deps.MQTT,
		metrics:     deps.Metrics,
		metricsPath: deps.MetricsPath,
		version:     deps.Version,
		hub:         deps.Hub,
		tickets:     newTicketStore(),
	}
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
	}
	for _, ch := range deps.Channels {
		id := ch.ChannelID()
		if _, dup := s.channels[id]; dup {
			return nil, fmt.Errorf("duplicate channel %d", id)
		}
		s.channels[id] = ch
		s.order = append(s.order, id)
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for wiring it as a session publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the main listener and one listener per channel with a
// controller_port, then serves them in the background.
//
// Parameters:
//   - ctx: Parent context for background goroutines (hub, ticket cleanup)
//
// Returns:
//   - error: If a listener cannot bind; nothing is left running
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	type binding struct {
		name    string
		addr    string
		handler http.Handler
	}
	bindings := []binding{{
		name:    "api",
		addr:    net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		handler: s.buildRouter(),
	}}
	for _, id := range s.order {
		port := s.ports[id]
		if port == 0 {
			continue
		}
		bindings = append(bindings, binding{
			name:    fmt.Sprintf("channel %d", id),
			addr:    net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)),
			handler: s.buildChannelRouter(s.channels[id]),
		})
	}

	listeners := make([]net.Listener, 0, len(bindings))
	for _, b := range bindings {
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			for _, l := range listeners {
				l.Close() //nolint:errcheck,gosec // Unwinding a failed start
			}
			s.cancel()
			return fmt.Errorf("binding %s listener on %s: %w", b.name, b.addr, err)
		}
		listeners = append(listeners, ln)
	}

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	if err := s.subscribeCommands(srvCtx); err != nil {
		s.logger.Warn("MQTT control commands unavailable", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range bindings {
		srv := &http.Server{
			Handler:           b.handler,
			ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
			ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
			WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
			IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		}
		ln := listeners[i]
		s.servers = append(s.servers, srv)
		s.addrs = append(s.addrs, ln.Addr().String())

		s.logger.Info("control API listening", "listener", b.name, "address", ln.Addr().String())
		go func(name string) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("control API server error", "listener", name, "error", err)
			}
		}(b.name)
	}
	return nil
}

// Addrs returns the bound listener addresses, main listener first.
func (s *Server) Addrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.addrs...)
}

// Close gracefully shuts down every listener.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.mqtt != nil {
		//nolint:errcheck // Best-effort; the broker forgets subscriptions on disconnect anyway
		s.mqtt.Unsubscribe(s.mqtt.Topics().AllPlayoutCommands())
	}

	s.mu.Lock()
	servers := s.servers
	s.servers, s.addrs = nil, nil
	s.mu.Unlock()
	if len(servers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("control API shutting down")
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutting down control API: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.servers) == 0 {
		return fmt.Errorf("api server not started")
	}
	return nil
}
