package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nebulabroadcast/nebula-worker/internal/audit"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
)

// buildRouter creates the main router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket sits outside logging and metrics; a long-lived upgrade
		// is not a request worth timing. Auth is by ticket.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.requestLogger())
			if s.metrics != nil {
				r.Use(s.metrics.Middleware)
			}

			// Health check (no auth required)
			r.Get("/health", s.handleHealth)

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Post("/auth/ws-ticket", s.handleWSTicket)
				r.Get("/asrun", s.handleListAsRun)
				r.Get("/audit", s.handleListAudit)
				r.Get("/channels", s.handleListChannels)
				r.Post("/channels/{id}/{method}", s.handleCommand)
			})
		})
	})

	return r
}

// buildChannelRouter serves the legacy per-channel port: POST /{method}
// against a single channel, without auth.
func (s *Server) buildChannelRouter(ch Channel) http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.requestLogger("channel", ch.ChannelID()))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Post("/{method}", func(w http.ResponseWriter, r *http.Request) {
		s.runCommand(w, r, ch, chi.URLParam(r, "method"), audit.SourceChannelPort)
	})
	return r
}

// handleHealth returns the server health and the device link of each channel.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	channels := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		h := s.channels[id].Health()
		channels = append(channels, map[string]any{
			"id_channel": id,
			"connected":  h.Connected,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"channels": channels,
	})
}

// handleListChannels returns the channel ids with their current status.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(r, auth.PermPlayoutRead) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}
	channels := make([]any, 0, len(s.order))
	for _, id := range s.order {
		channels = append(channels, s.channels[id].Stat())
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// handleCommand runs a command on the channel named in the path.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid channel id")
		return
	}
	ch, found := s.channels[id]
	if !found {
		writeNotFound(w, "channel not found")
		return
	}

	name := chi.URLParam(r, "method")
	if m, known := methods[name]; known && !s.allowed(r, m.perm) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}
	s.runCommand(w, r, ch, name, audit.SourceAPI)
}

// runCommand decodes the arguments, dispatches and writes the reply.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, ch Channel, name, source string) {
	args, err := decodeArgs(r)
	if err != nil {
		res := Result{Code: http.StatusBadRequest, Message: err.Error()}
		writeJSON(w, res.Code, res.Body())
		return
	}

	res := Dispatch(r.Context(), ch, name, args)
	s.recordCommand(r.Context(), ch.ChannelID(), name, source, subjectFrom(r), args, res)
	if res.Code >= http.StatusInternalServerError {
		s.logger.Error("command failed", "channel", ch.ChannelID(), "method", name, "error", res.Message)
	} else if res.Code >= http.StatusBadRequest {
		s.logger.Warn("command rejected", "channel", ch.ChannelID(), "method", name, "response", res.Code, "error", res.Message)
	}

	if res.Code == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, res.Code, res.Body())
}

// decodeArgs reads the JSON body as command arguments. Query parameters
// fill in keys the body does not set, so simple commands work from curl.
func decodeArgs(r *http.Request) (Args, error) {
	args := Args{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON body")
	}
	for key, values := range r.URL.Query() {
		if _, set := args[key]; !set && len(values) > 0 {
			args[key] = values[0]
		}
	}
	return args, nil
}
