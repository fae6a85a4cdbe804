package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
)

// handleListAsRun returns as-run history, most recent first.
//
// Query parameters: id_channel, from, to (RFC 3339), limit, offset.
func (s *Server) handleListAsRun(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(r, auth.PermPlayoutRead) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}

	q := r.URL.Query()
	var filter asrun.Filter
	var err error

	if filter.ChannelID, err = intParam(q.Get("id_channel")); err != nil {
		writeBadRequest(w, "invalid id_channel")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "invalid offset")
		return
	}
	if filter.From, err = timeParam(q.Get("from")); err != nil {
		writeBadRequest(w, "invalid from: use RFC 3339")
		return
	}
	if filter.To, err = timeParam(q.Get("to")); err != nil {
		writeBadRequest(w, "invalid to: use RFC 3339")
		return
	}

	result, err := s.asrun.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing as-run records", "error", err)
		writeInternalError(w, "failed to list as-run records")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func timeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
