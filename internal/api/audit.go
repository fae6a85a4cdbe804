package api

import (
	"context"
	"net/http"

	"github.com/nebulabroadcast/nebula-worker/internal/audit"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
)

// recordCommand writes a command to the audit trail. Read-only methods are
// not recorded; clients poll stat several times a second.
func (s *Server) recordCommand(ctx context.Context, channelID int, method, source, subject string, args Args, res Result) {
	if s.auditLog == nil {
		return
	}
	if m, known := methods[method]; known && m.perm == auth.PermPlayoutRead {
		return
	}

	entry := &audit.Entry{
		ChannelID: channelID,
		Method:    method,
		Subject:   subject,
		Source:    source,
		Response:  res.Code,
		Message:   res.Message,
		Params:    args,
	}
	if err := s.auditLog.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("recording command in audit trail", "channel", channelID, "method", method, "error", err)
	}
}

// subjectFrom returns the token subject of an authenticated request.
func subjectFrom(r *http.Request) string {
	if claims, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims); ok {
		return claims.Subject
	}
	return ""
}

// handleListAudit returns the command audit trail, most recent first.
//
// Query parameters: id_channel, method, source, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(r, auth.PermPlayoutAdmin) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}
	if s.auditLog == nil {
		writeNotFound(w, "command audit is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Method: q.Get("method"), Source: q.Get("source")}
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

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
