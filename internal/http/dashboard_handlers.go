package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenlife-monitor/internal/identity"
	"greenlife-monitor/internal/session"
)

const sessionsPrefix = "/dashboard/api/v1/sessions/"

// DashboardHandler REST access to open dashboard sessions. Callers present
// the same ID token the session signed in with.
type DashboardHandler struct {
	hub      *Hub
	verifier session.Verifier
	logger   *zap.Logger
}

func NewDashboardHandler(hub *Hub, verifier session.Verifier, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeSession dispatches /dashboard/api/v1/sessions/{id}/{view|fan|trend.xlsx}.
func (h *DashboardHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, sessionsPrefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeJSON(w, http.StatusNotFound, failed("not found"))
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeJSON(w, http.StatusNotFound, failed("invalid session id"))
		return
	}

	sess, authorized := h.authorize(w, r, id)
	if !authorized {
		return
	}

	switch parts[1] {
	case "view":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ok(sess.Controller.View()))
	case "fan":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.setFan(w, r, sess)
	case "trend.xlsx":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.exportTrend(w, sess)
	default:
		writeJSON(w, http.StatusNotFound, failed("not found"))
	}
}

func (h *DashboardHandler) authorize(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*Session, bool) {
	token := bearerToken(r)
	if token == "" {
		status, res := authFailure(nil)
		writeJSON(w, status, res)
		return nil, false
	}
	who, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			h.logger.Error("Token verification failed", zap.Error(err))
		}
		status, res := authFailure(err)
		writeJSON(w, status, res)
		return nil, false
	}

	sess, found := h.hub.Get(id)
	if !found {
		writeJSON(w, http.StatusNotFound, failed("session not found"))
		return nil, false
	}
	if sess.Auth.Identity() != who {
		writeJSON(w, http.StatusForbidden, failed("session belongs to another user"))
		return nil, false
	}
	return sess, true
}

type setFanRequest struct {
	On *bool `json:"on"`
}

func (h *DashboardHandler) setFan(w http.ResponseWriter, r *http.Request, sess *Session) {
	var req setFanRequest
	if err := readBodyJSON(r, 1024, &req); err != nil || req.On == nil {
		writeJSON(w, http.StatusBadRequest, failed("body must be {\"on\": bool}"))
		return
	}

	status, res := fanOutcome(*req.On, sess.ToggleFan(r.Context(), *req.On))
	writeJSON(w, status, res)
}

func (h *DashboardHandler) exportTrend(w http.ResponseWriter, sess *Session) {
	data, err := GenerateTrendExport(sess.Controller.View())
	if err != nil {
		h.logger.Error("Failed to export trend", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failed("failed to export trend"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="trend.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
