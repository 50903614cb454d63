package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"simfleet/coordinator/session"
	"simfleet/coordinator/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	online := h.registry.Online(now)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"rigs_known":  len(h.registry.List(now)),
		"rigs_online": len(online),
		"sse_clients": h.eventHub.ClientCount(),
	})
}

func (h *Handlers) apiListNodes(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if r.URL.Query().Get("online") == "true" {
		writeJSON(w, http.StatusOK, h.registry.Online(now))
		return
	}
	writeJSON(w, http.StatusOK, h.registry.List(now))
}

func (h *Handlers) apiGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	snap, ok := h.registry.Get(id, time.Now())
	if !ok {
		writeError(w, http.StatusNotFound, "unknown node")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) apiListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	sessions, err := h.db.ListSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) apiActiveSession(w http.ResponseWriter, r *http.Request) {
	active := h.coordinator.Active()
	if active == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "session": active})
}

func (h *Handlers) apiGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.db.GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	participants, err := h.db.ListParticipants(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"participants": participants,
	})
}

func (h *Handlers) apiStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activity string `json:"activity"`
		Nodes    int    `json:"nodes"` // 0 = every online rig
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.coordinator.StartAll(r.Context(), req.Activity, req.Nodes)
	if err != nil {
		var ine *session.InsufficientNodesError
		var cfe *session.ConfigurationFailedError
		switch {
		case errors.Is(err, session.ErrSessionActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &ine):
			writeError(w, http.StatusPreconditionFailed, err.Error())
		case errors.As(err, &cfe):
			// Rolled back; the body names every offending rig.
			writeJSON(w, http.StatusConflict, map[string]any{
				"ok":         false,
				"error":      "configuration failed, fleet rolled back",
				"session_id": cfe.SessionID,
				"failures":   cfe.Failures,
			})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session": sess})
}

func (h *Handlers) apiStopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coordinator.StopAll(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stopped": false})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stopped": true, "session": sess})
}
