package www

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"simfleet/agent/config"
	"simfleet/agent/handler"
	"simfleet/agent/navigate"
	"simfleet/agent/store"
	"simfleet/protocol"
)

// Handlers serves the rig's command API. The coordinator is its main
// caller; the read endpoints double as a local debugging surface.
type Handlers struct {
	rig *handler.Rig
	cfg *config.Config
	id  *config.Identity
	db  *store.DB
}

func NewRouter(rig *handler.Rig, cfg *config.Config, id *config.Identity, db *store.DB) http.Handler {
	h := &Handlers{rig: rig, cfg: cfg, id: id, db: db}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/configure", h.apiConfigure)
		r.Post("/start", h.apiStart)
		r.Post("/stop", h.apiStop)
		r.Post("/reset", h.apiReset)

		r.Get("/status", h.apiStatus)
		r.Get("/activities", h.apiActivities)
		r.Get("/runs", h.apiRuns)
	})
	return r
}

func (h *Handlers) apiConfigure(w http.ResponseWriter, r *http.Request) {
	var cmd protocol.ConfigureCommand
	if err := readJSON(r, &cmd); err != nil {
		writeReply(w, http.StatusBadRequest, protocol.CommandReply{OK: false, Reason: err.Error()})
		return
	}
	writeCommandResult(w, h.rig.Configure(&cmd))
}

func (h *Handlers) apiStart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := readSessionID(r)
	if err != nil {
		writeReply(w, http.StatusBadRequest, protocol.CommandReply{OK: false, Reason: err.Error()})
		return
	}
	writeCommandResult(w, h.rig.Start(sessionID))
}

func (h *Handlers) apiStop(w http.ResponseWriter, r *http.Request) {
	sessionID, err := readSessionID(r)
	if err != nil {
		writeReply(w, http.StatusBadRequest, protocol.CommandReply{OK: false, Reason: err.Error()})
		return
	}
	writeCommandResult(w, h.rig.Stop(sessionID))
}

func (h *Handlers) apiReset(w http.ResponseWriter, r *http.Request) {
	sessionID, err := readSessionID(r)
	if err != nil {
		writeReply(w, http.StatusBadRequest, protocol.CommandReply{OK: false, Reason: err.Error()})
		return
	}
	writeCommandResult(w, h.rig.Reset(sessionID))
}

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	status, activity, sessionID := h.rig.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":    h.id.NodeID,
		"name":       h.id.Name,
		"status":     status,
		"activity":   activity,
		"session_id": sessionID,
		"last_error": h.rig.LastError(),
	})
}

func (h *Handlers) apiActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := navigate.ListActivities(h.cfg.ScriptsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

func (h *Handlers) apiRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListRuns(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// writeCommandResult maps the rig's refusal errors to the wire reasons the
// coordinator keys on. Refusals are HTTP 200 with ok=false; only transport
// and decode problems use error status codes.
func writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeReply(w, http.StatusOK, protocol.CommandReply{OK: true})
	case errors.Is(err, handler.ErrBusy):
		writeReply(w, http.StatusOK, protocol.CommandReply{OK: false, Reason: protocol.ReasonNodeBusy})
	case errors.Is(err, handler.ErrNotConfigured):
		writeReply(w, http.StatusOK, protocol.CommandReply{OK: false, Reason: protocol.ReasonNotConfigured})
	case errors.Is(err, handler.ErrUnknownScript):
		writeReply(w, http.StatusOK, protocol.CommandReply{OK: false, Reason: protocol.ReasonUnknownScript})
	default:
		writeReply(w, http.StatusInternalServerError, protocol.CommandReply{OK: false, Reason: err.Error()})
	}
}

func readSessionID(r *http.Request) (string, error) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := readJSON(r, &body); err != nil {
		return "", err
	}
	return body.SessionID, nil
}

func writeReply(w http.ResponseWriter, status int, reply protocol.CommandReply) {
	writeJSON(w, status, reply)
}

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
