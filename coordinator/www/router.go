package www

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"simfleet/coordinator/engine"
	"simfleet/coordinator/registry"
	"simfleet/coordinator/session"
	"simfleet/coordinator/store"
)

type Handlers struct {
	registry    *registry.Registry
	coordinator *session.Coordinator
	db          *store.DB
	sessions    *sessions.CookieStore
	eventHub    *EventHub
}

// NewRouter builds the operator API. The returned stop function shuts the
// SSE hub down.
func NewRouter(reg *registry.Registry, coord *session.Coordinator, db *store.DB, bus *engine.EventBus, sessionSecret string) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	if bus != nil {
		hub.SetupBusListeners(bus)
	}

	h := &Handlers{
		registry:    reg,
		coordinator: coord,
		db:          db,
		sessions:    newSessionStore(sessionSecret),
		eventHub:    hub,
	}
	h.ensureDefaultAdmin(db)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE
	r.Get("/events", hub.SSEHandler)

	// Auth
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// Read API, open on the LAN like the rigs themselves.
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Get("/nodes", h.apiListNodes)
		r.Get("/nodes/{id}", h.apiGetNode)
		r.Get("/sessions", h.apiListSessions)
		r.Get("/sessions/active", h.apiActiveSession)
		r.Get("/sessions/{id}", h.apiGetSession)
	})

	// Fleet control requires a login.
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/sessions/start", h.apiStartSession)
		r.Post("/api/sessions/stop", h.apiStopSession)
	})

	stopFn := func() {
		hub.Stop()
	}
	return r, stopFn
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.GetAdminUser(creds.Username)
	if err != nil || !checkPassword(user.PasswordHash, creds.Password) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	sess, _ := h.sessions.Get(r, sessionName)
	sess.Values["authenticated"] = true
	sess.Values["username"] = creds.Username
	if err := sess.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.sessions.Get(r, sessionName)
	sess.Values["authenticated"] = false
	sess.Values["username"] = ""
	sess.Save(r, w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
