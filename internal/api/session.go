package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SessionHandler exposes the recording session.
type SessionHandler struct {
	ctrl Controller
	log  zerolog.Logger
}

func NewSessionHandler(ctrl Controller, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, log: log.With().Str("handler", "session").Logger()}
}

func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Post("/session/start", h.Start)
	r.Post("/session/stop", h.Stop)
	r.Post("/session/discard", h.Discard)
}

// Get handles GET /api/v1/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.ctrl.Status())
}

// Start handles POST /api/v1/session/start.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Start(r.Context())
	if err != nil {
		WriteControllerError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, st)
}

// Stop handles POST /api/v1/session/stop. The response is sent once the
// note has been written.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	out, err := h.ctrl.StopAndTranscribe(r.Context())
	if err != nil {
		if status, _ := StatusFor(err); status >= 500 {
			h.log.Error().Err(err).Msg("stop and transcribe failed")
		}
		WriteControllerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Discard handles POST /api/v1/session/discard.
func (h *SessionHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Discard(r.Context()); err != nil {
		WriteControllerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.ctrl.Status())
}
