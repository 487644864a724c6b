package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
)

// NotesHandler lists session history.
type NotesHandler struct {
	history database.Store
	log     zerolog.Logger
}

func NewNotesHandler(history database.Store, log zerolog.Logger) *NotesHandler {
	return &NotesHandler{history: history, log: log.With().Str("handler", "notes").Logger()}
}

func (h *NotesHandler) Routes(r chi.Router) {
	r.Get("/notes", h.List)
}

type notesResponse struct {
	Notes  []database.Entry `json:"notes"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// List handles GET /api/v1/notes.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "history not configured")
		return
	}
	p := ParsePagination(r)
	entries, total, err := h.history.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list history failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list notes")
		return
	}
	WriteJSON(w, http.StatusOK, notesResponse{Notes: entries, Total: total, Limit: p.Limit, Offset: p.Offset})
}
