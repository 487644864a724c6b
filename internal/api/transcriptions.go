package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/storage"
)

const maxUploadBytes = 512 << 20

// TranscriptionHandler runs uploaded audio through the pipeline.
type TranscriptionHandler struct {
	ctrl Controller
	log  zerolog.Logger
}

func NewTranscriptionHandler(ctrl Controller, log zerolog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{ctrl: ctrl, log: log.With().Str("handler", "transcriptions").Logger()}
}

func (h *TranscriptionHandler) Routes(r chi.Router) {
	r.Post("/transcriptions", h.Upload)
}

// Upload handles POST /api/v1/transcriptions.
// Multipart form: "file" (required), "mime_type" (optional).
func (h *TranscriptionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "empty audio file")
		return
	}

	job := pipeline.Job{
		Audio:    data,
		MimeType: uploadMimeType(r.FormValue("mime_type"), header.Header.Get("Content-Type"), header.Filename),
		Filename: header.Filename,
		EndedAt:  time.Now(),
	}

	out, err := h.ctrl.Import(r.Context(), job)
	if err != nil {
		if status, _ := StatusFor(err); status >= 500 {
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("import failed")
		}
		WriteControllerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// uploadMimeType prefers the explicit form value, then the part header, then
// the filename extension.
func uploadMimeType(formValue, partType, filename string) string {
	if formValue != "" {
		return formValue
	}
	if partType != "" && partType != "application/octet-stream" {
		return partType
	}
	if ct := storage.ContentTypeFor(filename); strings.HasPrefix(ct, "audio/") {
		return ct
	}
	return "audio/webm"
}
