package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

var errInvalidInfo = errors.New("info file is not valid JSON")

// InfoHandler serves the static info document.
type InfoHandler struct {
	path string
}

// NewInfoHandler creates a handler reading the JSON file at path on every
// request.
func NewInfoHandler(path string) *InfoHandler {
	return &InfoHandler{path: path}
}

// HandleInfo handles GET /info.
func (h *InfoHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.path)
	if err == nil && !json.Valid(data) {
		err = errInvalidInfo
	}
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("Failed to load info data")
		writeError(w, http.StatusInternalServerError, "Could not load info data")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
