package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/journal"
	"github.com/jmcleod/fpsim/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSensorNotFound),
		errors.Is(err, session.ErrOperationNotFound),
		errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSensorBusy),
		errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, hat.ErrInvalidToken):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, hat.ErrMalformedToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoSigner):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
