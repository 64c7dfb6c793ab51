package gateway

import (
	"encoding/json"
	"net/http"

	stderrors "errors"

	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeDomainError maps a platform/usecase error's Kind to an HTTP
// status and writes it, falling back to 500 for anything that isn't a
// *platformerrors.Error.
func writeDomainError(w http.ResponseWriter, err error) {
	var pErr *platformerrors.Error
	if stderrors.As(err, &pErr) {
		switch pErr.Kind {
		case platformerrors.KindValidation:
			writeError(w, http.StatusBadRequest, pErr.Message)
		case platformerrors.KindAuthentication:
			writeError(w, http.StatusUnauthorized, pErr.Message)
		case platformerrors.KindCapacity:
			writeError(w, http.StatusServiceUnavailable, pErr.Message)
		default:
			writeError(w, http.StatusInternalServerError, pErr.Message)
		}
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
