package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// errorResponse is the JSON envelope for error replies.
type errorResponse struct {
	Error *api.Error `json:"error"`
}

// HTTPStatusFromError maps an error to the corresponding HTTP status
// code. Storage sentinels map to 404 and 409; api.Error kinds map by
// category; everything else is a server error.
func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	}

	switch api.KindOf(err) {
	case api.ErrorKindValidation, api.ErrorKindSchema:
		return http.StatusBadRequest
	case api.ErrorKindRemote, api.ErrorKindTransport, api.ErrorKindIndeterminate:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a JSON error response, deriving the HTTP status
// code from the error.
func WriteError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*api.Error)
	if !ok {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			apiErr = api.NewValidationError("session_id", "session not found")
		case errors.Is(err, storage.ErrTerminal):
			apiErr = api.NewValidationError("session_id", "session already terminal")
		default:
			apiErr = api.NewInternalError(err.Error())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatusFromError(err))
	json.NewEncoder(w).Encode(errorResponse{Error: apiErr})
}
