package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/domain"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindState:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error's code. Internal errors are logged and
// their details withheld.
func writeError(w http.ResponseWriter, log *logging.Logger, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		err = domain.Errorf(domain.ErrPayloadTooLarge, "request body exceeds %d bytes", tooBig.Limit)
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		log.Errorf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
		return
	}
	writeJSON(w, statusFor(de.Kind), domain.ErrorResponse{Error: de.Code, Message: de.Message})
}
