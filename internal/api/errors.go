package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/vista"
)

type errorBody struct {
	Error       string   `json:"error"`
	SheetsFound []string `json:"sheets_found,omitempty"`
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vista.ErrNotFound), errors.Is(err, vista.ErrUnknownEntityType):
		return http.StatusNotFound
	case errors.Is(err, vista.ErrEntityNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vista.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, vista.ErrNoRecognizedSheets),
		errors.Is(err, vista.ErrInvalidWorkbook),
		errors.Is(err, vista.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Server errors are logged and replaced by a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, errorBody{Error: "internal server error"})
		return
	}

	body := errorBody{Error: err.Error()}
	var se *vista.SheetError
	if errors.As(err, &se) {
		body.SheetsFound = se.Found
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
