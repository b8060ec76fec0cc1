// internal/controller/respond.go
package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, r, status, Envelope{Status: "success", Data: data})
}

// StatusFor maps a domain error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case appErrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrCampaignAlreadySent):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrCampaignBusy), errors.Is(err, appErrors.ErrAlreadyOnWaitlist):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the error envelope. Unexpected errors are captured by
// the reporter and replaced with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, reporter telemetry.ErrorReporter, op string, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if reporter != nil {
			reporter.Capture(r.Context(), err, map[string]string{
				"operation": op,
				"path":      r.URL.Path,
			})
		}
		msg = "internal server error"
	}
	WriteJSON(w, r, status, Envelope{Status: "error", Message: msg})
}

// DecodeJSON reads a request body into v. A malformed body is a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return appErrors.NewValidation("body", "invalid JSON body")
	}
	return nil
}
