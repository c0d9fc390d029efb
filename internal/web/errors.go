package web

// errors.go turns errors into JSON responses.
//
// Every error is logged server-side with the request id and its technical
// text, then answered with the user message and support code from
// core.MapError. Clients never see the raw error.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/datalab/internal/core"
	"github.com/JonMunkholm/datalab/internal/logging"
	"github.com/JonMunkholm/datalab/internal/tabular"
)

var (
	errRateLimited    = errors.New("rate limit exceeded")
	errInvalidForm    = errors.New("invalid multipart form")
	errInvalidDate    = errors.New("invalid date, want YYYY-MM-DD")
	errInvalidDateRng = errors.New("date_from is after date_to")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with status.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	// mapped client errors are warnings
	level := slog.LevelError
	if status < http.StatusInternalServerError && core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	// Errors raised by the handlers themselves are safe to show verbatim.
	text := msg.Message
	if isRequestError(err) {
		text = err.Error()
	}

	writeJSON(w, status, ErrorResponse{
		Error:   text,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func isRequestError(err error) bool {
	return errors.Is(err, errInvalidForm) || errors.Is(err, errInvalidDate) || errors.Is(err, errInvalidDateRng)
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var (
		maxBytes *http.MaxBytesError
		readErr  *tabular.ReadError
	)

	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrSaveUpload):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrNoFiles), errors.Is(err, errInvalidForm),
		errors.Is(err, errInvalidDate), errors.Is(err, errInvalidDateRng):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoReadableFiles), errors.As(err, &readErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
