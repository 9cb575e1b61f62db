package web

// errors.go turns service errors into client responses.
//
// The technical error is logged with the request ID; the client only sees
// the mapped user message. HTMX requests get an alert fragment, everything
// else gets JSON.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/RuleSheet/internal/core"
	"github.com/JonMunkholm/RuleSheet/internal/engine"
	"github.com/JonMunkholm/RuleSheet/internal/logging"
	"github.com/JonMunkholm/RuleSheet/internal/scratch"
	"github.com/JonMunkholm/RuleSheet/internal/web/templates"
	"github.com/JonMunkholm/RuleSheet/internal/workbook"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrInvalidRules),
		errors.Is(err, core.ErrUnknownKind),
		errors.Is(err, workbook.ErrUnsupportedFormat),
		errors.Is(err, workbook.ErrUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, scratch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEngineBusy), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	// Unmapped errors reach the client as ERR000, so they are logged loudly
	// whatever their status.
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		log.Error("request error", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
			log.Error("render error alert", "error", err)
		}
		return
	}

	writeJSON(w, status, ErrorResponse{
		Success: false,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
