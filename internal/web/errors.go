package web

// errors.go provides unified error responses for the web layer.
//
// Every error is:
//   - logged with full technical detail and the request ID (server-side)
//   - mapped through core.MapError to a message, action and support code
//   - given an HTTP status derived from its type, not its text
//
// Stage failures additionally carry the session state and the recorded
// stage, so the client knows which stage to retry after a reset.

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	RequestID string     `json:"requestId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Stage     core.Stage `json:"stage,omitempty"`
	State     core.State `json:"state,omitempty"`
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		transition *core.InvalidTransitionError
		external   *core.ExternalServiceError
		persist    *core.PersistenceError
		maxBytes   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrDuplicateDOI):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyStages):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrInvalidPDF), errors.Is(err, core.ErrEmptyCSV), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &external):
		if external.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &persist):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// respondError logs err and writes its user-facing JSON form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	if errors.Is(err, errBadRequest) {
		msg = core.UserMessage{
			Message: err.Error(),
			Action:  "Correct the request and try again",
			Code:    "REQ001",
		}
	}

	resp := ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	}

	var stageErr *core.StageError
	if errors.As(err, &stageErr) {
		resp.SessionID = stageErr.SessionID
		resp.Stage = stageErr.Stage
		resp.State = core.StateFailed
	}

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Info("request rejected", attrs...)
	}

	writeJSON(w, r, status, resp)
}
