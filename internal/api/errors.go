package api

import (
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/csvrows"
)

var errInvalidID = errors.New("invalid identifier")

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var (
		de  *csvrows.DecodeError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.Is(err, chatlog.ErrMissingFile),
		errors.Is(err, chatlog.ErrMissingUser),
		errors.Is(err, errInvalidID),
		errors.Is(err, csvrows.ErrEmptyInput),
		errors.As(err, &de):
		return http.StatusBadRequest
	case errors.Is(err, chatlog.ErrUserNotFound),
		errors.Is(err, chatlog.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		var pe *chatlog.PersistenceError
		if errors.As(err, &pe) {
			msg = "failed to store conversations: " + pe.Err.Error()
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
