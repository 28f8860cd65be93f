package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/history"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// UploadResponse acknowledges a committed import.
type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*history.ImportResult
}

// upload handles POST /api/v1/conversations/upload
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeError(w, r, err)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.writeError(w, r, fmt.Errorf("%w: %v", chatlog.ErrMissingFile, err))
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, chatlog.ErrMissingFile)
		return
	}
	defer file.Close()

	raw := strings.TrimSpace(r.FormValue("user_id"))
	if raw == "" {
		s.writeError(w, r, chatlog.ErrMissingUser)
		return
	}
	userID, err := parseID(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.history.Import(r.Context(), userID, file, "upload")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Success:      true,
		Message:      fmt.Sprintf("imported %d conversations with %d messages", res.Conversations, res.Messages),
		ImportResult: res,
	})
}

// list handles GET /api/v1/conversations/{userID}
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	convs, err := s.history.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// search handles GET /api/v1/conversations/{userID}/search?q=
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "search term q is required"})
		return
	}

	convs, err := s.history.Search(r.Context(), userID, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// count handles GET /api/v1/conversations/{userID}/count
func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := s.history.Count(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total": n})
}

// delete handles DELETE /api/v1/conversations/{userID}/{conversationID}
func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	convID, err := parseID(chi.URLParam(r, "conversationID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.history.Delete(r.Context(), userID, convID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}
