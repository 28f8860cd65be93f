package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/history"
	"github.com/MikeSquared-Agency/historico/internal/store/sqlite"
)

const exampleCSV = "chat_id,type,text,fromMe,mobile_number,message_created\n" +
	"A,text,hi,1,,t1\n" +
	"A,text,hey,0,555,t2\n" +
	"B,image,,0,777,t3\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, maxUpload int64) (*Server, int64) {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "historico.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	u := &chatlog.User{Username: "ana", Password: "x"}
	require.NoError(t, st.CreateUser(context.Background(), u))

	svc := history.NewService(st, nil, discardLogger())
	return NewServer(8760, svc, maxUpload, discardLogger()), u.ID
}

func uploadRequest(t *testing.T, userID string, filename string, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if userID != "" {
		require.NoError(t, mw.WriteField("user_id", userID))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/conversations/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	w := serve(srv, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	w := serve(srv, httptest.NewRequest("GET", "/nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	serve(srv, httptest.NewRequest("GET", "/health", nil))
	w := serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "historico_api_requests_total")
}

func TestUpload_ThenList(t *testing.T) {
	srv, userID := newTestServer(t, 0)
	id := strconv.FormatInt(userID, 10)

	w := serve(srv, uploadRequest(t, id, "chats.csv", exampleCSV))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var up struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		ImportID      string `json:"import_id"`
		Conversations int    `json:"conversations"`
		Messages      int    `json:"messages"`
		SkippedRows   int    `json:"skipped_rows"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&up))
	assert.True(t, up.Success)
	assert.NotEmpty(t, up.Message)
	assert.NotEmpty(t, up.ImportID)
	assert.Equal(t, 1, up.Conversations)
	assert.Equal(t, 2, up.Messages)
	assert.Equal(t, 1, up.SkippedRows)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var convs []struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		ImportID string `json:"import_id"`
		Messages []struct {
			Timestamp string `json:"timestamp"`
			Sender    string `json:"sender"`
			Content   string `json:"content"`
			FromMe    bool   `json:"fromMe"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "Conversa A", convs[0].Title)
	assert.Equal(t, up.ImportID, convs[0].ImportID)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, chatlog.SenderYou, convs[0].Messages[0].Sender)
	assert.True(t, convs[0].Messages[0].FromMe)
	assert.Equal(t, "555", convs[0].Messages[1].Sender)
	assert.Equal(t, "t2", convs[0].Messages[1].Timestamp)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id+"/count", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":1}`, w.Body.String())
}

func TestUpload_Validation(t *testing.T) {
	srv, userID := newTestServer(t, 0)
	id := strconv.FormatInt(userID, 10)

	tests := []struct {
		name     string
		req      *http.Request
		status   int
		contains string
	}{
		{"missing file", uploadRequest(t, id, "", ""), http.StatusBadRequest, "file"},
		{"missing user", uploadRequest(t, "", "chats.csv", exampleCSV), http.StatusBadRequest, "user"},
		{"non-numeric user", uploadRequest(t, "abc", "chats.csv", exampleCSV), http.StatusBadRequest, "invalid"},
		{"unknown user", uploadRequest(t, "9999", "chats.csv", exampleCSV), http.StatusNotFound, "user"},
		{"empty csv", uploadRequest(t, id, "chats.csv", ""), http.StatusBadRequest, "header"},
		{"not multipart", httptest.NewRequest("POST", "/api/v1/conversations/upload", strings.NewReader("x")), http.StatusBadRequest, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, strings.ToLower(decodeError(t, w)), tt.contains)
		})
	}

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id+"/count", nil))
	assert.JSONEq(t, `{"total":0}`, w.Body.String())
}

func TestUpload_TooLarge(t *testing.T) {
	srv, userID := newTestServer(t, 512)

	big := "chat_id,type,text\n" + strings.Repeat("A,text,"+strings.Repeat("x", 100)+"\n", 50)
	w := serve(srv, uploadRequest(t, strconv.FormatInt(userID, 10), "chats.csv", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestList_Errors(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/9999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestList_EmptyIsArray(t *testing.T) {
	srv, userID := newTestServer(t, 0)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+strconv.FormatInt(userID, 10), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSearch(t *testing.T) {
	srv, userID := newTestServer(t, 0)
	id := strconv.FormatInt(userID, 10)

	csv := "chat_id,type,text\nalpha,text,a\nbeta,text,b\n"
	require.Equal(t, http.StatusCreated, serve(srv, uploadRequest(t, id, "c.csv", csv)).Code)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id+"/search?q=ALP", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var convs []chatlog.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "Conversa alpha", convs[0].Title)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id+"/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDelete(t *testing.T) {
	srv, userID := newTestServer(t, 0)
	id := strconv.FormatInt(userID, 10)
	require.Equal(t, http.StatusCreated, serve(srv, uploadRequest(t, id, "c.csv", exampleCSV)).Code)

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id, nil))
	var convs []chatlog.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&convs))
	require.Len(t, convs, 1)
	convID := strconv.FormatInt(convs[0].ID, 10)

	w = serve(srv, httptest.NewRequest("DELETE", "/api/v1/conversations/"+id+"/"+convID, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(srv, httptest.NewRequest("DELETE", "/api/v1/conversations/"+id+"/"+convID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/conversations/"+id+"/count", nil))
	assert.JSONEq(t, `{"total":0}`, w.Body.String())
}

type brokenHistory struct {
	Conversations
}

func (brokenHistory) Import(context.Context, int64, io.Reader, string) (*history.ImportResult, error) {
	return nil, &chatlog.PersistenceError{Op: "message", Err: errors.New("disk full")}
}

func TestUpload_PersistenceFailure(t *testing.T) {
	srv := NewServer(8760, &brokenHistory{}, 0, discardLogger())

	w := serve(srv, uploadRequest(t, "1", "c.csv", exampleCSV))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w), "disk full")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{chatlog.ErrMissingFile, http.StatusBadRequest},
		{chatlog.ErrMissingUser, http.StatusBadRequest},
		{chatlog.ErrUserNotFound, http.StatusNotFound},
		{chatlog.ErrConversationNotFound, http.StatusNotFound},
		{&chatlog.PersistenceError{Op: "x", Err: errors.New("boom")}, http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
