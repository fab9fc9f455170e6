package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collabtext/internal/models"
	"collabtext/internal/persist"
	"collabtext/internal/relay"
	"collabtext/internal/session"
	"collabtext/internal/store/sqlstore"
	"collabtext/internal/testhelpers"
)

func newTestHandlers(t *testing.T) (*Handlers, *sqlstore.DocumentRepository) {
	t.Helper()
	repo := testhelpers.SetupDocumentStore(t)
	rel := relay.New(session.NewHub(), repo, persist.NewWriteThrough(repo, persist.Hooks{}), zap.NewNop(), models.DefaultDocumentID)
	t.Cleanup(func() { _ = rel.Close(context.Background()) })
	return NewHandlers(zap.NewNop(), rel, []string{"*"}), repo
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeBody(t *testing.T, body *bytes.Buffer, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Bytes(), out))
}

func TestRootAndHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Collaborative Text Editor Backend is running!", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReady(t *testing.T) {
	h, repo := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, repo.Close())
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec.Body, &body)
	assert.Equal(t, "unavailable", body.Status)
	assert.NotEqual(t, "ok", body.Checks["store"])
}

func TestSaveDocument(t *testing.T) {
	h, repo := newTestHandlers(t)

	payload := models.SaveRequest{DocumentID: "default-document", Content: "[alice]: hi", Username: "alice"}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.SaveDocument(rec, httptest.NewRequest(http.MethodPost, "/save-document", jsonBody(t, payload)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.MessageResponse
		decodeBody(t, rec.Body, &resp)
		assert.Equal(t, "Saved by alice!", resp.Message)
	}

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "[alice]: hi", docs[0].Content)
}

func TestSaveDocumentErrors(t *testing.T) {
	h, repo := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.SaveDocument(rec, httptest.NewRequest(http.MethodPost, "/save-document", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.SaveDocument(rec, httptest.NewRequest(http.MethodPost, "/save-document",
		jsonBody(t, models.SaveRequest{DocumentID: "d", Content: "x"})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	decodeBody(t, rec.Body, &resp)
	assert.Equal(t, "Username is required!", resp.Error)

	testhelpers.DropDocumentTable(t, repo.DB)
	rec = httptest.NewRecorder()
	h.SaveDocument(rec, httptest.NewRequest(http.MethodPost, "/save-document",
		jsonBody(t, models.SaveRequest{DocumentID: "d", Content: "x", Username: "bob"})))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClearHistory(t *testing.T) {
	h, repo := newTestHandlers(t)
	ctx := context.Background()
	_, err := repo.Upsert(ctx, "a", "1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ClearHistory(rec, httptest.NewRequest(http.MethodDelete, "/clear-history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	testhelpers.DropDocumentTable(t, repo.DB)
	rec = httptest.NewRecorder()
	h.ClearHistory(rec, httptest.NewRequest(http.MethodDelete, "/clear-history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDocumentsCRUD(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateDocument(rec, httptest.NewRequest(http.MethodPost, "/documents",
		jsonBody(t, models.CreateDocumentRequest{DocumentID: "notes"})))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.UpdateDocument(rec, withID(httptest.NewRequest(http.MethodPut, "/documents/notes",
		jsonBody(t, models.UpdateDocumentRequest{Content: "hello"})), "notes"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetDocument(rec, withID(httptest.NewRequest(http.MethodGet, "/documents/notes", nil), "notes"))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc models.Document
	decodeBody(t, rec.Body, &doc)
	assert.Equal(t, "hello", doc.Content)

	rec = httptest.NewRecorder()
	h.ListDocuments(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))
	var list models.DocumentsResponse
	decodeBody(t, rec.Body, &list)
	assert.Equal(t, 1, list.Total)

	rec = httptest.NewRecorder()
	h.DeleteDocument(rec, withID(httptest.NewRequest(http.MethodDelete, "/documents/notes", nil), "notes"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteDocument(rec, withID(httptest.NewRequest(http.MethodDelete, "/documents/notes", nil), "notes"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.GetDocument(rec, withID(httptest.NewRequest(http.MethodGet, "/documents/notes", nil), "notes"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocumentValidation(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateDocument(rec, httptest.NewRequest(http.MethodPost, "/documents", jsonBody(t, models.CreateDocumentRequest{})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
