package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabtext/internal/models"
	"collabtext/internal/relay"
	"collabtext/internal/store"
	"collabtext/internal/utils"
)

const (
	readyTimeout   = 2 * time.Second
	requestTimeout = 10 * time.Second
)

type Handlers struct {
	log      *zap.Logger
	relay    *relay.EditRelay
	upgrader websocket.Upgrader
}

func NewHandlers(log *zap.Logger, rel *relay.EditRelay, allowedOrigins []string) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		log:   log,
		relay: rel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Collaborative Text Editor Backend is running!"))
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// Ready reports whether the document store answers.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status := http.StatusOK
	if err := h.relay.Store().Ping(ctx); err != nil {
		h.log.Warn("readiness check failed", zap.Error(err))
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	utils.JSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

func (h *Handlers) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req models.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := h.relay.Save(ctx, req); err != nil {
		var verr *relay.ValidationError
		if errors.As(err, &verr) {
			utils.JSONError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.log.Error("save document failed", zap.String("documentId", req.DocumentID), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Error saving the document.")
		return
	}
	utils.JSONMessage(w, http.StatusOK, "Saved by "+req.Username+"!")
}

func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := h.relay.ClearHistory(ctx); err != nil {
		h.log.Error("clear history failed", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Error clearing history.")
		return
	}
	utils.JSONMessage(w, http.StatusOK, "Conversation history cleared!")
}

/*** /documents ***/

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.relay.Store().List(r.Context())
	if err != nil {
		h.log.Error("list documents failed", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	utils.JSON(w, http.StatusOK, models.DocumentsResponse{Total: len(docs), Items: docs})
}

// CreateDocument returns the existing record when documentId is already taken.
func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		utils.JSONError(w, http.StatusBadRequest, "documentId is required")
		return
	}
	doc, err := h.relay.Store().GetOrCreate(r.Context(), req.DocumentID)
	if err != nil {
		h.log.Error("create document failed", zap.String("documentId", req.DocumentID), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}
	utils.JSON(w, http.StatusCreated, doc)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.relay.Store().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.log.Error("get document failed", zap.String("documentId", id), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to load document")
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

// UpdateDocument goes through the relay so live editors see the new content.
func (h *Handlers) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	doc, err := h.relay.Save(r.Context(), models.SaveRequest{DocumentID: id, Content: req.Content, Username: "api"})
	if err != nil {
		h.log.Error("update document failed", zap.String("documentId", id), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to update document")
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.relay.Store().Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.log.Error("delete document failed", zap.String("documentId", id), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
