package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/service"
)

const maxDocumentSize = 10 << 20

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Submit accepts a multipart form with a "type" field and a "file" part.
func (h *DocumentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, r, http.StatusRequestEntityTooLarge, "document/too-large", "document exceeds 10 MiB")
			return
		}
		RespondError(w, r, http.StatusBadRequest, "request/invalid-multipart", "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-file", "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentSize+1))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-file", "could not read file")
		return
	}
	if len(data) > maxDocumentSize {
		RespondError(w, r, http.StatusRequestEntityTooLarge, "document/too-large", "document exceeds 10 MiB")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	doc, err := h.documents.SubmitDocument(r.Context(), userID, service.SubmitDocumentInput{
		Type:        r.FormValue("type"),
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		respondServiceError(w, r, err, "submit document")
		return
	}
	RespondJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	docs, err := h.documents.ListDocuments(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "list documents")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (h *DocumentHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	p, err := h.documents.GetProfile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "get profile")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// Download returns a time-limited link to the stored file.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, isAdmin, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	url, expires, err := h.documents.DocumentURL(r.Context(), userID, isAdmin, id)
	if err != nil {
		respondServiceError(w, r, err, "document url")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"url": url, "expires_at": expires})
}

func (h *DocumentHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.ListPendingDocuments(r.Context(), pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list pending documents")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": docs})
}

type documentReviewRequest struct {
	Decision string `json:"decision" validate:"required"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// Review decides a pending document and answers with the owner's
// recomputed aggregate profile.
func (h *DocumentHandler) Review(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req documentReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.documents.ReviewDocument(r.Context(), adminID, id, req.Decision, req.Reason)
	if err != nil {
		respondServiceError(w, r, err, "review document")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

func (h *DocumentHandler) RejectProfile(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.documents.RejectProfile(r.Context(), adminID, userID, req.Reason)
	if err != nil {
		respondServiceError(w, r, err, "reject profile")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}
