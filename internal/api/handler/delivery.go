package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/service"
	"github.com/google/uuid"
)

type DeliveryHandler struct {
	handoff *service.HandoffService
}

func NewDeliveryHandler(handoff *service.HandoffService) *DeliveryHandler {
	return &DeliveryHandler{handoff: handoff}
}

type advanceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type confirmRequest struct {
	Code string `json:"code" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *DeliveryHandler) requester(w http.ResponseWriter, r *http.Request) (service.Requester, bool) {
	actorID, isAdmin, ok := actorOrAbort(w, r)
	return service.Requester{ID: actorID, Admin: isAdmin}, ok
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.handoff.GetDelivery(r.Context(), req, id)
	if err != nil {
		respondServiceError(w, r, err, "get delivery")
		return
	}
	RespondJSON(w, http.StatusOK, d)
}

// ForAnnouncement returns the delivery of an announcement. The owning client
// gets the handoff code here.
func (h *DeliveryHandler) ForAnnouncement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.handoff.DeliveryForAnnouncement(r.Context(), req, id)
	if err != nil {
		respondServiceError(w, r, err, "get announcement delivery")
		return
	}
	RespondJSON(w, http.StatusOK, d)
}

func (h *DeliveryHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	delivererID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	items, err := h.handoff.ListMyDeliveries(r.Context(), delivererID, pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list deliveries")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DeliveryHandler) Logs(w http.ResponseWriter, r *http.Request) {
	req, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	logs, err := h.handoff.DeliveryLogs(r.Context(), req, id)
	if err != nil {
		respondServiceError(w, r, err, "list delivery logs")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (h *DeliveryHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	delivererID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body advanceStatusRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	status := domain.DeliveryStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	d, err := h.handoff.AdvanceStatus(r.Context(), delivererID, id, status)
	if err != nil {
		respondServiceError(w, r, err, "advance delivery status")
		return
	}
	RespondJSON(w, http.StatusOK, d)
}

// Confirm completes the delivery when the presented code matches and
// releases the escrowed payment to the deliverer.
func (h *DeliveryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	delivererID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body confirmRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := h.handoff.ConfirmCompletion(r.Context(), delivererID, id, body.Code)
	if err != nil {
		respondServiceError(w, r, err, "confirm delivery")
		return
	}
	RespondJSON(w, http.StatusOK, d)
}

func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.abort(w, r, h.handoff.Cancel, "cancel delivery")
}

func (h *DeliveryHandler) ReportProblem(w http.ResponseWriter, r *http.Request) {
	h.abort(w, r, h.handoff.ReportProblem, "report delivery problem")
}

func (h *DeliveryHandler) abort(w http.ResponseWriter, r *http.Request, fn func(context.Context, service.Requester, uuid.UUID, string) (models.Delivery, error), op string) {
	req, ok := h.requester(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := fn(r.Context(), req, id, body.Reason)
	if err != nil {
		respondServiceError(w, r, err, op)
		return
	}
	RespondJSON(w, http.StatusOK, d)
}
