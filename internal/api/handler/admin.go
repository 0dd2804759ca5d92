package handler

import (
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/service"
)

// AdminHandler exposes escrow overrides and on-demand reconciliation.
type AdminHandler struct {
	escrow     *service.EscrowService
	reconciler *service.ReconciliationService
}

func NewAdminHandler(escrow *service.EscrowService, reconciler *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{escrow: escrow, reconciler: reconciler}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *AdminHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.escrow.GetPayment(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get payment")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// ReleasePayment settles the held payment of a confirmed delivery. An open
// delivery or a settled payment answers 409.
func (h *AdminHandler) ReleasePayment(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.escrow.ReleasePayment(r.Context(), adminID, id)
	if err != nil {
		respondServiceError(w, r, err, "release payment")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// RefundPayment refunds a held payment and cancels its delivery.
func (h *AdminHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.escrow.RefundPayment(r.Context(), adminID, id, req.Reason)
	if err != nil {
		respondServiceError(w, r, err, "refund payment")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// Reconcile runs a ledger reconciliation pass now and reports mismatches.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.reconciler.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "reconcile ledger")
		return
	}
	if mismatches == nil {
		mismatches = []service.Mismatch{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"mismatches": mismatches})
}
