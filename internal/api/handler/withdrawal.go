package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/service"
)

type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type createWithdrawalRequest struct {
	AmountMicros int64           `json:"amount_micros" validate:"gt=0"`
	Method       string          `json:"method" validate:"required"`
	Destination  json.RawMessage `json:"destination" validate:"required"`
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required"`
	Note     string `json:"note" validate:"max=1000"`
}

type finalizeRequest struct {
	Outcome string `json:"outcome" validate:"required"`
	Note    string `json:"note" validate:"max=1000"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req createWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wr, err := h.withdrawals.RequestWithdrawal(r.Context(), userID, service.RequestWithdrawalInput{
		AmountMicros: req.AmountMicros,
		Method:       req.Method,
		Destination:  req.Destination,
	})
	if err != nil {
		respondServiceError(w, r, err, "request withdrawal")
		return
	}
	RespondJSON(w, http.StatusCreated, wr)
}

func (h *WithdrawalHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	items, err := h.withdrawals.ListMine(r.Context(), userID, pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list withdrawals")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WithdrawalHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	stats, err := h.withdrawals.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "withdrawal stats")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": stats})
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	wr, err := h.withdrawals.Cancel(r.Context(), userID, id)
	if err != nil {
		respondServiceError(w, r, err, "cancel withdrawal")
		return
	}
	RespondJSON(w, http.StatusOK, wr)
}

// ListPending is the admin review queue, highest priority first.
func (h *WithdrawalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.withdrawals.ListPending(r.Context(), pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list pending withdrawals")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WithdrawalHandler) Review(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wr, err := h.withdrawals.Review(r.Context(), adminID, id, req.Decision, req.Note)
	if err != nil {
		respondServiceError(w, r, err, "review withdrawal")
		return
	}
	RespondJSON(w, http.StatusOK, wr)
}

func (h *WithdrawalHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req finalizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wr, err := h.withdrawals.Finalize(r.Context(), adminID, id, req.Outcome, req.Note)
	if err != nil {
		respondServiceError(w, r, err, "finalize withdrawal")
		return
	}
	RespondJSON(w, http.StatusOK, wr)
}
