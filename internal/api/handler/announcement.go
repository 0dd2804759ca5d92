package handler

import (
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/service"
)

type AnnouncementHandler struct {
	announcements *service.AnnouncementService
	matching      *service.MatchingService
}

func NewAnnouncementHandler(announcements *service.AnnouncementService, matching *service.MatchingService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements, matching: matching}
}

type createAnnouncementRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	PickupAddress   string `json:"pickup_address" validate:"required"`
	DeliveryAddress string `json:"delivery_address" validate:"required"`
	PriceMicros     int64  `json:"price_micros" validate:"gt=0"`
	Publish         bool   `json:"publish"`
}

func (h *AnnouncementHandler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req createAnnouncementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.announcements.Create(r.Context(), clientID, service.CreateAnnouncementInput{
		Title:           req.Title,
		Description:     req.Description,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		PriceMicros:     req.PriceMicros,
		Publish:         req.Publish,
	})
	if err != nil {
		respondServiceError(w, r, err, "create announcement")
		return
	}
	RespondJSON(w, http.StatusCreated, a)
}

func (h *AnnouncementHandler) Publish(w http.ResponseWriter, r *http.Request) {
	clientID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.announcements.Publish(r.Context(), clientID, id)
	if err != nil {
		respondServiceError(w, r, err, "publish announcement")
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

func (h *AnnouncementHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	clientID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.announcements.Cancel(r.Context(), clientID, id)
	if err != nil {
		respondServiceError(w, r, err, "cancel announcement")
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

func (h *AnnouncementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.announcements.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get announcement")
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

// ListAvailable returns the ACTIVE announcements deliverers can claim.
func (h *AnnouncementHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	items, err := h.announcements.ListAvailable(r.Context(), pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list announcements")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AnnouncementHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	clientID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	items, err := h.announcements.ListMine(r.Context(), clientID, pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "list client announcements")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

type claimRequest struct {
	ProposedPriceMicros *int64 `json:"proposed_price_micros" validate:"omitempty,gt=0"`
}

// Claim assigns the announcement to the calling deliverer and holds the
// payment in escrow.
func (h *AnnouncementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	delivererID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.matching.Claim(r.Context(), id, delivererID, req.ProposedPriceMicros)
	if err != nil {
		respondServiceError(w, r, err, "claim announcement")
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}
