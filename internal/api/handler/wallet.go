package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/service"
)

type WalletHandler struct {
	ledger *service.LedgerService
}

func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	summary, err := h.ledger.GetWallet(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "get wallet")
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

// Transactions serves the caller's statement. from and to are RFC 3339.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := service.StatementFilter{
		Type:  strings.ToUpper(strings.TrimSpace(q.Get("type"))),
		Order: q.Get("order"),
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+name+" timestamp, expected RFC 3339")
			return
		}
		*dst = &ts
	}

	stmt, err := h.ledger.GetStatement(r.Context(), userID, filter, pageFromQuery(r))
	if err != nil {
		respondServiceError(w, r, err, "get statement")
		return
	}
	RespondJSON(w, http.StatusOK, stmt)
}
