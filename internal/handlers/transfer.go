package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/shopspring/decimal"
)

// TransferEngine moves funds between accounts.
type TransferEngine interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error
}

type TransferHandler struct {
	engine TransferEngine
	logger logging.Logger
}

func NewTransferHandler(engine TransferEngine, logger logging.Logger) *TransferHandler {
	return &TransferHandler{engine: engine, logger: logger}
}

// TransferRouter registers POST / on r. Requests are authenticated first so
// limit can key on the account.
func TransferRouter(r chi.Router, engine TransferEngine, authn Authenticator, limit func(http.Handler) http.Handler, logger logging.Logger) {
	handler := NewTransferHandler(engine, logger)

	r.Use(RequireAuth(authn))
	if limit != nil {
		r.Use(limit)
	}
	r.Post("/", handler.Transfer)
}

// Transfer sends funds from the authenticated account. The sender never
// comes from the request body.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	toID, amount, err := req.Validate()
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.engine.Transfer(r.Context(), identity.AccountID, toID, amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
