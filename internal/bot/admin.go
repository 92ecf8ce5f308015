package bot

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

const adminTokenHeader = "X-Admin-Token"

type resetResponse struct {
	CustomerID string `json:"customer_id"`
	ThreadID   string `json:"thread_id"`
}

// HandleResetThread replaces a customer's assistant thread. Disabled when no
// admin token is configured.
func (b *Bot) HandleResetThread(w http.ResponseWriter, r *http.Request) {
	if b.opts.AdminToken == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "admin endpoints are disabled"})
		return
	}
	token := r.Header.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(b.opts.AdminToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "invalid admin token"})
		return
	}

	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing_customer", Message: "customer id is required"})
		return
	}

	threadID, err := b.Threads.Reset(r.Context(), customerID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_customer", Message: "no customer with id " + customerID})
		return
	}
	if err != nil {
		b.logger.Error("Failed to reset thread",
			zap.Error(err),
			zap.String("customer_id", customerID))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "reset_failed", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{CustomerID: customerID, ThreadID: threadID})
}
