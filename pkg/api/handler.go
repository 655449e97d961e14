package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mihaimyh/subsync/pkg/billing"
)

const (
	customerIDParam = "customer_id"
	maxUserIDLen    = 255
)

// Handler provides HTTP endpoints for subscription status inspection
type Handler struct {
	config Config
}

// GetStatus returns the stored subscription state of a user.
// The user is taken from GetUserID, or resolved from ?customer_id= when
// GetUserID yields nothing.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		if customerID := r.URL.Query().Get(customerIDParam); customerID != "" {
			if len(customerID) > maxUserIDLen {
				h.handleError(w, r, fmt.Errorf("invalid customer ID format"), http.StatusBadRequest)
				return
			}
			var err error
			userID, err = h.config.Store.FindUserByCustomerID(ctx, customerID)
			if errors.Is(err, billing.ErrCustomerNotFound) {
				h.handleError(w, r, err, http.StatusNotFound)
				return
			}
			if err != nil {
				h.handleError(w, r, fmt.Errorf("failed to resolve customer: %w", err), http.StatusInternalServerError)
				return
			}
		}
	}

	if !h.validUserID(w, r, userID) {
		return
	}

	h.writeRecord(w, r, userID)
}

// Sync reconciles the user's subscription with the billing provider and
// returns the refreshed state.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.handleError(w, r, fmt.Errorf("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	if h.config.Syncer == nil {
		h.handleError(w, r, fmt.Errorf("sync not configured"), http.StatusNotImplemented)
		return
	}

	userID := h.config.GetUserID(r)
	if !h.validUserID(w, r, userID) {
		return
	}

	if _, err := h.config.Syncer.SyncUser(r.Context(), userID); err != nil {
		h.config.Logger.Warn("subscription sync failed",
			billing.Field{Key: "user_id", Value: userID},
			billing.Field{Key: "error", Value: err},
		)
		switch {
		case errors.Is(err, billing.ErrUserNotFound):
			h.handleError(w, r, billing.ErrUserNotFound, http.StatusNotFound)
		case errors.Is(err, billing.ErrSubscriptionNotLinked):
			h.handleError(w, r, billing.ErrSubscriptionNotLinked, http.StatusConflict)
		case errors.Is(err, billing.ErrProviderAPIError):
			h.handleError(w, r, billing.ErrProviderAPIError, http.StatusBadGateway)
		default:
			h.handleError(w, r, fmt.Errorf("sync failed"), http.StatusInternalServerError)
		}
		return
	}

	h.writeRecord(w, r, userID)
}

func (h *Handler) validUserID(w http.ResponseWriter, r *http.Request, userID string) bool {
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusBadRequest)
		return false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, userID string) {
	rec, err := h.config.Store.GetUser(r.Context(), userID)
	if errors.Is(err, billing.ErrUserNotFound) {
		h.handleError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		h.config.Logger.Error("failed to read user record",
			billing.Field{Key: "user_id", Value: userID},
			billing.Field{Key: "error", Value: err},
		)
		h.handleError(w, r, fmt.Errorf("failed to get user"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toResponse(rec)); err != nil {
		// Log encoding error but response already sent
		return
	}
}

func toResponse(rec *billing.UserRecord) StatusResponse {
	resp := StatusResponse{
		UserID:           rec.UserID,
		CustomerID:       rec.ExternalCustomerID,
		SubscriptionID:   rec.ExternalSubscriptionID,
		Status:           string(rec.SubscriptionStatus),
		Entitled:         rec.SubscriptionStatus.Entitled(),
		Plan:             rec.SubscriptionPlan,
		TrialEnd:         rec.TrialEnd,
		CurrentPeriodEnd: rec.CurrentPeriodEnd,
	}
	if !rec.UpdatedAt.IsZero() {
		updatedAt := rec.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	// Default error handling
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		// Log encoding error but response already sent
		_ = encodeErr
	}
}
