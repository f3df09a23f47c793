package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gopaywall/internal/httputil"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// GetMySubscription returns the caller's active or trialing subscription
func (h *Handler) GetMySubscription(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserID(r)
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	sub, err := h.manager.GetMySubscription(r.Context(), userID)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, SubscriptionResponse{Subscription: sub, Active: sub != nil})
}

// GetLatestSubscription returns the newest subscription of any status.
// Admins may pass ?userId= to inspect another user; the default is the caller.
func (h *Handler) GetLatestSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = h.getUserID(r)
	}
	if userID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}

	sub, err := h.manager.GetLatestSubscription(r.Context(), userID)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, SubscriptionResponse{
		Subscription: sub,
		Active:       sub != nil && sub.Status.GrantsAccess(),
	})
}

// CreateCheckout starts a hosted checkout and returns the redirect URL
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserID(r)
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	url, err := h.manager.CreateCheckout(r.Context(), userID)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// CreatePortalSession opens the provider's customer portal for the caller
func (h *Handler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserID(r)
	if userID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req PortalRequest
	if err := h.decode(w, r, &req, true); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	url, err := h.manager.CreatePortalSession(r.Context(), userID, req.ReturnURL)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// GetPaymentSettings returns the configured product and price
func (h *Handler) GetPaymentSettings(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}

	settings, err := h.manager.GetPaymentSettings(r.Context())
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, settings)
}

// PutPaymentSettings replaces the configured product and price
func (h *Handler) PutPaymentSettings(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}

	var req PaymentSettingsRequest
	if err := h.decode(w, r, &req, false); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	settings, err := h.manager.ReplacePaymentSettings(r.Context(), req.ProductID, req.PriceID)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	h.logger.Info("payment settings replaced",
		paywall.Field{Key: "settings_id", Value: settings.ID},
		paywall.Field{Key: "product_id", Value: settings.ProductID},
		paywall.Field{Key: "price_id", Value: settings.PriceID},
	)
	_ = httputil.WriteJSON(w, http.StatusOK, settings)
}

// decode reads a JSON body into v and validates it. With optional set an empty body
// leaves v at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return errors.New("malformed JSON body")
		}
	}

	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("invalid field " + verrs[0].Field() + ": " + verrs[0].Tag())
		}
		return err
	}
	return nil
}
