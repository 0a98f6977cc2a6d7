package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

type putCredentialsRequest struct {
	Provider      string `json:"provider"`
	AccessToken   string `json:"access_token"`
	WebhookSecret string `json:"webhook_secret"`
	Enabled       bool   `json:"enabled"`
}

// Credentials stores or returns the admin's Mercado Pago credentials.
// Secrets are sealed before they reach the database and only a masked
// suffix ever leaves this handler again.
func (h *Handler) Credentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		h.putCredentials(w, r)
	case http.MethodGet:
		h.getCredentials(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) putCredentials(w http.ResponseWriter, r *http.Request) {
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	var req putCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		req.Provider = model.ProviderMercadoPago
	}
	if req.Provider != model.ProviderMercadoPago {
		http.Error(w, "unsupported provider", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		http.Error(w, "access_token is required", http.StatusBadRequest)
		return
	}

	sealedToken, err := h.sealer.Seal(req.AccessToken)
	if err != nil {
		h.logger.Error("failed to seal access token", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var sealedSecret []byte
	if req.WebhookSecret != "" {
		sealedSecret, err = h.sealer.Seal(req.WebhookSecret)
		if err != nil {
			h.logger.Error("failed to seal webhook secret", "admin_id", admin, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = h.repo.UpsertCredentials(ctx, tx, storage.Credentials{
		AdminID:             admin,
		Provider:            req.Provider,
		AccessTokenSealed:   sealedToken,
		WebhookSecretSealed: sealedSecret,
		Enabled:             req.Enabled,
	})
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		h.logger.Error("credentials upsert failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("provider credentials updated", "admin_id", admin, "provider", req.Provider, "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": req.Provider,
		"enabled":  req.Enabled,
	})
}

func (h *Handler) getCredentials(w http.ResponseWriter, r *http.Request) {
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	creds, err := h.repo.GetCredentials(r.Context(), admin)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "no credentials configured", http.StatusNotFound)
			return
		}
		h.logger.Error("credentials lookup failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	masked := ""
	if token, err := h.sealer.Open(creds.AccessTokenSealed); err == nil {
		masked = maskSecret(token)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":           creds.Provider,
		"enabled":            creds.Enabled,
		"access_token":       masked,
		"has_webhook_secret": len(creds.WebhookSecretSealed) > 0,
		"updated_at":         formatTime(creds.UpdatedAt),
	})
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
