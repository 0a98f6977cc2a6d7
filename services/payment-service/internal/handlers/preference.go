package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

type createPreferenceRequest struct {
	AmountCents   int64                   `json:"amount_cents"`
	Currency      string                  `json:"currency"`
	Description   string                  `json:"description"`
	PayerName     string                  `json:"payer_name"`
	PayerEmail    string                  `json:"payer_email"`
	AppointmentID string                  `json:"appointment_id"`
	Appointment   *model.AppointmentDraft `json:"appointment"`
	SuccessURL    string                  `json:"success_url"`
	FailureURL    string                  `json:"failure_url"`
	PendingURL    string                  `json:"pending_url"`
}

type createPreferenceResponse struct {
	PreferenceID      string `json:"preference_id"`
	CheckoutURL       string `json:"checkout_url"`
	ExternalReference string `json:"external_reference"`
	PaymentID         string `json:"payment_id,omitempty"`
	Persisted         bool   `json:"persisted"`
}

// CreatePreference builds a Mercado Pago checkout preference for an
// appointment and records the pending PaymentRecord. The external reference
// is minted before the provider call so a webhook arriving early can still
// be correlated.
func (h *Handler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	var req createPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := validatePreferenceRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	creds, err := h.repo.GetCredentials(ctx, admin)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "payment provider not configured", http.StatusConflict)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !creds.Enabled {
		http.Error(w, "payment provider not configured", http.StatusConflict)
		return
	}

	ent, err := h.entitlements.GetEntitlements(ctx, admin)
	if err != nil {
		h.logger.Warn("entitlements lookup failed, allowing payment", "admin_id", admin, "err", err)
	} else if !ent.OnlinePayments {
		http.Error(w, "online payments not included in current plan", http.StatusPaymentRequired)
		return
	}

	accessToken, err := h.sealer.Open(creds.AccessTokenSealed)
	if err != nil {
		h.logger.Error("failed to unseal provider credentials", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// When the preference pays for an existing appointment, its id is the
	// external reference. Otherwise a fresh reference is minted and doubles
	// as the provisional appointment id.
	externalRef := req.AppointmentID
	if externalRef == "" {
		externalRef = uuid.NewString()
	} else {
		appt, err := h.repo.GetAppointment(ctx, externalRef)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "appointment not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if appt.AdminID != admin {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		if appt.Status != model.AppointmentTentative {
			http.Error(w, "appointment is not awaiting payment", http.StatusConflict)
			return
		}
	}

	pref, err := h.mp.CreatePreference(ctx, accessToken, mercadopago.PreferenceRequest{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: req.Description,
		Payer: mercadopago.Payer{
			Name:  req.PayerName,
			Email: req.PayerEmail,
		},
		BackURLs: mercadopago.BackURLs{
			Success: h.pickURL(req.SuccessURL, h.defaultSuccessURL),
			Failure: h.pickURL(req.FailureURL, h.defaultFailureURL),
			Pending: h.pickURL(req.PendingURL, h.defaultPendingURL),
		},
		NotificationURL:   h.notificationURL(externalRef),
		ExternalReference: externalRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, mercadopago.ErrRejected):
			http.Error(w, "payment provider rejected the request", http.StatusUnprocessableEntity)
		case errors.Is(err, mercadopago.ErrUnavailable):
			http.Error(w, "payment provider unavailable", http.StatusBadGateway)
		default:
			h.logger.Error("preference creation failed", "admin_id", admin, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	record := model.PaymentRecord{
		ID:                uuid.NewString(),
		AppointmentID:     req.AppointmentID,
		AdminID:           admin,
		ExternalReference: externalRef,
		Provider:          model.ProviderMercadoPago,
		PreferenceID:      pref.ID,
		AmountCents:       req.AmountCents,
		Currency:          req.Currency,
		Status:            model.PaymentPending,
		AppointmentDraft:  req.Appointment,
	}

	persisted := true
	if err := h.persistPreference(r.Context(), admin, externalRef, &record, req.Appointment); err != nil {
		// The provider already issued the preference. Losing the local record
		// must not lose the sale: return the checkout URL and flag the record
		// for manual reconciliation.
		persisted = false
		h.logger.Error("payment record persistence failed after provider success, manual reconciliation required",
			"admin_id", admin,
			"preference_id", pref.ID,
			"external_reference", externalRef,
			"err", err)
	}

	writeJSON(w, http.StatusCreated, createPreferenceResponse{
		PreferenceID:      pref.ID,
		CheckoutURL:       pref.CheckoutURL,
		ExternalReference: externalRef,
		PaymentID:         record.ID,
		Persisted:         persisted,
	})
}

func (h *Handler) persistPreference(ctx context.Context, admin, externalRef string, record *model.PaymentRecord, draft *model.AppointmentDraft) error {
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if record.AppointmentID == "" && draft != nil {
		startsAt, err := time.Parse(time.RFC3339, draft.StartsAt)
		if err != nil {
			return fmt.Errorf("parse appointment start: %w", err)
		}
		appt := model.Appointment{
			ID:            externalRef,
			AdminID:       admin,
			ClientName:    draft.ClientName,
			ClientEmail:   draft.ClientEmail,
			ClientPhone:   draft.ClientPhone,
			Modality:      draft.Modality,
			StartsAt:      startsAt,
			PriceCents:    record.AmountCents,
			Currency:      record.Currency,
			Status:        model.AppointmentTentative,
			PaymentStatus: model.PaymentStatusUnpaid,
		}
		if err := h.repo.CreateAppointment(ctx, tx, &appt); err != nil {
			return err
		}
		record.AppointmentID = externalRef
	}

	if err := h.repo.CreatePaymentRecord(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func validatePreferenceRequest(req *createPreferenceRequest) error {
	if req.AmountCents <= 0 {
		return errors.New("amount_cents must be positive")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "BRL"
	}
	if len(req.Currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	if req.AppointmentID != "" && req.Appointment != nil {
		return errors.New("appointment_id and appointment are mutually exclusive")
	}
	if req.Appointment != nil {
		if strings.TrimSpace(req.Appointment.ClientName) == "" {
			return errors.New("appointment.client_name is required")
		}
		if strings.TrimSpace(req.Appointment.StartsAt) == "" {
			return errors.New("appointment.starts_at is required")
		}
		if _, err := time.Parse(time.RFC3339, req.Appointment.StartsAt); err != nil {
			return errors.New("appointment.starts_at must be RFC3339")
		}
	}
	return nil
}

func (h *Handler) pickURL(override, fallback string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fallback
}

func (h *Handler) notificationURL(externalRef string) string {
	if h.publicBaseURL == "" {
		return ""
	}
	return h.publicBaseURL + "/api/v1/payments/webhooks/mercadopago?ref=" + externalRef
}
