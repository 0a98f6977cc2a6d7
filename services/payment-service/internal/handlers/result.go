package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
)

type resultAppointment struct {
	ID         string `json:"id"`
	ClientName string `json:"client_name"`
	Modality   string `json:"modality"`
	StartsAt   string `json:"starts_at"`
	Status     string `json:"status"`
}

type resultResponse struct {
	Outcome           string             `json:"outcome"`
	PaymentStatus     string             `json:"payment_status"`
	ExternalReference string             `json:"external_reference,omitempty"`
	Appointment       *resultAppointment `json:"appointment,omitempty"`
}

// PaymentResult serves the page a payer lands on after checkout. The
// provider appends payment_id, external_reference, preference_id and status
// to the back URL; any subset is enough to reconcile. The status query param
// alone is never trusted, the provider is always re-queried.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	ref := reconcile.Reference{
		PaymentID:         strings.TrimSpace(firstNonEmpty(q.Get("payment_id"), q.Get("collection_id"))),
		ExternalReference: strings.TrimSpace(q.Get("external_reference")),
		PreferenceID:      strings.TrimSpace(q.Get("preference_id")),
	}
	if ref.PaymentID == "" && ref.ExternalReference == "" && ref.PreferenceID == "" {
		http.Error(w, "at least one of payment_id, external_reference, preference_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), ref)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrReconciliationFailed):
			http.Error(w, "payment not found", http.StatusNotFound)
		case errors.Is(err, mercadopago.ErrUnavailable):
			// Retryable: the payer's browser can refresh once the provider
			// recovers, a later webhook settles the record either way.
			w.Header().Set("Retry-After", "5")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":     "payment provider unavailable",
				"retryable": true,
			})
		default:
			h.logger.Error("result reconciliation failed", "payment_id", ref.PaymentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	resp := resultResponse{
		Outcome:           reconcile.Outcome(res.PaymentStatus),
		PaymentStatus:     res.PaymentStatus,
		ExternalReference: res.Record.ExternalReference,
	}
	if res.Appointment != nil {
		resp.Appointment = &resultAppointment{
			ID:         res.Appointment.ID,
			ClientName: res.Appointment.ClientName,
			Modality:   res.Appointment.Modality,
			StartsAt:   formatTime(res.Appointment.StartsAt),
			Status:     res.Appointment.Status,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListPayments returns the admin's payment records, newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	recs, err := h.repo.ListPaymentsByAdmin(r.Context(), admin, 100)
	if err != nil {
		h.logger.Error("list payments failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type item struct {
		ID                string `json:"id"`
		AppointmentID     string `json:"appointment_id,omitempty"`
		ExternalReference string `json:"external_reference"`
		PreferenceID      string `json:"preference_id,omitempty"`
		ProviderPaymentID string `json:"provider_payment_id,omitempty"`
		AmountCents       int64  `json:"amount_cents"`
		Currency          string `json:"currency"`
		Status            string `json:"status"`
		CreatedAt         string `json:"created_at"`
	}
	items := make([]item, 0, len(recs))
	for _, rec := range recs {
		items = append(items, item{
			ID:                rec.ID,
			AppointmentID:     rec.AppointmentID,
			ExternalReference: rec.ExternalReference,
			PreferenceID:      rec.PreferenceID,
			ProviderPaymentID: rec.ProviderPaymentID,
			AmountCents:       rec.AmountCents,
			Currency:          rec.Currency,
			Status:            rec.Status,
			CreatedAt:         formatTime(rec.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": items})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
