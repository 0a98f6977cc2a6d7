package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

type createAppointmentRequest struct {
	ClientName     string `json:"client_name"`
	ClientEmail    string `json:"client_email"`
	ClientPhone    string `json:"client_phone"`
	Modality       string `json:"modality"`
	StartsAt       string `json:"starts_at"`
	PriceCents     int64  `json:"price_cents"`
	Currency       string `json:"currency"`
	RequirePayment bool   `json:"require_payment"`
}

type appointmentResponse struct {
	ID            string `json:"id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	Modality      string `json:"modality"`
	StartsAt      string `json:"starts_at"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:            appt.ID,
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		ClientPhone:   appt.ClientPhone,
		Modality:      appt.Modality,
		StartsAt:      formatTime(appt.StartsAt),
		PriceCents:    appt.PriceCents,
		Currency:      appt.Currency,
		Status:        appt.Status,
		PaymentStatus: appt.PaymentStatus,
		CancelReason:  appt.CancelReason,
		CreatedAt:     formatTime(appt.CreatedAt),
	}
}

// CreateAppointment books directly, without a checkout flow. With
// require_payment the appointment starts tentative and a preference is
// created against it afterwards; otherwise it is confirmed immediately.
// Safe to retry with the same Idempotency-Key.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	startsAt, err := validateAppointmentRequest(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idemKey != "" {
		rec, existed, err := h.repo.LockIdempotencyKey(ctx, tx, admin, idemKey)
		if err != nil {
			h.logger.Error("idempotency lock failed", "admin_id", admin, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if existed && rec.StatusCode != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
		if existed && rec.StatusCode == 0 {
			// A concurrent request holds this key but has not finalized.
			http.Error(w, "request with this Idempotency-Key is in flight", http.StatusConflict)
			return
		}
	}

	status := model.AppointmentConfirmed
	if req.RequirePayment {
		status = model.AppointmentTentative
	}
	appt := model.Appointment{
		ID:            uuid.NewString(),
		AdminID:       admin,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		Modality:      req.Modality,
		StartsAt:      startsAt,
		PriceCents:    req.PriceCents,
		Currency:      req.Currency,
		Status:        status,
		PaymentStatus: model.PaymentStatusUnpaid,
	}
	if err := h.repo.CreateAppointment(ctx, tx, &appt); err != nil {
		h.logger.Error("appointment insert failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	appt.CreatedAt = time.Now().UTC()

	resp := toAppointmentResponse(appt)
	if idemKey != "" {
		cached, err := json.Marshal(resp)
		if err == nil {
			err = h.repo.FinalizeIdempotency(ctx, tx, admin, idemKey, appt.ID, http.StatusCreated, cached)
		}
		if err != nil {
			h.logger.Error("idempotency finalize failed", "admin_id", admin, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("appointment commit failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// CancelAppointment marks an appointment cancelled. Approved payments are
// not touched: refunds are a manual, provider-side operation.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}
	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, admin, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "appointment_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if appt.Status == model.AppointmentCancelled {
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, admin, id, req.Reason)
	if err != nil {
		h.logger.Error("appointment cancel failed", "appointment_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("appointment cancel commit failed", "appointment_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	appt.Status = model.AppointmentCancelled
	appt.CancelReason = req.Reason
	appt.CancelledAt = &cancelledAt
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// ListAppointments returns the admin's appointments, soonest first.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	admin := adminID(r)
	if admin == "" {
		http.Error(w, "missing X-Admin-Id", http.StatusBadRequest)
		return
	}

	appts, err := h.repo.ListAppointmentsByAdmin(r.Context(), admin, 200)
	if err != nil {
		h.logger.Error("list appointments failed", "admin_id", admin, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func validateAppointmentRequest(req *createAppointmentRequest) (time.Time, error) {
	if strings.TrimSpace(req.ClientName) == "" {
		return time.Time{}, errors.New("client_name is required")
	}
	if strings.TrimSpace(req.Modality) == "" {
		return time.Time{}, errors.New("modality is required")
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return time.Time{}, errors.New("starts_at must be RFC3339")
	}
	if req.PriceCents < 0 {
		return time.Time{}, errors.New("price_cents must not be negative")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "BRL"
	}
	return startsAt.UTC(), nil
}
