package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
)

func getResult(h *Handler, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/result"+query, nil)
	w := httptest.NewRecorder()
	h.PaymentResult(w, req)
	return w
}

func TestResultRequiresReference(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &stubReconciler{})
	w := getResult(h, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	// A bare status param is never enough to reconcile.
	w = getResult(h, "?status=approved")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status-only query status = %d, want 400", w.Code)
	}
}

func TestResultNotFound(t *testing.T) {
	rec := &stubReconciler{err: reconcile.ErrReconciliationFailed}
	h := newTestHandler(t, newFakeStore(), rec)
	w := getResult(h, "?payment_id=42")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestResultProviderUnavailableIsRetryable(t *testing.T) {
	rec := &stubReconciler{err: mercadopago.ErrUnavailable}
	h := newTestHandler(t, newFakeStore(), rec)
	w := getResult(h, "?payment_id=42")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp["retryable"] != true {
		t.Fatalf("retryable = %v, want true", resp["retryable"])
	}
}

func TestResultApproved(t *testing.T) {
	startsAt := time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC)
	rec := &stubReconciler{result: reconcile.Result{
		PaymentStatus: model.PaymentApproved,
		Record:        model.PaymentRecord{ExternalReference: "ref-1"},
		Appointment: &model.Appointment{
			ID:         "ref-1",
			ClientName: "Ana",
			Modality:   "beach_tennis",
			StartsAt:   startsAt,
			Status:     model.AppointmentConfirmed,
		},
	}}
	h := newTestHandler(t, newFakeStore(), rec)
	w := getResult(h, "?external_reference=ref-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp resultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Outcome != "approved" {
		t.Fatalf("outcome = %q, want approved", resp.Outcome)
	}
	if resp.Appointment == nil || resp.Appointment.Status != model.AppointmentConfirmed {
		t.Fatalf("unexpected appointment: %+v", resp.Appointment)
	}
	if resp.Appointment.StartsAt != "2026-09-12T18:00:00Z" {
		t.Fatalf("unexpected starts_at: %s", resp.Appointment.StartsAt)
	}
	if len(rec.calls) != 1 || rec.calls[0].ExternalReference != "ref-1" {
		t.Fatalf("unexpected reconciler calls: %+v", rec.calls)
	}
}

func TestResultFailedOutcome(t *testing.T) {
	rec := &stubReconciler{result: reconcile.Result{
		PaymentStatus: model.PaymentRejected,
		Record:        model.PaymentRecord{ExternalReference: "ref-2"},
	}}
	h := newTestHandler(t, newFakeStore(), rec)
	w := getResult(h, "?collection_id=77")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp resultResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Outcome != "failed" {
		t.Fatalf("outcome = %q, want failed", resp.Outcome)
	}
	if resp.Appointment != nil {
		t.Fatal("failed payment must not expose an appointment")
	}
	if rec.calls[0].PaymentID != "77" {
		t.Fatalf("collection_id not used as payment id: %+v", rec.calls)
	}
}
