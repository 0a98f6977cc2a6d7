package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

// idemStore layers idempotency-key state on top of fakeStore.
type idemStore struct {
	*fakeStore

	idem      map[string]storage.IdempotencyRecord
	created   []model.Appointment
	finalized int
}

func newIdemStore() *idemStore {
	return &idemStore{
		fakeStore: newFakeStore(),
		idem:      map[string]storage.IdempotencyRecord{},
	}
}

func (s *idemStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, adminID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := s.idem[adminID+":"+key]
	return rec, ok, nil
}

func (s *idemStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, adminID, key, appointmentID string, statusCode int, response []byte) error {
	s.idem[adminID+":"+key] = storage.IdempotencyRecord{
		AdminID:         adminID,
		IdempotencyKey:  key,
		AppointmentID:   appointmentID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	s.finalized++
	return nil
}

func (s *idemStore) CreateAppointment(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	s.created = append(s.created, *appt)
	return nil
}

func postAppointment(h *Handler, body, idemKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/create", strings.NewReader(body))
	req.Header.Set("X-Admin-Id", "admin-1")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	h.CreateAppointment(w, req)
	return w
}

func TestCreateAppointmentIdempotentReplay(t *testing.T) {
	store := newIdemStore()
	h := New(store, nil, &stubReconciler{}, nil, testSealer(t), nil, testLogger(), Config{})

	body := `{"client_name":"Ana","modality":"padel","starts_at":"2026-09-12T18:00:00Z","price_cents":15000}`

	first := postAppointment(h, body, "key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", first.Code)
	}
	replay := postAppointment(h, body, "key-1")
	if replay.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want 201", replay.Code)
	}
	if len(store.created) != 1 {
		t.Fatalf("appointments created = %d, want 1", len(store.created))
	}
	if store.finalized != 1 {
		t.Fatalf("finalized = %d, want 1", store.finalized)
	}

	var a, b appointmentResponse
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("first body: %v", err)
	}
	if err := json.Unmarshal(replay.Body.Bytes(), &b); err != nil {
		t.Fatalf("replay body: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("replay minted a new appointment: %s vs %s", a.ID, b.ID)
	}
}

func TestCreateAppointmentRequirePayment(t *testing.T) {
	store := newIdemStore()
	h := New(store, nil, &stubReconciler{}, nil, testSealer(t), nil, testLogger(), Config{})

	body := `{"client_name":"Ana","modality":"padel","starts_at":"2026-09-12T18:00:00Z","require_payment":true}`
	w := postAppointment(h, body, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if got := store.created[0].Status; got != model.AppointmentTentative {
		t.Fatalf("status = %q, want tentative", got)
	}

	body = `{"client_name":"Ana","modality":"padel","starts_at":"2026-09-12T18:00:00Z"}`
	w = postAppointment(h, body, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if got := store.created[1].Status; got != model.AppointmentConfirmed {
		t.Fatalf("status = %q, want confirmed", got)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	h := New(newIdemStore(), nil, &stubReconciler{}, nil, testSealer(t), nil, testLogger(), Config{})

	cases := []string{
		`{"modality":"padel","starts_at":"2026-09-12T18:00:00Z"}`,
		`{"client_name":"Ana","starts_at":"2026-09-12T18:00:00Z"}`,
		`{"client_name":"Ana","modality":"padel","starts_at":"tomorrow"}`,
		`{"client_name":"Ana","modality":"padel","starts_at":"2026-09-12T18:00:00Z","price_cents":-1}`,
	}
	for _, body := range cases {
		if w := postAppointment(h, body, ""); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}
