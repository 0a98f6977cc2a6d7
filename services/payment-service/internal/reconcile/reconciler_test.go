package reconcile

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/outbox"
	"github.com/arenatime/arenatime/services/payment-service/internal/seal"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

type memTx struct {
	pgx.Tx
}

func (memTx) Commit(context.Context) error   { return nil }
func (memTx) Rollback(context.Context) error { return nil }

// memStore is an in-memory Store mirroring the repository's compare-and-set
// semantics, so the transition flows can be exercised without a database.
type memStore struct {
	records      map[string]*model.PaymentRecord // by record id
	appointments map[string]*model.Appointment   // by appointment id
	credentials  map[string]storage.Credentials  // by admin id

	confirmCalls int
}

func newMemStore() *memStore {
	return &memStore{
		records:      map[string]*model.PaymentRecord{},
		appointments: map[string]*model.Appointment{},
		credentials:  map[string]storage.Credentials{},
	}
}

func (s *memStore) Begin(context.Context) (pgx.Tx, error) { return memTx{}, nil }

func (s *memStore) GetPaymentByProviderPaymentID(_ context.Context, id string) (model.PaymentRecord, error) {
	for _, rec := range s.records {
		if rec.ProviderPaymentID == id {
			return *rec, nil
		}
	}
	return model.PaymentRecord{}, pgx.ErrNoRows
}

func (s *memStore) GetPaymentByExternalReference(_ context.Context, ref string) (model.PaymentRecord, error) {
	for _, rec := range s.records {
		if rec.ExternalReference == ref {
			return *rec, nil
		}
	}
	return model.PaymentRecord{}, pgx.ErrNoRows
}

func (s *memStore) GetPaymentByPreferenceID(_ context.Context, prefID string) (model.PaymentRecord, error) {
	for _, rec := range s.records {
		if rec.PreferenceID == prefID {
			return *rec, nil
		}
	}
	return model.PaymentRecord{}, pgx.ErrNoRows
}

func (s *memStore) GetPaymentForUpdate(_ context.Context, _ pgx.Tx, recordID string) (model.PaymentRecord, error) {
	rec, ok := s.records[recordID]
	if !ok {
		return model.PaymentRecord{}, pgx.ErrNoRows
	}
	return *rec, nil
}

func (s *memStore) ApplyPaymentStatus(_ context.Context, _ pgx.Tx, recordID, newStatus, providerPaymentID string, raw json.RawMessage) (bool, error) {
	rec, ok := s.records[recordID]
	if !ok || rec.Status != model.PaymentPending {
		return false, nil
	}
	rec.Status = newStatus
	if rec.ProviderPaymentID == "" {
		rec.ProviderPaymentID = providerPaymentID
	}
	rec.RawPayload = raw
	return true, nil
}

func (s *memStore) RecordProviderPaymentID(_ context.Context, _ pgx.Tx, recordID, providerPaymentID string) error {
	if rec, ok := s.records[recordID]; ok && rec.ProviderPaymentID == "" {
		rec.ProviderPaymentID = providerPaymentID
	}
	return nil
}

func (s *memStore) HasApprovedPayment(_ context.Context, _ pgx.Tx, appointmentID, excludeRecordID string) (bool, error) {
	for _, rec := range s.records {
		if rec.AppointmentID == appointmentID && rec.Status == model.PaymentApproved && rec.ID != excludeRecordID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ConfirmAppointment(_ context.Context, _ pgx.Tx, appointmentID string) (bool, error) {
	s.confirmCalls++
	appt, ok := s.appointments[appointmentID]
	if !ok || appt.Status != model.AppointmentTentative {
		return false, nil
	}
	appt.Status = model.AppointmentConfirmed
	appt.PaymentStatus = model.PaymentStatusPaid
	return true, nil
}

func (s *memStore) CreateAppointment(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	cp := *appt
	s.appointments[appt.ID] = &cp
	return nil
}

func (s *memStore) LinkAppointment(_ context.Context, _ pgx.Tx, recordID, appointmentID string) error {
	if rec, ok := s.records[recordID]; ok {
		rec.AppointmentID = appointmentID
	}
	return nil
}

func (s *memStore) GetAppointment(_ context.Context, appointmentID string) (model.Appointment, error) {
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return *appt, nil
}

func (s *memStore) GetCredentials(_ context.Context, adminID string) (storage.Credentials, error) {
	c, ok := s.credentials[adminID]
	if !ok {
		return storage.Credentials{}, pgx.ErrNoRows
	}
	return c, nil
}

type memSink struct {
	events []outbox.Event
}

func (s *memSink) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	s.events = append(s.events, evt)
	return nil
}

func (s *memSink) eventTypes() []string {
	types := make([]string, 0, len(s.events))
	for _, evt := range s.events {
		types = append(types, evt.EventType)
	}
	return types
}

type stubGateway struct {
	payments map[string]mercadopago.Payment
	calls    int
}

func (g *stubGateway) GetPayment(_ context.Context, _, paymentID string) (mercadopago.Payment, error) {
	g.calls++
	p, ok := g.payments[paymentID]
	if !ok {
		return mercadopago.Payment{}, mercadopago.ErrNotFound
	}
	return p, nil
}

func testSealer(t *testing.T) *seal.Sealer {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	s, err := seal.NewSealer(key)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// reconcilerFixture wires a reconciler over in-memory collaborators, with
// one admin whose sealed access token is already stored.
func reconcilerFixture(t *testing.T) (*Reconciler, *memStore, *memSink, *stubGateway) {
	t.Helper()
	store := newMemStore()
	sealer := testSealer(t)
	sealed, err := sealer.Seal("mp-access-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	store.credentials["admin-1"] = storage.Credentials{
		AdminID:           "admin-1",
		Provider:          model.ProviderMercadoPago,
		AccessTokenSealed: sealed,
		Enabled:           true,
	}
	sink := &memSink{}
	gw := &stubGateway{payments: map[string]mercadopago.Payment{}}
	return New(store, sink, gw, sealer, testLogger()), store, sink, gw
}

func TestReconcileEmptyReference(t *testing.T) {
	r := New(nil, nil, nil, nil, testLogger())
	_, err := r.Reconcile(context.Background(), Reference{})
	if !errors.Is(err, ErrReconciliationFailed) {
		t.Fatalf("err = %v, want ErrReconciliationFailed", err)
	}
}

func TestReconcileApprovedConfirmsAppointment(t *testing.T) {
	r, store, sink, gw := reconcilerFixture(t)
	store.appointments["a1"] = &model.Appointment{ID: "a1", AdminID: "admin-1", Status: model.AppointmentTentative}
	store.records["p1"] = &model.PaymentRecord{
		ID:                "p1",
		AppointmentID:     "a1",
		AdminID:           "admin-1",
		ExternalReference: "ref-1",
		ProviderPaymentID: "mp-1",
		Status:            model.PaymentPending,
	}
	gw.payments["mp-1"] = mercadopago.Payment{ID: "mp-1", Status: "approved", ExternalReference: "ref-1"}

	res, err := r.Reconcile(context.Background(), Reference{PaymentID: "mp-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.PaymentStatus != model.PaymentApproved {
		t.Fatalf("payment status = %q, want approved", res.PaymentStatus)
	}
	if store.records["p1"].Status != model.PaymentApproved {
		t.Fatalf("record status = %q, want approved", store.records["p1"].Status)
	}
	if got := store.appointments["a1"].Status; got != model.AppointmentConfirmed {
		t.Fatalf("appointment status = %q, want confirmed", got)
	}
	if res.Appointment == nil || res.Appointment.PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("result appointment = %+v, want paid", res.Appointment)
	}
	if got := sink.eventTypes(); len(got) != 1 || got[0] != "payments.payment.approved.v1" {
		t.Fatalf("events = %v, want single approved event", got)
	}
}

func TestReconcileRejectedLeavesAppointmentTentative(t *testing.T) {
	r, store, sink, gw := reconcilerFixture(t)
	store.appointments["a1"] = &model.Appointment{ID: "a1", AdminID: "admin-1", Status: model.AppointmentTentative}
	store.records["p1"] = &model.PaymentRecord{
		ID:                "p1",
		AppointmentID:     "a1",
		AdminID:           "admin-1",
		ExternalReference: "ref-1",
		ProviderPaymentID: "mp-1",
		Status:            model.PaymentPending,
	}
	gw.payments["mp-1"] = mercadopago.Payment{ID: "mp-1", Status: "rejected", ExternalReference: "ref-1"}

	res, err := r.Reconcile(context.Background(), Reference{PaymentID: "mp-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.PaymentStatus != model.PaymentRejected {
		t.Fatalf("payment status = %q, want rejected", res.PaymentStatus)
	}
	// The slot stays held: a rejected attempt does not release or confirm.
	if got := store.appointments["a1"].Status; got != model.AppointmentTentative {
		t.Fatalf("appointment status = %q, want tentative", got)
	}
	if got := sink.eventTypes(); len(got) != 1 || got[0] != "payments.payment.rejected.v1" {
		t.Fatalf("events = %v, want single rejected event", got)
	}
}

func TestReconcileUnknownReference(t *testing.T) {
	r, store, sink, gw := reconcilerFixture(t)

	_, err := r.Reconcile(context.Background(), Reference{ExternalReference: "ref-missing"})
	if !errors.Is(err, ErrReconciliationFailed) {
		t.Fatalf("err = %v, want ErrReconciliationFailed", err)
	}
	if gw.calls != 0 {
		t.Fatal("gateway called for a reference no record matches")
	}
	if len(store.appointments) != 0 || len(sink.events) != 0 {
		t.Fatal("unknown reference must not mutate anything")
	}
}

func TestReconcileTerminalRecordSkipsProvider(t *testing.T) {
	r, store, _, gw := reconcilerFixture(t)
	store.records["p1"] = &model.PaymentRecord{
		ID:                "p1",
		AdminID:           "admin-1",
		ExternalReference: "ref-1",
		ProviderPaymentID: "mp-1",
		Status:            model.PaymentApproved,
	}

	res, err := r.Reconcile(context.Background(), Reference{PaymentID: "mp-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.PaymentStatus != model.PaymentApproved {
		t.Fatalf("payment status = %q, want approved", res.PaymentStatus)
	}
	if gw.calls != 0 {
		t.Fatal("terminal record must not hit the provider")
	}
}

func TestReconcileMaterializesDraftAppointment(t *testing.T) {
	r, store, _, gw := reconcilerFixture(t)
	store.records["p1"] = &model.PaymentRecord{
		ID:                "p1",
		AdminID:           "admin-1",
		ExternalReference: "ref-draft",
		ProviderPaymentID: "mp-1",
		AmountCents:       120000,
		Currency:          "ARS",
		Status:            model.PaymentPending,
		AppointmentDraft: &model.AppointmentDraft{
			ClientName: "Lucia Fernandez",
			Modality:   "padel",
			StartsAt:   "2026-09-12T18:00:00Z",
		},
	}
	gw.payments["mp-1"] = mercadopago.Payment{ID: "mp-1", Status: "approved", ExternalReference: "ref-draft"}

	res, err := r.Reconcile(context.Background(), Reference{PaymentID: "mp-1"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	appt, ok := store.appointments["ref-draft"]
	if !ok {
		t.Fatal("approved draft did not materialize an appointment")
	}
	if appt.Status != model.AppointmentConfirmed || appt.PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("materialized appointment = %q/%q, want confirmed/paid", appt.Status, appt.PaymentStatus)
	}
	if appt.PriceCents != 120000 || appt.ClientName != "Lucia Fernandez" {
		t.Fatalf("materialized appointment carries wrong draft data: %+v", appt)
	}
	if store.records["p1"].AppointmentID != "ref-draft" {
		t.Fatal("record not linked to the materialized appointment")
	}
	if res.Appointment == nil || res.Appointment.ID != "ref-draft" {
		t.Fatalf("result appointment = %+v", res.Appointment)
	}
}

func TestReconcileFlagsSecondApproval(t *testing.T) {
	// Two pending attempts against the same appointment can both be charged
	// by the provider. Only the first approval settles; the second is
	// recorded but flagged for a refund instead of re-confirming.
	r, store, sink, gw := reconcilerFixture(t)
	store.appointments["a1"] = &model.Appointment{ID: "a1", AdminID: "admin-1", Status: model.AppointmentConfirmed, PaymentStatus: model.PaymentStatusPaid}
	store.records["p1"] = &model.PaymentRecord{
		ID:                "p1",
		AppointmentID:     "a1",
		AdminID:           "admin-1",
		ExternalReference: "ref-1",
		ProviderPaymentID: "mp-1",
		Status:            model.PaymentApproved,
	}
	store.records["p2"] = &model.PaymentRecord{
		ID:                "p2",
		AppointmentID:     "a1",
		AdminID:           "admin-1",
		ExternalReference: "ref-2",
		ProviderPaymentID: "mp-2",
		Status:            model.PaymentPending,
	}
	gw.payments["mp-2"] = mercadopago.Payment{ID: "mp-2", Status: "approved", ExternalReference: "ref-2"}

	res, err := r.Reconcile(context.Background(), Reference{PaymentID: "mp-2"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.PaymentStatus != model.PaymentApproved {
		t.Fatalf("payment status = %q, want approved", res.PaymentStatus)
	}
	if store.confirmCalls != 0 {
		t.Fatal("second approval must not touch the appointment")
	}

	types := sink.eventTypes()
	var flagged bool
	for i, typ := range types {
		if typ != "payments.payment.duplicate_approval.v1" {
			continue
		}
		flagged = true
		var payload map[string]any
		if err := json.Unmarshal(sink.events[i].Payload, &payload); err != nil {
			t.Fatalf("bad flag payload: %v", err)
		}
		if payload["refund_required"] != true {
			t.Fatalf("flag payload = %v, want refund_required", payload)
		}
		if payload["payment_record_id"] != "p2" {
			t.Fatalf("flagged record = %v, want p2", payload["payment_record_id"])
		}
	}
	if !flagged {
		t.Fatalf("events = %v, want a duplicate_approval flag", types)
	}
}
