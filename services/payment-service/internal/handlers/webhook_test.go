package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
	"github.com/arenatime/arenatime/services/payment-service/internal/seal"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

// fakeTx satisfies pgx.Tx for handler tests. Provider-event inserts are
// staged on the transaction and only land in the store on Commit, matching
// the rollback semantics the webhook replay guard relies on.
type fakeTx struct {
	pgx.Tx

	store  *fakeStore
	staged []storage.ProviderEvent
}

func (t *fakeTx) Commit(context.Context) error {
	for _, evt := range t.staged {
		t.store.seenEvents[evt.Provider+":"+evt.ProviderEventID] = true
		t.store.inserted = append(t.store.inserted, evt)
	}
	t.staged = nil
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.staged = nil
	return nil
}

// fakeStore embeds Store so tests only implement what a case exercises.
type fakeStore struct {
	Store

	payments    map[string]model.PaymentRecord // by provider payment id
	byRef       map[string]model.PaymentRecord // by external reference
	credentials map[string]storage.Credentials // by admin id
	seenEvents  map[string]bool
	inserted    []storage.ProviderEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:    map[string]model.PaymentRecord{},
		byRef:       map[string]model.PaymentRecord{},
		credentials: map[string]storage.Credentials{},
		seenEvents:  map[string]bool{},
	}
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{store: s}, nil }

func (s *fakeStore) GetPaymentByProviderPaymentID(_ context.Context, id string) (model.PaymentRecord, error) {
	rec, ok := s.payments[id]
	if !ok {
		return model.PaymentRecord{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (s *fakeStore) GetPaymentByExternalReference(_ context.Context, ref string) (model.PaymentRecord, error) {
	rec, ok := s.byRef[ref]
	if !ok {
		return model.PaymentRecord{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (s *fakeStore) GetCredentials(_ context.Context, adminID string) (storage.Credentials, error) {
	c, ok := s.credentials[adminID]
	if !ok {
		return storage.Credentials{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *fakeStore) InsertProviderEvent(_ context.Context, tx pgx.Tx, evt storage.ProviderEvent) error {
	key := evt.Provider + ":" + evt.ProviderEventID
	if s.seenEvents[key] {
		return storage.ErrDuplicateProviderEvent
	}
	if t, ok := tx.(*fakeTx); ok {
		t.staged = append(t.staged, evt)
	}
	return nil
}

type stubReconciler struct {
	result reconcile.Result
	err    error
	calls  []reconcile.Reference
}

func (s *stubReconciler) Reconcile(_ context.Context, ref reconcile.Reference) (reconcile.Result, error) {
	s.calls = append(s.calls, ref)
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

func newTestHandler(t *testing.T, store *fakeStore, rec Reconciler) *Handler {
	t.Helper()
	return New(store, nil, rec, nil, testSealer(t), nil, testLogger(), Config{})
}

func postWebhook(h *Handler, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/mercadopago", strings.NewReader(body))
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.MercadoPagoWebhook(w, req)
	return w
}

func TestWebhookMalformedBody(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &stubReconciler{})
	w := postWebhook(h, "{not json", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookMissingDataID(t *testing.T) {
	h := newTestHandler(t, newFakeStore(), &stubReconciler{})
	w := postWebhook(h, `{"type":"payment","data":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookIgnoresNonPaymentTypes(t *testing.T) {
	rec := &stubReconciler{}
	h := newTestHandler(t, newFakeStore(), rec)
	w := postWebhook(h, `{"type":"merchant_order","data":{"id":"999"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.calls) != 0 {
		t.Fatal("reconciler must not run for non-payment notifications")
	}
}

func TestWebhookAlwaysAcksOnInternalFailure(t *testing.T) {
	// The provider contract: a well-formed payment notification gets 200
	// even when reconciliation fails internally.
	rec := &stubReconciler{err: errors.New("db down")}
	h := newTestHandler(t, newFakeStore(), rec)
	w := postWebhook(h, `{"id":"wh-1","type":"payment","action":"payment.updated","data":{"id":"42"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Fatalf("status field = %q, want accepted", resp["status"])
	}
	if len(rec.calls) != 1 || rec.calls[0].PaymentID != "42" {
		t.Fatalf("unexpected reconciler calls: %+v", rec.calls)
	}
}

func TestWebhookDeduplicatesReplays(t *testing.T) {
	rec := &stubReconciler{}
	store := newFakeStore()
	h := newTestHandler(t, store, rec)

	body := `{"id":"wh-dup","type":"payment","data":{"id":"42"}}`
	if w := postWebhook(h, body, nil); w.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", w.Code)
	}
	w := postWebhook(h, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "duplicate" {
		t.Fatalf("replay status field = %q, want duplicate", resp["status"])
	}
	if len(rec.calls) != 1 {
		t.Fatalf("reconciler ran %d times, want 1", len(rec.calls))
	}
}

func TestWebhookReprocessesAfterFailure(t *testing.T) {
	// A transient reconciliation failure must not mark the event processed:
	// the provider's retry of the same notification has to reach the
	// reconciler again instead of being answered as a duplicate.
	rec := &stubReconciler{err: errors.New("db down")}
	store := newFakeStore()
	h := newTestHandler(t, store, rec)

	body := `{"id":"wh-retry","type":"payment","action":"payment.updated","data":{"id":"42"}}`
	if w := postWebhook(h, body, nil); w.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", w.Code)
	}
	if len(store.inserted) != 0 {
		t.Fatal("replay guard recorded the event despite reconciliation failing")
	}

	rec.err = nil
	w := postWebhook(h, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Fatalf("retry status field = %q, want ok", resp["status"])
	}
	if len(rec.calls) != 2 {
		t.Fatalf("reconciler ran %d times, want 2", len(rec.calls))
	}
	if len(store.inserted) != 1 {
		t.Fatalf("recorded %d events after successful retry, want 1", len(store.inserted))
	}
}

func TestWebhookNumericDataID(t *testing.T) {
	rec := &stubReconciler{}
	h := newTestHandler(t, newFakeStore(), rec)
	w := postWebhook(h, `{"id":7,"type":"payment","data":{"id":314159}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.calls) != 1 || rec.calls[0].PaymentID != "314159" {
		t.Fatalf("unexpected reconciler calls: %+v", rec.calls)
	}
}

func TestWebhookSignature(t *testing.T) {
	store := newFakeStore()
	sealer := testSealer(t)
	secret := "whsec-test"
	sealed, err := sealer.Seal(secret)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	store.byRef["ref-1"] = model.PaymentRecord{ID: "p1", AdminID: "admin-1", ExternalReference: "ref-1"}
	store.credentials["admin-1"] = storage.Credentials{
		AdminID:             "admin-1",
		Provider:            model.ProviderMercadoPago,
		WebhookSecretSealed: sealed,
		Enabled:             true,
	}
	rec := &stubReconciler{}
	h := New(store, nil, rec, nil, sealer, nil, testLogger(), Config{})

	body := `{"id":"wh-sig","type":"payment","data":{"id":"42"}}`
	target := "/api/v1/payments/webhooks/mercadopago?ref=ref-1"

	sign := func(ts string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte("id:42;request-id:req-9;ts:" + ts + ";"))
		return hex.EncodeToString(mac.Sum(nil))
	}

	// Wrong signature is rejected before any state change.
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("x-request-id", "req-9")
	req.Header.Set("x-signature", "ts=100,v1=deadbeef")
	w := httptest.NewRecorder()
	h.MercadoPagoWebhook(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d, want 401", w.Code)
	}
	if len(rec.calls) != 0 {
		t.Fatal("reconciler ran despite invalid signature")
	}

	// Correct signature is accepted.
	req = httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("x-request-id", "req-9")
	req.Header.Set("x-signature", "ts=100,v1="+sign("100"))
	w = httptest.NewRecorder()
	h.MercadoPagoWebhook(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("good signature status = %d, want 200", w.Code)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("reconciler ran %d times, want 1", len(rec.calls))
	}
}
