package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreatePreference(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pref-123","init_point":"https://mp.example/checkout/pref-123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	pref, err := c.CreatePreference(context.Background(), "tok-abc", PreferenceRequest{
		AmountCents:       15000,
		Currency:          "BRL",
		Description:       "Beach tennis court",
		ExternalReference: "ref-1",
		NotificationURL:   "https://arena.example/api/v1/payments/webhooks/mercadopago?ref=ref-1",
	})
	if err != nil {
		t.Fatalf("create preference: %v", err)
	}
	if pref.ID != "pref-123" {
		t.Fatalf("unexpected preference id: %s", pref.ID)
	}
	if pref.CheckoutURL != "https://mp.example/checkout/pref-123" {
		t.Fatalf("unexpected checkout url: %s", pref.CheckoutURL)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotBody["external_reference"] != "ref-1" {
		t.Fatalf("external_reference not sent: %v", gotBody["external_reference"])
	}
	items, ok := gotBody["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one item, got %v", gotBody["items"])
	}
	item := items[0].(map[string]any)
	if item["unit_price"] != 150.0 {
		t.Fatalf("unexpected unit price: %v", item["unit_price"])
	}
}

func TestCreatePreferenceClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid access token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.CreatePreference(context.Background(), "bad", PreferenceRequest{AmountCents: 100, Currency: "BRL"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCreatePreferenceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.CreatePreference(context.Background(), "tok", PreferenceRequest{AmountCents: 100, Currency: "BRL"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCreatePreferenceUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	_, err := c.CreatePreference(context.Background(), "tok", PreferenceRequest{AmountCents: 100, Currency: "BRL"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"status":"approved","external_reference":"ref-1","transaction_amount":150.00}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	p, err := c.GetPayment(context.Background(), "tok", "42")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.ID != "42" {
		t.Fatalf("unexpected id: %s", p.ID)
	}
	if p.Status != "approved" || p.ProviderStatus != "approved" {
		t.Fatalf("unexpected status: %s/%s", p.Status, p.ProviderStatus)
	}
	if p.ExternalReference != "ref-1" {
		t.Fatalf("unexpected external reference: %s", p.ExternalReference)
	}
	if p.AmountCents != 15000 {
		t.Fatalf("unexpected amount: %d", p.AmountCents)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Payment not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.GetPayment(context.Background(), "tok", "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"approved":     "approved",
		"APPROVED":     "approved",
		"rejected":     "rejected",
		"cancelled":    "cancelled",
		"refunded":     "cancelled",
		"charged_back": "cancelled",
		"pending":      "pending",
		"in_process":   "pending",
		"in_mediation": "pending",
		"authorized":   "pending",
		"":             "pending",
		"whatever":     "pending",
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
