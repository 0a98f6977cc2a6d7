package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

const maxWebhookBody = 1 << 20

var errNoLookup = errors.New("no external reference to look up")

// flexID tolerates the provider sending ids as either JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type webhookPayload struct {
	ID     flexID `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// MercadoPagoWebhook ingests provider payment notifications. The contract
// with the provider: well-formed payment notifications are always answered
// 200, even when processing fails internally, so the provider does not
// retry forever against a bug. 400 and 401 are reserved for malformed
// bodies and failed signature checks.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Type != "payment" {
		// Merchant orders, plan updates and the like are out of scope here.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	paymentID := string(payload.Data.ID)
	if paymentID == "" {
		http.Error(w, "missing data.id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))

	// The notification URL carries ?ref=<external_reference>, which is how a
	// multi-tenant webhook recovers the owning admin and their secret.
	secret, resolved := h.webhookSecret(r, ref, paymentID)
	if sig := r.Header.Get("x-signature"); secret != "" {
		if !mercadopago.ValidSignature(secret, paymentID, r.Header.Get("x-request-id"), sig) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	} else if !resolved {
		h.logger.Warn("webhook for unknown payment, accepting without verification",
			"provider_payment_id", paymentID, "external_reference", ref)
	}

	// The replay guard shares fate with reconciliation: the insert only
	// commits once reconciliation succeeded, so a transient failure leaves
	// the event unrecorded and the provider's retry reprocesses it.
	guardTx, dup := h.recordProviderEvent(ctx, &payload, body)
	if dup {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if guardTx != nil {
		defer func() { _ = guardTx.Rollback(ctx) }()
	}

	if _, err := h.reconciler.Reconcile(ctx, reconcile.Reference{
		PaymentID:         paymentID,
		ExternalReference: ref,
	}); err != nil {
		// Still 200: the provider retries on its own schedule and the
		// reconciler is re-entrant, so acknowledging is always safe.
		h.logger.Error("webhook reconciliation failed",
			"provider_payment_id", paymentID,
			"external_reference", ref,
			"err", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}

	if guardTx != nil {
		if err := guardTx.Commit(ctx); err != nil {
			h.logger.Error("webhook replay-guard commit failed", "provider_payment_id", paymentID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookSecret resolves the admin owning this notification and returns
// their webhook secret. An empty secret disables signature checks for
// that admin. The second return reports whether a payment record was found.
func (h *Handler) webhookSecret(r *http.Request, externalRef, paymentID string) (string, bool) {
	ctx := r.Context()

	var rec model.PaymentRecord
	err := errNoLookup
	if externalRef != "" {
		rec, err = h.repo.GetPaymentByExternalReference(ctx, externalRef)
		if err != nil && !storage.IsNotFound(err) {
			h.logger.Error("webhook record lookup failed", "external_reference", externalRef, "err", err)
		}
	}
	if err != nil {
		rec, err = h.repo.GetPaymentByProviderPaymentID(ctx, paymentID)
		if err != nil {
			return "", false
		}
	}

	creds, err := h.repo.GetCredentials(ctx, rec.AdminID)
	if err != nil {
		if !storage.IsNotFound(err) {
			h.logger.Error("webhook credentials lookup failed", "admin_id", rec.AdminID, "err", err)
		}
		return "", true
	}
	if len(creds.WebhookSecretSealed) == 0 {
		return "", true
	}
	secret, err := h.sealer.Open(creds.WebhookSecretSealed)
	if err != nil {
		h.logger.Error("failed to unseal webhook secret", "admin_id", rec.AdminID, "err", err)
		return "", true
	}
	return secret, true
}

// recordProviderEvent inserts the notification into the replay guard and
// hands the uncommitted transaction back to the caller, who commits it only
// after processing succeeds. A nil transaction with dup=false means the
// guard is unavailable and the notification is processed unguarded.
func (h *Handler) recordProviderEvent(ctx context.Context, payload *webhookPayload, body []byte) (pgx.Tx, bool) {
	eventID := string(payload.ID)
	if eventID == "" {
		eventID = string(payload.Data.ID) + ":" + payload.Action
	}
	eventType := payload.Action
	if eventType == "" {
		eventType = payload.Type
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.logger.Error("webhook replay-guard begin failed", "err", err)
		return nil, false
	}

	err = h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        model.ProviderMercadoPago,
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         body,
	})
	if errors.Is(err, storage.ErrDuplicateProviderEvent) {
		_ = tx.Rollback(ctx)
		return nil, true
	}
	if err != nil {
		h.logger.Error("webhook replay-guard insert failed", "event_id", eventID, "err", err)
		_ = tx.Rollback(ctx)
		return nil, false
	}
	return tx, false
}
