package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/outbox"
	"github.com/arenatime/arenatime/services/payment-service/internal/seal"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

// ErrReconciliationFailed means neither the local store nor the provider
// knows the referenced payment. Non-retryable; surfaced to end users as
// "payment not found".
var ErrReconciliationFailed = errors.New("payment not found")

// Gateway is the provider surface the reconciler needs. The concrete
// implementation is the Mercado Pago client.
type Gateway interface {
	GetPayment(ctx context.Context, accessToken, paymentID string) (mercadopago.Payment, error)
}

// Reference identifies a payment by whatever the caller has: a provider
// payment id (webhook), or an external reference / preference id (redirect
// query string). Any subset may be set.
type Reference struct {
	PaymentID         string
	ExternalReference string
	PreferenceID      string
}

func (ref Reference) empty() bool {
	return ref.PaymentID == "" && ref.ExternalReference == "" && ref.PreferenceID == ""
}

type Result struct {
	PaymentStatus string
	Record        model.PaymentRecord
	Appointment   *model.Appointment
}

// Store is the storage surface the reconciler drives. *storage.Repository
// satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (model.PaymentRecord, error)
	GetPaymentByExternalReference(ctx context.Context, externalReference string) (model.PaymentRecord, error)
	GetPaymentByPreferenceID(ctx context.Context, preferenceID string) (model.PaymentRecord, error)
	GetPaymentForUpdate(ctx context.Context, tx pgx.Tx, recordID string) (model.PaymentRecord, error)
	ApplyPaymentStatus(ctx context.Context, tx pgx.Tx, recordID, newStatus, providerPaymentID string, raw json.RawMessage) (bool, error)
	RecordProviderPaymentID(ctx context.Context, tx pgx.Tx, recordID, providerPaymentID string) error
	HasApprovedPayment(ctx context.Context, tx pgx.Tx, appointmentID, excludeRecordID string) (bool, error)
	ConfirmAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (bool, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	LinkAppointment(ctx context.Context, tx pgx.Tx, recordID, appointmentID string) error
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)
	GetCredentials(ctx context.Context, adminID string) (storage.Credentials, error)
}

// EventSink records events inside the reconciliation transaction.
// *outbox.Repository satisfies it.
type EventSink interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Reconciler is the only component allowed to transition a payment record
// or to move an appointment out of tentative. Webhook pushes and client
// polls both converge here.
type Reconciler struct {
	repo       Store
	outboxRepo EventSink
	gateway    Gateway
	sealer     *seal.Sealer
	logger     *slog.Logger
}

func New(repo Store, outboxRepo EventSink, gateway Gateway, sealer *seal.Sealer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:       repo,
		outboxRepo: outboxRepo,
		gateway:    gateway,
		sealer:     sealer,
		logger:     logger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, ref Reference) (Result, error) {
	if ref.empty() {
		return Result{}, ErrReconciliationFailed
	}

	rec, err := r.resolveRecord(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	// A record that already reached a terminal status never changes again;
	// skip the provider round-trip and return the stored view.
	if model.IsTerminalPaymentStatus(rec.Status) {
		return r.buildResult(ctx, rec)
	}

	paymentID := ref.PaymentID
	if paymentID == "" {
		paymentID = rec.ProviderPaymentID
	}
	if paymentID == "" {
		// Redirect polls can arrive before the provider assigned a payment
		// id. Nothing to fetch yet; the record stays pending.
		return r.buildResult(ctx, rec)
	}

	token, err := r.adminToken(ctx, rec.AdminID)
	if err != nil {
		return Result{}, err
	}

	// The provider is the single source of truth. Local state is never
	// transitioned without this fetch, which also defends against forged
	// webhook payloads.
	payment, err := r.gateway.GetPayment(ctx, token, paymentID)
	if err != nil {
		if errors.Is(err, mercadopago.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: provider has no payment %s", ErrReconciliationFailed, paymentID)
		}
		return Result{}, err
	}
	if payment.ExternalReference != "" && payment.ExternalReference != rec.ExternalReference {
		r.logger.Warn("payment external reference mismatch",
			"payment_id", paymentID,
			"expected", rec.ExternalReference,
			"got", payment.ExternalReference,
		)
		return Result{}, fmt.Errorf("%w: external reference mismatch", ErrReconciliationFailed)
	}

	rec, err = r.apply(ctx, rec, payment)
	if err != nil {
		return Result{}, err
	}
	return r.buildResult(ctx, rec)
}

func (r *Reconciler) resolveRecord(ctx context.Context, ref Reference) (model.PaymentRecord, error) {
	lookups := []func() (model.PaymentRecord, error){}
	if ref.PaymentID != "" {
		lookups = append(lookups, func() (model.PaymentRecord, error) {
			return r.repo.GetPaymentByProviderPaymentID(ctx, ref.PaymentID)
		})
	}
	if ref.ExternalReference != "" {
		lookups = append(lookups, func() (model.PaymentRecord, error) {
			return r.repo.GetPaymentByExternalReference(ctx, ref.ExternalReference)
		})
	}
	if ref.PreferenceID != "" {
		lookups = append(lookups, func() (model.PaymentRecord, error) {
			return r.repo.GetPaymentByPreferenceID(ctx, ref.PreferenceID)
		})
	}

	for _, lookup := range lookups {
		rec, err := lookup()
		if err == nil {
			return rec, nil
		}
		if !storage.IsNotFound(err) {
			return model.PaymentRecord{}, err
		}
	}
	return model.PaymentRecord{}, ErrReconciliationFailed
}

func (r *Reconciler) adminToken(ctx context.Context, adminID string) (string, error) {
	creds, err := r.repo.GetCredentials(ctx, adminID)
	if err != nil {
		return "", fmt.Errorf("load credentials for admin %s: %w", adminID, err)
	}
	token, err := r.sealer.Open(creds.AccessTokenSealed)
	if err != nil {
		return "", fmt.Errorf("unseal access token for admin %s: %w", adminID, err)
	}
	return token, nil
}

// apply writes the provider-reported status through the compare-and-set
// update and, on approval, confirms or materializes the appointment. All
// writes share one transaction.
func (r *Reconciler) apply(ctx context.Context, rec model.PaymentRecord, payment mercadopago.Payment) (model.PaymentRecord, error) {
	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return model.PaymentRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := r.repo.GetPaymentForUpdate(ctx, tx, rec.ID)
	if err != nil {
		return model.PaymentRecord{}, err
	}

	next, applyNeeded := Transition(locked.Status, payment.Status)
	if !applyNeeded {
		// Either terminal already (a concurrent reconciliation won) or the
		// provider still reports pending. Record the payment id so later
		// webhooks resolve directly.
		if locked.Status == model.PaymentPending && locked.ProviderPaymentID == "" && payment.ID != "" {
			if err := r.repo.RecordProviderPaymentID(ctx, tx, locked.ID, payment.ID); err != nil {
				return model.PaymentRecord{}, err
			}
			locked.ProviderPaymentID = payment.ID
		}
		if err := tx.Commit(ctx); err != nil {
			return model.PaymentRecord{}, err
		}
		return locked, nil
	}

	applied, err := r.repo.ApplyPaymentStatus(ctx, tx, locked.ID, next, payment.ID, payment.Raw)
	if err != nil {
		return model.PaymentRecord{}, err
	}
	if !applied {
		// Unreachable while the row lock is held, but the compare-and-set
		// keeps the invariant even if callers bypass the lock.
		if err := tx.Commit(ctx); err != nil {
			return model.PaymentRecord{}, err
		}
		return locked, nil
	}
	locked.Status = next
	if locked.ProviderPaymentID == "" {
		locked.ProviderPaymentID = payment.ID
	}

	if next == model.PaymentApproved {
		duplicate := false
		if locked.AppointmentID != "" {
			duplicate, err = r.repo.HasApprovedPayment(ctx, tx, locked.AppointmentID, locked.ID)
			if err != nil {
				return model.PaymentRecord{}, err
			}
		}
		if duplicate {
			// Another record already settled this appointment. The charge is
			// real money, so the approval is recorded, but it must not
			// re-confirm anything; flag it for a refund instead.
			r.logger.Warn("duplicate approved payment for appointment",
				"payment_record_id", locked.ID,
				"appointment_id", locked.AppointmentID)
			if err := r.emitDuplicateApproval(ctx, tx, locked); err != nil {
				return model.PaymentRecord{}, err
			}
		} else if err := r.settleApproved(ctx, tx, &locked); err != nil {
			return model.PaymentRecord{}, err
		}
	}

	if err := r.emitPaymentEvent(ctx, tx, locked); err != nil {
		return model.PaymentRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.PaymentRecord{}, err
	}
	return locked, nil
}

// settleApproved confirms the linked tentative appointment, or materializes
// one from the stored draft when the preference was created before any
// appointment row existed.
func (r *Reconciler) settleApproved(ctx context.Context, tx pgx.Tx, rec *model.PaymentRecord) error {
	if rec.AppointmentID != "" {
		confirmed, err := r.repo.ConfirmAppointment(ctx, tx, rec.AppointmentID)
		if err != nil {
			return err
		}
		if !confirmed {
			r.logger.Info("appointment not tentative on approval; leaving as-is", "appointment_id", rec.AppointmentID)
		}
		return nil
	}

	if rec.AppointmentDraft == nil {
		r.logger.Warn("approved payment has no appointment and no draft", "payment_record_id", rec.ID, "external_reference", rec.ExternalReference)
		return nil
	}

	startsAt, err := time.Parse(time.RFC3339, rec.AppointmentDraft.StartsAt)
	if err != nil {
		return fmt.Errorf("invalid draft starts_at for record %s: %w", rec.ID, err)
	}
	appt := &model.Appointment{
		ID:            rec.ExternalReference,
		AdminID:       rec.AdminID,
		ClientName:    rec.AppointmentDraft.ClientName,
		ClientEmail:   rec.AppointmentDraft.ClientEmail,
		ClientPhone:   rec.AppointmentDraft.ClientPhone,
		Modality:      rec.AppointmentDraft.Modality,
		StartsAt:      startsAt,
		PriceCents:    rec.AmountCents,
		Currency:      rec.Currency,
		Status:        model.AppointmentConfirmed,
		PaymentStatus: model.PaymentStatusPaid,
	}
	if err := r.repo.CreateAppointment(ctx, tx, appt); err != nil {
		return err
	}
	if err := r.repo.LinkAppointment(ctx, tx, rec.ID, appt.ID); err != nil {
		return err
	}
	rec.AppointmentID = appt.ID
	return nil
}

func (r *Reconciler) emitPaymentEvent(ctx context.Context, tx pgx.Tx, rec model.PaymentRecord) error {
	payload, err := json.Marshal(map[string]any{
		"payment_record_id":   rec.ID,
		"admin_id":            rec.AdminID,
		"appointment_id":      rec.AppointmentID,
		"external_reference":  rec.ExternalReference,
		"provider_payment_id": rec.ProviderPaymentID,
		"amount_cents":        rec.AmountCents,
		"currency":            rec.Currency,
		"status":              rec.Status,
	})
	if err != nil {
		return err
	}
	return r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   rec.ID,
		EventType:     "payments.payment." + rec.Status + ".v1",
		Payload:       payload,
	})
}

// emitDuplicateApproval flags a second approved charge against an already
// settled appointment so downstream consumers can trigger a refund.
func (r *Reconciler) emitDuplicateApproval(ctx context.Context, tx pgx.Tx, rec model.PaymentRecord) error {
	payload, err := json.Marshal(map[string]any{
		"payment_record_id":   rec.ID,
		"admin_id":            rec.AdminID,
		"appointment_id":      rec.AppointmentID,
		"provider_payment_id": rec.ProviderPaymentID,
		"amount_cents":        rec.AmountCents,
		"currency":            rec.Currency,
		"refund_required":     true,
	})
	if err != nil {
		return err
	}
	return r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   rec.ID,
		EventType:     "payments.payment.duplicate_approval.v1",
		Payload:       payload,
	})
}

func (r *Reconciler) buildResult(ctx context.Context, rec model.PaymentRecord) (Result, error) {
	res := Result{PaymentStatus: rec.Status, Record: rec}
	if rec.AppointmentID == "" {
		return res, nil
	}
	appt, err := r.repo.GetAppointment(ctx, rec.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return res, nil
		}
		return Result{}, err
	}
	res.Appointment = &appt
	return res, nil
}
