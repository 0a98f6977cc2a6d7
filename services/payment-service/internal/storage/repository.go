package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/arenatime/arenatime/libs/db"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// --- appointments ---

func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, admin_id, client_name, client_email, client_phone, modality, starts_at, price_cents, currency, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, appt.ID, appt.AdminID, appt.ClientName, appt.ClientEmail, appt.ClientPhone, appt.Modality,
		appt.StartsAt, appt.PriceCents, appt.Currency, appt.Status, appt.PaymentStatus)
	return err
}

const appointmentColumns = `
	id::text, admin_id::text, client_name, client_email, client_phone, modality,
	starts_at, price_cents, currency, status, payment_status,
	cancelled_at, COALESCE(cancellation_reason, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.AdminID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.Modality,
		&appt.StartsAt,
		&appt.PriceCents,
		&appt.Currency,
		&appt.Status,
		&appt.PaymentStatus,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *Repository) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID))
}

func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, adminID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND admin_id = $2
		FOR UPDATE
	`, appointmentID, adminID))
}

// ConfirmAppointment moves a tentative appointment to confirmed/paid. The
// WHERE clause is the compare-and-set: a concurrent reconciliation that
// already confirmed the row makes this a no-op rather than a double win.
func (r *Repository) ConfirmAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
			payment_status = 'paid',
			updated_at = now()
		WHERE id = $1 AND status = 'tentative'
	`, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CancelAppointment(ctx context.Context, tx pgx.Tx, adminID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3,
			updated_at = now()
		WHERE id = $1 AND admin_id = $2
		RETURNING cancelled_at
	`, appointmentID, adminID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *Repository) ListAppointmentsByAdmin(ctx context.Context, adminID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE admin_id = $1
		ORDER BY starts_at DESC
		LIMIT $2
	`, adminID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// ExpireTentativeAppointments cancels tentative appointments created before
// the cutoff that never gathered an approved payment. Conditional so a
// concurrent approval wins over the sweep.
func (r *Repository) ExpireTentativeAppointments(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments a
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = 'payment not completed',
			updated_at = now()
		WHERE a.id IN (
			SELECT id FROM appointments
			WHERE status = 'tentative' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND NOT EXISTS (
			SELECT 1 FROM payment_records p
			WHERE p.appointment_id = a.id AND p.status = 'approved'
		)
		RETURNING a.id::text
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AgeOverdueAppointments moves confirmed, unpaid appointments whose start
// time has passed into awaiting_settlement.
func (r *Repository) AgeOverdueAppointments(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'awaiting_settlement',
			updated_at = now()
		WHERE id IN (
			SELECT id FROM appointments
			WHERE status = 'confirmed' AND payment_status = 'unpaid' AND starts_at < $1
			ORDER BY starts_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// --- payment records ---

const paymentColumns = `
	id::text, COALESCE(appointment_id::text, ''), admin_id::text, external_reference,
	provider, COALESCE(preference_id, ''), COALESCE(provider_payment_id, ''),
	amount_cents, currency, status, appointment_draft, created_at, updated_at`

func scanPaymentRecord(row pgx.Row) (model.PaymentRecord, error) {
	var rec model.PaymentRecord
	var draft []byte
	err := row.Scan(
		&rec.ID,
		&rec.AppointmentID,
		&rec.AdminID,
		&rec.ExternalReference,
		&rec.Provider,
		&rec.PreferenceID,
		&rec.ProviderPaymentID,
		&rec.AmountCents,
		&rec.Currency,
		&rec.Status,
		&draft,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return model.PaymentRecord{}, err
	}
	if len(draft) > 0 {
		var d model.AppointmentDraft
		if err := json.Unmarshal(draft, &d); err == nil {
			rec.AppointmentDraft = &d
		}
	}
	return rec, nil
}

func (r *Repository) CreatePaymentRecord(ctx context.Context, tx pgx.Tx, rec *model.PaymentRecord) error {
	var draft any
	if rec.AppointmentDraft != nil {
		encoded, err := json.Marshal(rec.AppointmentDraft)
		if err != nil {
			return err
		}
		draft = encoded
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_records
			(id, appointment_id, admin_id, external_reference, provider, preference_id, amount_cents, currency, status, appointment_draft)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
	`, rec.ID, rec.AppointmentID, rec.AdminID, rec.ExternalReference, rec.Provider, rec.PreferenceID,
		rec.AmountCents, rec.Currency, rec.Status, draft)
	return err
}

func (r *Repository) GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (model.PaymentRecord, error) {
	return scanPaymentRecord(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE provider_payment_id = $1
	`, providerPaymentID))
}

func (r *Repository) GetPaymentByExternalReference(ctx context.Context, externalReference string) (model.PaymentRecord, error) {
	return scanPaymentRecord(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE external_reference = $1
	`, externalReference))
}

func (r *Repository) GetPaymentByPreferenceID(ctx context.Context, preferenceID string) (model.PaymentRecord, error) {
	return scanPaymentRecord(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE preference_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, preferenceID))
}

func (r *Repository) GetPaymentForUpdate(ctx context.Context, tx pgx.Tx, recordID string) (model.PaymentRecord, error) {
	return scanPaymentRecord(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE id = $1
		FOR UPDATE
	`, recordID))
}

// ApplyPaymentStatus is the compare-and-set transition write: only a pending
// record can move, so two concurrent reconciliations can never produce two
// different terminal statuses for the same record. Returns false when the
// row was no longer pending (a no-op replay or a lost race).
func (r *Repository) ApplyPaymentStatus(ctx context.Context, tx pgx.Tx, recordID, newStatus, providerPaymentID string, raw json.RawMessage) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_records
		SET status = $2,
			provider_payment_id = COALESCE(provider_payment_id, NULLIF($3, '')),
			raw_payload = COALESCE($4, raw_payload),
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, recordID, newStatus, providerPaymentID, []byte(raw))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// HasApprovedPayment reports whether another record already settled the
// appointment. Checked under the reconciliation row lock before a second
// approval is allowed to confirm anything.
func (r *Repository) HasApprovedPayment(ctx context.Context, tx pgx.Tx, appointmentID, excludeRecordID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_records
			WHERE appointment_id = $1 AND status = 'approved' AND id <> $2
		)
	`, appointmentID, excludeRecordID).Scan(&exists)
	return exists, err
}

// RecordProviderPaymentID stores the provider payment id on a still-pending
// record without changing status (pending -> pending refresh).
func (r *Repository) RecordProviderPaymentID(ctx context.Context, tx pgx.Tx, recordID, providerPaymentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_records
		SET provider_payment_id = COALESCE(provider_payment_id, NULLIF($2, '')),
			updated_at = now()
		WHERE id = $1
	`, recordID, providerPaymentID)
	return err
}

// LinkAppointment attaches a late-materialized appointment to its record.
func (r *Repository) LinkAppointment(ctx context.Context, tx pgx.Tx, recordID, appointmentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_records
		SET appointment_id = $2,
			updated_at = now()
		WHERE id = $1
	`, recordID, appointmentID)
	return err
}

func (r *Repository) ListPaymentsByAdmin(ctx context.Context, adminID string, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE admin_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, adminID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.PaymentRecord
	for rows.Next() {
		rec, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

// --- provider events (webhook replay guard) ---

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

// --- idempotency keys (direct booking) ---

type IdempotencyRecord struct {
	AdminID         string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func (r *Repository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, adminID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, adminID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_idempotency_keys (admin_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (admin_id, idempotency_key) DO NOTHING
	`, adminID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, adminID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *Repository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, adminID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointment_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE admin_id = $1 AND idempotency_key = $2
	`, adminID, key, appointmentID, statusCode, response)
	return err
}

func (r *Repository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, adminID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT admin_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM appointment_idempotency_keys
		WHERE admin_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, adminID, key).Scan(
		&rec.AdminID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
