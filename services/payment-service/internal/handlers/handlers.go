package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arenatime/arenatime/services/payment-service/internal/entitlements"
	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/model"
	"github.com/arenatime/arenatime/services/payment-service/internal/outbox"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
	"github.com/arenatime/arenatime/services/payment-service/internal/seal"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

// Reconciler is the single entry point that may transition payment state.
// Both the webhook and the client result endpoint go through it.
type Reconciler interface {
	Reconcile(ctx context.Context, ref reconcile.Reference) (reconcile.Result, error)
}

// Store is the storage surface the HTTP layer needs. *storage.Repository
// is the production implementation.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, adminID, appointmentID string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, tx pgx.Tx, adminID, appointmentID, reason string) (time.Time, error)
	ListAppointmentsByAdmin(ctx context.Context, adminID string, limit int) ([]model.Appointment, error)

	CreatePaymentRecord(ctx context.Context, tx pgx.Tx, rec *model.PaymentRecord) error
	GetPaymentByExternalReference(ctx context.Context, externalReference string) (model.PaymentRecord, error)
	GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (model.PaymentRecord, error)
	ListPaymentsByAdmin(ctx context.Context, adminID string, limit int) ([]model.PaymentRecord, error)

	InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt storage.ProviderEvent) error
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, adminID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, adminID, key, appointmentID string, statusCode int, response []byte) error

	UpsertCredentials(ctx context.Context, tx pgx.Tx, c storage.Credentials) error
	GetCredentials(ctx context.Context, adminID string) (storage.Credentials, error)
}

type Handler struct {
	repo         Store
	outboxRepo   *outbox.Repository
	reconciler   Reconciler
	mp           *mercadopago.Client
	sealer       *seal.Sealer
	entitlements entitlements.Provider
	logger       *slog.Logger

	publicBaseURL     string
	defaultSuccessURL string
	defaultFailureURL string
	defaultPendingURL string
}

type Config struct {
	PublicBaseURL     string
	DefaultSuccessURL string
	DefaultFailureURL string
	DefaultPendingURL string
}

func New(repo Store, outboxRepo *outbox.Repository, rec Reconciler, mp *mercadopago.Client, sealer *seal.Sealer, ent entitlements.Provider, logger *slog.Logger, cfg Config) *Handler {
	return &Handler{
		repo:              repo,
		outboxRepo:        outboxRepo,
		reconciler:        rec,
		mp:                mp,
		sealer:            sealer,
		entitlements:      ent,
		logger:            logger,
		publicBaseURL:     strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		defaultSuccessURL: strings.TrimSpace(cfg.DefaultSuccessURL),
		defaultFailureURL: strings.TrimSpace(cfg.DefaultFailureURL),
		defaultPendingURL: strings.TrimSpace(cfg.DefaultPendingURL),
	}
}

func adminID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Admin-Id"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
