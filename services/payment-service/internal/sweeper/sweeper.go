package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/arenatime/arenatime/libs/db"
	"github.com/arenatime/arenatime/services/payment-service/internal/outbox"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
)

// Sweeper ages appointment lifecycle state in the background: tentative
// appointments whose payment never resolved are cancelled after a TTL, and
// confirmed-but-unpaid appointments past their start move to
// awaiting_settlement.
type Sweeper struct {
	pool         *db.Pool
	repo         *storage.Repository
	outboxRepo   *outbox.Repository
	logger       *slog.Logger
	tentativeTTL time.Duration
	batchSize    int
	advisoryKey  int64
}

type Config struct {
	TentativeTTL    time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

func New(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Sweeper {
	ttl := cfg.TentativeTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 100
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		// Stable-ish default; override via env if you run multiple payment instances.
		lockKey = 7371002
	}
	return &Sweeper{
		pool:         pool,
		repo:         repo,
		outboxRepo:   outboxRepo,
		logger:       logger,
		tentativeTTL: ttl,
		batchSize:    bs,
		advisoryKey:  lockKey,
	}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Best-effort leader election for multi-instance deployments.
	// Only the instance holding the advisory lock will sweep.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, s.advisoryKey).Scan(&locked); err != nil {
			s.logger.Error("sweeper: failed to acquire advisory lock", "err", err)
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}
		if !locked {
			s.logger.Info("sweeper: advisory lock held by another instance", "lock_key", s.advisoryKey)
			if !sleepCtx(ctx, 30*time.Second) {
				return
			}
			continue
		}
		s.logger.Info("sweeper: advisory lock acquired", "lock_key", s.advisoryKey)
		defer func() {
			_, _ = s.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, s.advisoryKey)
		}()
		break
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.repo.ExpireTentativeAppointments(ctx, TentativeCutoff(now, s.tentativeTTL), s.batchSize)
	if err != nil {
		s.logger.Error("sweeper: expire tentative failed", "err", err)
	} else if len(expired) > 0 {
		s.logger.Info("sweeper: expired tentative appointments", "count", len(expired))
		s.emit(ctx, expired, "payments.appointment.expired.v1")
	}

	aged, err := s.repo.AgeOverdueAppointments(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("sweeper: age overdue failed", "err", err)
	} else if len(aged) > 0 {
		s.logger.Info("sweeper: aged overdue appointments", "count", len(aged))
		s.emit(ctx, aged, "payments.appointment.awaiting_settlement.v1")
	}
}

func (s *Sweeper) emit(ctx context.Context, appointmentIDs []string, eventType string) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error("sweeper: db begin failed", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range appointmentIDs {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": id,
			"swept_at":       time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			s.logger.Error("sweeper: failed to build event payload", "err", err)
			return
		}
		if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   id,
			EventType:     eventType,
			Payload:       payload,
		}); err != nil {
			s.logger.Error("sweeper: outbox insert failed", "err", err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("sweeper: commit failed", "err", err)
	}
}

// sleepCtx waits for d or until ctx is cancelled, reporting whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// TentativeCutoff returns the created-before threshold for expiring
// tentative appointments.
func TentativeCutoff(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return now.Add(-ttl)
}
