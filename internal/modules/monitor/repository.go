package monitor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("monitor: not found")

// Repository is the relational store behind the Monitor entity — the State
// Sink and the Scheduler's lease mechanism both go through it.
type Repository interface {
	// Create inserts m, or no-ops on a convex_url_id conflict. The
	// returned bool reports whether a new row was actually inserted.
	Create(ctx context.Context, m *Monitor) (*Monitor, bool, error)
	FindByID(ctx context.Context, id string) (*Monitor, error)
	FindByConvexURLID(ctx context.Context, convexURLID string) (*Monitor, error)
	SoftDelete(ctx context.Context, id string) error

	// SelectDue returns up to limit eligible monitors, ordered by
	// next_check_at ascending so the oldest-overdue row dequeues first.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*Monitor, error)

	// Lease atomically advances next_check_at and sets scheduler_locked_until
	// for a single row, re-checking eligibility in the WHERE clause so two
	// scheduler replicas racing the same row only have one winner. Reports
	// whether this call won the lease.
	Lease(ctx context.Context, id string, now time.Time, nextCheckAt, lockedUntil time.Time) (bool, error)

	// ApplyProbeOutcome is the State Sink: it updates the last-observation
	// cache, clears the lease, and increments/resets consecutive_failures
	// via a relative SQL expression so concurrent writers compose.
	ApplyProbeOutcome(ctx context.Context, id string, outcome *ProbeOutcome) error
}

type sqlModel struct {
	bun.BaseModel `bun:"table:monitored_links,alias:ml"`

	ID           string `bun:"id,pk"`
	ConvexURLID  string `bun:"convex_url_id,notnull,unique"`
	ConvexUserID string `bun:"convex_user_id,notnull"`
	LongURL      string `bun:"long_url,notnull"`
	ShortURL     string `bun:"short_url"`
	Environment  string `bun:"environment,notnull"`

	IntervalMs           int64      `bun:"interval_ms,notnull"`
	NextCheckAt          time.Time  `bun:"next_check_at,notnull"`
	SchedulerLockedUntil *time.Time `bun:"scheduler_locked_until"`
	IsActive             bool       `bun:"is_active,notnull"`

	CurrentStatus       string     `bun:"current_status,notnull"`
	LastCheckedAt       *time.Time `bun:"last_checked_at"`
	LastStatusCode      int        `bun:"last_status_code,notnull"`
	LastLatencyMs       int        `bun:"last_latency_ms,notnull"`
	ConsecutiveFailures int        `bun:"consecutive_failures,notnull"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toDomain(sm *sqlModel) *Monitor {
	return &Monitor{
		ID:                   sm.ID,
		ConvexURLID:          sm.ConvexURLID,
		ConvexUserID:         sm.ConvexUserID,
		LongURL:              sm.LongURL,
		ShortURL:             sm.ShortURL,
		Environment:          Environment(sm.Environment),
		IntervalMs:           sm.IntervalMs,
		NextCheckAt:          sm.NextCheckAt,
		SchedulerLockedUntil: sm.SchedulerLockedUntil,
		IsActive:             sm.IsActive,
		CurrentStatus:        Status(sm.CurrentStatus),
		LastCheckedAt:        sm.LastCheckedAt,
		LastStatusCode:       sm.LastStatusCode,
		LastLatencyMs:        sm.LastLatencyMs,
		ConsecutiveFailures:  sm.ConsecutiveFailures,
		CreatedAt:            sm.CreatedAt,
		UpdatedAt:            sm.UpdatedAt,
	}
}

func toSQLModel(m *Monitor) *sqlModel {
	return &sqlModel{
		ID:                   m.ID,
		ConvexURLID:          m.ConvexURLID,
		ConvexUserID:         m.ConvexUserID,
		LongURL:              m.LongURL,
		ShortURL:             m.ShortURL,
		Environment:          string(m.Environment),
		IntervalMs:           m.IntervalMs,
		NextCheckAt:          m.NextCheckAt,
		SchedulerLockedUntil: m.SchedulerLockedUntil,
		IsActive:             m.IsActive,
		CurrentStatus:        string(m.CurrentStatus),
		LastCheckedAt:        m.LastCheckedAt,
		LastStatusCode:       m.LastStatusCode,
		LastLatencyMs:        m.LastLatencyMs,
		ConsecutiveFailures:  m.ConsecutiveFailures,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

type sqlRepository struct {
	db *bun.DB
}

// NewSQLRepository builds the bun-backed Repository over monitored_links.
func NewSQLRepository(db *bun.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) Create(ctx context.Context, m *Monitor) (*Monitor, bool, error) {
	sm := toSQLModel(m)
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sm.CreatedAt = now
	sm.UpdatedAt = now

	res, err := r.db.NewInsert().
		Model(sm).
		On("CONFLICT (convex_url_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	return toDomain(sm), n > 0, nil
}

func (r *sqlRepository) FindByID(ctx context.Context, id string) (*Monitor, error) {
	sm := new(sqlModel)
	err := r.db.NewSelect().Model(sm).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(sm), nil
}

func (r *sqlRepository) FindByConvexURLID(ctx context.Context, convexURLID string) (*Monitor, error) {
	sm := new(sqlModel)
	err := r.db.NewSelect().Model(sm).Where("convex_url_id = ?", convexURLID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(sm), nil
}

func (r *sqlRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*sqlModel)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqlRepository) SelectDue(ctx context.Context, now time.Time, limit int) ([]*Monitor, error) {
	var sms []*sqlModel
	err := r.db.NewSelect().
		Model(&sms).
		Where("is_active = ?", true).
		Where("next_check_at <= ?", now).
		Where("scheduler_locked_until IS NULL OR scheduler_locked_until <= ?", now).
		OrderExpr("next_check_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	monitors := make([]*Monitor, 0, len(sms))
	for _, sm := range sms {
		monitors = append(monitors, toDomain(sm))
	}
	return monitors, nil
}

func (r *sqlRepository) Lease(ctx context.Context, id string, now time.Time, nextCheckAt, lockedUntil time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*sqlModel)(nil)).
		Set("next_check_at = ?", nextCheckAt).
		Set("scheduler_locked_until = ?", lockedUntil).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Where("next_check_at <= ?", now).
		Where("scheduler_locked_until IS NULL OR scheduler_locked_until <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqlRepository) ApplyProbeOutcome(ctx context.Context, id string, outcome *ProbeOutcome) error {
	q := r.db.NewUpdate().
		Model((*sqlModel)(nil)).
		Set("current_status = ?", string(outcome.HealthStatus)).
		Set("last_checked_at = ?", outcome.CheckedAt).
		Set("last_status_code = ?", outcome.StatusCode).
		Set("last_latency_ms = ?", outcome.LatencyMs).
		Set("scheduler_locked_until = NULL").
		Set("updated_at = ?", outcome.CheckedAt).
		Where("id = ?", id)

	if outcome.IsHealthy {
		q = q.Set("consecutive_failures = 0")
	} else {
		q = q.Set("consecutive_failures = consecutive_failures + 1")
	}

	_, err := q.Exec(ctx)
	return err
}
