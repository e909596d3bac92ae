package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval is returned when a register request specifies an
// interval below the 1000ms floor.
var ErrInvalidInterval = errors.New("monitor: interval_ms must be >= 1000")

// MinIntervalMs is the floor enforced on every registered monitor.
const MinIntervalMs = 1000

// DefaultIntervalMs is used when a register request omits intervalMs.
const DefaultIntervalMs = 60000

// RegisterInput is the normalized request behind both the single and batch
// register endpoints.
type RegisterInput struct {
	ConvexURLID  string
	ConvexUserID string
	LongURL      string
	ShortURL     string
	IntervalMs   *int64
	Environment  *string
}

// RegisterResult reports whether a register call created a new row or hit
// the natural-key conflict.
type RegisterResult struct {
	Monitor           *Monitor
	AlreadyRegistered bool
}

// Service is the Monitor module's public surface, consumed by the Admin API
// and the Worker Pool.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	FindByID(ctx context.Context, id string) (*Monitor, error)
	FindByConvexURLID(ctx context.Context, convexURLID string) (*Monitor, error)
	SoftDelete(ctx context.Context, id string) error
}

type service struct {
	repo Repository
}

// NewService builds the Monitor module's service over its repository.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	intervalMs := int64(DefaultIntervalMs)
	if in.IntervalMs != nil {
		intervalMs = *in.IntervalMs
	}
	if intervalMs < MinIntervalMs {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalMs)
	}

	// The environment field must be present on every Job; the register
	// endpoint is where we fill it if the caller omitted it.
	env := EnvironmentProd
	if in.Environment != nil && Environment(*in.Environment) == EnvironmentDev {
		env = EnvironmentDev
	}

	now := time.Now().UTC()
	m := &Monitor{
		ConvexURLID:   in.ConvexURLID,
		ConvexUserID:  in.ConvexUserID,
		LongURL:       in.LongURL,
		ShortURL:      in.ShortURL,
		Environment:   env,
		IntervalMs:    intervalMs,
		NextCheckAt:   now,
		IsActive:      true,
		CurrentStatus: StatusPending,
	}

	created, inserted, err := s.repo.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	if !inserted {
		existing, err := s.repo.FindByConvexURLID(ctx, in.ConvexURLID)
		if err != nil {
			return nil, err
		}
		return &RegisterResult{Monitor: existing, AlreadyRegistered: true}, nil
	}

	return &RegisterResult{Monitor: created}, nil
}

func (s *service) FindByID(ctx context.Context, id string) (*Monitor, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) FindByConvexURLID(ctx context.Context, convexURLID string) (*Monitor, error) {
	return s.repo.FindByConvexURLID(ctx, convexURLID)
}

func (s *service) SoftDelete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}
