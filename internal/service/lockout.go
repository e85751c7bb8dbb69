package service

import (
	"context"
	"time"

	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
)

// LockoutService counts failed sign-ins per identifier and locks the identifier
// for a fixed period once the configured maximum is reached.
type LockoutService struct {
	locks       repository.LockRepository
	maxAttempts int
	lockFor     time.Duration
}

func NewLockoutService(locks repository.LockRepository, maxAttempts int, lockFor time.Duration) *LockoutService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LockoutService{locks: locks, maxAttempts: maxAttempts, lockFor: lockFor}
}

func (s *LockoutService) IsLocked(ctx context.Context, identifier string) (bool, error) {
	locked, err := s.locks.IsUserLocked(ctx, identifier)
	if err != nil {
		return false, err
	}
	if locked {
		observability.RecordLockoutEvent(ctx, "blocked")
	}
	return locked, nil
}

// RegisterFailure reports whether this failure tipped the identifier into lockout.
func (s *LockoutService) RegisterFailure(ctx context.Context, identifier string) (bool, error) {
	count, err := s.locks.IncrementLockCounter(ctx, identifier, s.lockFor)
	if err != nil {
		return false, err
	}
	if count < s.maxAttempts {
		observability.RecordLockoutEvent(ctx, "failure_counted")
		return false, nil
	}
	if err := s.locks.LockUser(ctx, identifier, s.lockFor); err != nil {
		return false, err
	}
	if err := s.locks.ResetLockCounter(ctx, identifier); err != nil {
		return true, err
	}
	observability.RecordLockoutEvent(ctx, "locked")
	return true, nil
}

func (s *LockoutService) Reset(ctx context.Context, identifier string) error {
	return s.locks.ResetLockCounter(ctx, identifier)
}
