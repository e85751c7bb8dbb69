package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/observability"

	"gorm.io/gorm"
)

// observe records the outcome of a datastore call and maps gorm's not-found error to notFound.
func observe(ctx context.Context, entity, op string, err error, notFound error) error {
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, entity, op, "success")
		return nil
	case notFound != nil && errors.Is(err, gorm.ErrRecordNotFound):
		observability.RecordRepositoryOperation(ctx, entity, op, "not_found")
		return notFound
	default:
		observability.RecordRepositoryOperation(ctx, entity, op, "error")
		return err
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
