package library

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

// storageErr tags err as a storage failure, mapping gorm's not-found to ErrNotFound.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, pkgerrors.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, pkgerrors.ErrStorageUnavailable, err)
}
