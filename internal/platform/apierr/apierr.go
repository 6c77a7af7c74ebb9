package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromError maps domain and pipeline errors to an HTTP status and a stable code.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return New(http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, pkgerrors.ErrNoMistakes):
		return New(http.StatusUnprocessableEntity, "no_mistakes", err)
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		return New(http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, pkgerrors.ErrStorageUnavailable):
		return New(http.StatusServiceUnavailable, "storage_unavailable", err)
	}
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindMissingCredentials:
		return New(http.StatusPreconditionRequired, "api_key_missing", err)
	case pkgerrors.KindRecitation:
		return New(http.StatusUnprocessableEntity, "recitation_blocked", err)
	case pkgerrors.KindNormalizationFailed:
		return New(http.StatusUnprocessableEntity, "normalization_failed", err)
	case pkgerrors.KindTransient:
		return New(http.StatusBadGateway, "upstream_unavailable", err)
	}
	return New(http.StatusInternalServerError, "internal", err)
}
