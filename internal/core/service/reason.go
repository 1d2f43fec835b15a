package service

import (
	"errors"

	"github.com/weewoocad/accounts/internal/api/metrics"
	"github.com/weewoocad/accounts/internal/core/domain"
)

// reason turns an operation outcome into a low-cardinality metric label.
func reason(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, domain.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, domain.ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, domain.ErrTokenMissing):
		return "token_missing"
	case errors.Is(err, domain.ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, domain.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		return "already_confirmed"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
