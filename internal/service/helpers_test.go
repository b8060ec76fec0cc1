package service_test

import (
	"errors"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
)

func asValidation(err error, target **appErrors.ValidationError) bool {
	return errors.As(err, target)
}

func intPtr(v int) *int { return &v }
