package xerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, SuccessCode},
		{fmt.Errorf("bad alias: %w", ErrValidation), ValidationFailedCode},
		{Deny(ErrExhausted, "exhausted"), AccessDeniedCode},
		{Deny(ErrExpired, "expired"), AccessDeniedCode},
		{Deny(ErrForbidden, "ip_not_allowed"), AccessDeniedCode},
		{Deny(ErrAuthenticationFailure, "wrong_password"), AccessDeniedCode},
		{fmt.Errorf("lookup: %w", ErrNotFound), AccessDeniedCode},
		{Deny(ErrRateLimited, "ip_blocked"), RateLimitedCode},
		{Wrap(ErrInternalStore, errors.New("connection refused")), StoreUnavailableCode},
		{NewCodeError(LinkNotFoundCode, ErrNotFound), LinkNotFoundCode},
		{errors.New("boom"), InternalServerErrorCode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), fmt.Sprint(tt.err))
	}
}

func TestDenialError(t *testing.T) {
	err := fmt.Errorf("redeem: %w", Deny(ErrForbidden, "email_domain_not_allowed"))

	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "email_domain_not_allowed", ReasonOf(err))
	assert.True(t, IsDenial(err))
	assert.Equal(t, "error", ReasonOf(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := Wrap(ErrInternalStore, cause)

	assert.ErrorIs(t, err, ErrInternalStore)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(ErrInternalStore, nil))
}
