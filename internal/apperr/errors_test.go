package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"validation", Validation("passengers", "must be at least 1"), IsValidation},
		{"routing", RoutingError{Op: "geocode", Err: base}, IsRouting},
		{"capacity", CapacityConflictError{Date: "2025-06-01", Time: "10:00"}, IsCapacityConflict},
		{"voucher", VoucherError{Code: "X", Reason: "expired"}, IsVoucher},
		{"not found", NotFoundError{Resource: "booking"}, IsNotFound},
		{"conflict", ConflictError{Resource: "booking"}, IsConflict},
		{"persistence", Persistence("insert booking", base), IsPersistence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.True(t, tc.is(wrapped))
			assert.False(t, tc.is(base))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "passengers: must be at least 1", Validation("passengers", "must be at least 1").Error())
	assert.Equal(t, "booking not found", NotFoundError{Resource: "booking"}.Error())
	assert.Equal(t, "voucher SUMMER: expired", VoucherError{Code: "SUMMER", Reason: "expired"}.Error())
	assert.Nil(t, Persistence("noop", nil))
}

func TestUnwrapKeepsSentinel(t *testing.T) {
	sentinel := errors.New("no route")
	err := RoutingError{Op: "directions", Err: sentinel}
	assert.ErrorIs(t, err, sentinel)
}
