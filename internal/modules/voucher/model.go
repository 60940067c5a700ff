// README: Voucher aggregate, admin commands and the usability/discount rules.
package voucher

import (
	"strings"
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

const dateLayout = "2006-01-02"

// Reasons a voucher cannot be used. They are returned inside apperr.VoucherError.
const (
	ReasonEmptyCode    = "code is required"
	ReasonNotFound     = "not found"
	ReasonInactive     = "inactive"
	ReasonExpired      = "expired"
	ReasonExhausted    = "usage limit reached"
	ReasonBelowMinimum = "booking value below voucher minimum"
)

type Voucher struct {
	ID              types.ID     `json:"id"`
	Code            string       `json:"code"`
	Description     *string      `json:"description,omitempty"`
	DiscountType    DiscountType `json:"discount_type"`
	DiscountValue   float64      `json:"discount_value"`
	ExpirationDate  *time.Time   `json:"expiration_date,omitempty"`
	MaxUses         int          `json:"max_uses"`
	CurrentUses     int          `json:"current_uses"`
	MinBookingValue *types.Money `json:"min_booking_value,omitempty"`
	IsActive        bool         `json:"is_active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// NormalizeCode trims and upper-cases a code; codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckUsable applies the redemption rules against a candidate pre-VAT amount
// on the calendar day of now, read in now's location.
func (v *Voucher) CheckUsable(preVAT types.Money, now time.Time) error {
	switch {
	case !v.IsActive:
		return v.reject(ReasonInactive)
	case v.ExpirationDate != nil && dayOf(*v.ExpirationDate).Before(dayOf(now)):
		return v.reject(ReasonExpired)
	case v.MaxUses > 0 && v.CurrentUses >= v.MaxUses:
		return v.reject(ReasonExhausted)
	case v.MinBookingValue != nil && preVAT.Amount < v.MinBookingValue.Amount:
		return v.reject(ReasonBelowMinimum)
	}
	return nil
}

// Apply returns the discounted pre-VAT amount and the discount granted.
// The discount never exceeds preVAT.
func (v *Voucher) Apply(preVAT types.Money) (types.Money, types.Money) {
	var discount types.Money
	switch v.DiscountType {
	case DiscountPercentage:
		discount = preVAT.Percent(v.DiscountValue)
	case DiscountFixedAmount:
		discount = types.FromFloat(v.DiscountValue)
	default:
		discount = types.Cents(0)
	}
	if discount.Amount > preVAT.Amount {
		discount.Amount = preVAT.Amount
	}
	if discount.Amount < 0 {
		discount.Amount = 0
	}
	return preVAT.Sub(discount), types.Cents(discount.Amount)
}

func (v *Voucher) reject(reason string) error {
	return apperr.VoucherError{Code: v.Code, Reason: reason}
}

// dayOf drops the clock so dates compare by calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateCommand is the admin payload for a new voucher.
type CreateCommand struct {
	Code            string   `json:"code"`
	Description     *string  `json:"description"`
	DiscountType    string   `json:"discount_type"`
	DiscountValue   float64  `json:"discount_value"`
	ExpirationDate  *string  `json:"expiration_date"`
	MaxUses         *int     `json:"max_uses"`
	MinBookingValue *float64 `json:"min_booking_value"`
	IsActive        *bool    `json:"is_active"`
}

// Build validates the command and returns the voucher it describes.
func (c CreateCommand) Build() (*Voucher, error) {
	code := NormalizeCode(c.Code)
	if code == "" {
		return nil, apperr.Validation("code", "is required")
	}
	dt, err := parseDiscountType(c.DiscountType)
	if err != nil {
		return nil, err
	}
	if err := checkDiscountValue(dt, c.DiscountValue); err != nil {
		return nil, err
	}
	exp, err := parseExpiration(c.ExpirationDate)
	if err != nil {
		return nil, err
	}
	maxUses := 1
	if c.MaxUses != nil {
		maxUses = *c.MaxUses
	}
	if maxUses < 0 {
		return nil, apperr.Validation("max_uses", "must be 0 (unlimited) or more")
	}
	minValue, err := parseMinBookingValue(c.MinBookingValue)
	if err != nil {
		return nil, err
	}
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return &Voucher{
		Code:            code,
		Description:     trimmedOrNil(c.Description),
		DiscountType:    dt,
		DiscountValue:   c.DiscountValue,
		ExpirationDate:  exp,
		MaxUses:         maxUses,
		MinBookingValue: minValue,
		IsActive:        active,
	}, nil
}

// UpdateCommand edits an existing voucher. Nil fields are left unchanged. An
// empty ExpirationDate clears the expiry; ClearMinBookingValue drops the minimum.
type UpdateCommand struct {
	Code                 *string  `json:"code"`
	Description          *string  `json:"description"`
	DiscountType         *string  `json:"discount_type"`
	DiscountValue        *float64 `json:"discount_value"`
	ExpirationDate       *string  `json:"expiration_date"`
	MaxUses              *int     `json:"max_uses"`
	MinBookingValue      *float64 `json:"min_booking_value"`
	ClearMinBookingValue bool     `json:"clear_min_booking_value"`
	IsActive             *bool    `json:"is_active"`
}

// ApplyTo validates the command against v and mutates v in place.
func (c UpdateCommand) ApplyTo(v *Voucher) error {
	next := *v
	if c.Code != nil {
		next.Code = NormalizeCode(*c.Code)
		if next.Code == "" {
			return apperr.Validation("code", "is required")
		}
	}
	if c.Description != nil {
		next.Description = trimmedOrNil(c.Description)
	}
	if c.DiscountType != nil {
		dt, err := parseDiscountType(*c.DiscountType)
		if err != nil {
			return err
		}
		next.DiscountType = dt
	}
	if c.DiscountValue != nil {
		next.DiscountValue = *c.DiscountValue
	}
	if c.DiscountType != nil || c.DiscountValue != nil {
		if err := checkDiscountValue(next.DiscountType, next.DiscountValue); err != nil {
			return err
		}
	}
	if c.ExpirationDate != nil {
		exp, err := parseExpiration(c.ExpirationDate)
		if err != nil {
			return err
		}
		next.ExpirationDate = exp
	}
	if c.MaxUses != nil {
		if *c.MaxUses < 0 {
			return apperr.Validation("max_uses", "must be 0 (unlimited) or more")
		}
		next.MaxUses = *c.MaxUses
		if next.MaxUses > 0 && next.MaxUses < next.CurrentUses {
			return apperr.Validation("max_uses", "cannot be below current uses")
		}
	}
	if c.ClearMinBookingValue {
		next.MinBookingValue = nil
	} else if c.MinBookingValue != nil {
		m, err := parseMinBookingValue(c.MinBookingValue)
		if err != nil {
			return err
		}
		next.MinBookingValue = m
	}
	if c.IsActive != nil {
		next.IsActive = *c.IsActive
	}
	*v = next
	return nil
}

func parseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(strings.ToUpper(strings.TrimSpace(s))) {
	case DiscountPercentage:
		return DiscountPercentage, nil
	case DiscountFixedAmount:
		return DiscountFixedAmount, nil
	}
	return "", apperr.Validation("discount_type", "must be PERCENTAGE or FIXED_AMOUNT")
}

func checkDiscountValue(dt DiscountType, v float64) error {
	if v <= 0 {
		return apperr.Validation("discount_value", "must be greater than zero")
	}
	if dt == DiscountPercentage && v > 100 {
		return apperr.Validation("discount_value", "percentage cannot exceed 100")
	}
	return nil
}

func parseExpiration(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*s))
	if err != nil {
		return nil, apperr.Validation("expiration_date", "must be YYYY-MM-DD")
	}
	return &t, nil
}

func parseMinBookingValue(v *float64) (*types.Money, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 {
		return nil, apperr.Validation("min_booking_value", "cannot be negative")
	}
	m := types.FromFloat(*v)
	return &m, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
