// README: Common money value object used across modules. Amounts are euro cents.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const CurrencyEUR = "EUR"

type Money struct {
	Amount   int64
	Currency string
}

// Cents builds a Money from a cent amount.
func Cents(n int64) Money {
	return Money{Amount: n, Currency: CurrencyEUR}
}

// FromFloat rounds a euro amount to the nearest cent, halves away from zero.
// The float is read through its shortest decimal form, so 2.675 is 2.68.
func FromFloat(v float64) Money {
	return FromDecimal(decimal.NewFromFloat(v))
}

// FromDecimal rounds a euro amount to the nearest cent, halves away from zero.
func FromDecimal(d decimal.Decimal) Money {
	return Cents(d.Round(2).Shift(2).IntPart())
}

// Decimal returns the amount in euros.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func (m Money) Float() float64 {
	return float64(m.Amount) / 100
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currency()}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.currency()}
}

// Percent returns pct percent of m rounded to the cent.
func (m Money) Percent(pct float64) Money {
	share := m.Decimal().Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return Money{Amount: FromDecimal(share).Amount, Currency: m.currency()}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) currency() string {
	if m.Currency == "" {
		return CurrencyEUR
	}
	return m.Currency
}

// MarshalJSON renders the amount as a decimal euro value.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Float())
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = FromFloat(v)
	return nil
}
