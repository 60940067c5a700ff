// README: Fare request and breakdown types.
package pricing

import (
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type FareRequest struct {
	Passengers int
	Bags       int
	Pickup     string
	Dropoff    string
	TimeOfDay  types.TimeOfDay
}

// FareBreakdown is the priced quote. Money fields are frozen onto a booking
// when it is admitted.
type FareBreakdown struct {
	OriginalBudgetPreVAT  types.Money `json:"original_budget_pre_vat"`
	DiscountAmount        types.Money `json:"discount_amount"`
	FinalBudgetPreVAT     types.Money `json:"final_budget_pre_vat"`
	VATPercentage         float64     `json:"vat_percentage"`
	VATAmount             types.Money `json:"vat_amount"`
	TotalWithVAT          types.Money `json:"total_with_vat"`
	DurationMinutes       int         `json:"duration_minutes"`
	DistanceKm            float64     `json:"distance_km"`
	Predefined            bool        `json:"predefined_route"`
	NightSurchargeApplied bool        `json:"night_surcharge_applied"`
}

// ApplyVAT returns the VAT due on preVAT and the resulting total.
func ApplyVAT(preVAT types.Money, vatPct float64) (vat, total types.Money) {
	vat = preVAT.Percent(vatPct)
	return vat, preVAT.Add(vat)
}

// WithDiscount recomputes the final amounts after a discount. The discount is
// clamped to the original pre-VAT amount.
func (f FareBreakdown) WithDiscount(discount types.Money) FareBreakdown {
	if discount.Amount < 0 {
		discount.Amount = 0
	}
	if discount.Amount > f.OriginalBudgetPreVAT.Amount {
		discount.Amount = f.OriginalBudgetPreVAT.Amount
	}
	f.DiscountAmount = types.Cents(discount.Amount)
	f.FinalBudgetPreVAT = f.OriginalBudgetPreVAT.Sub(f.DiscountAmount)
	f.VATAmount, f.TotalWithVAT = ApplyVAT(f.FinalBudgetPreVAT, f.VATPercentage)
	return f
}
