// README: Voucher service implements validation, discount application, usage recording and admin CRUD.
package voucher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/clock"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

var (
	ErrNotFound  = errors.New("voucher not found")
	ErrCodeTaken = errors.New("voucher code already exists")
	ErrInUse     = errors.New("voucher has recorded usages")
	ErrExhausted = errors.New("voucher usage limit reached")
)

// ErrMaxUsesBelowUsage is returned by Save when usages recorded since the
// voucher was read exceed the new limit.
var ErrMaxUsesBelowUsage = errors.New("voucher max_uses below current uses")

type Repository interface {
	Create(ctx context.Context, v *Voucher) error
	Get(ctx context.Context, id types.ID) (*Voucher, error)
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	LockByCode(ctx context.Context, code string) (*Voucher, error)
	List(ctx context.Context) ([]Voucher, error)
	Save(ctx context.Context, v *Voucher) error
	Delete(ctx context.Context, id types.ID) error
	RecordUsage(ctx context.Context, v *Voucher, bookingID types.ID) (bool, error)
	InTx(ctx context.Context, fn func(Repository) error) error
}

type Service struct {
	store Repository
	clock clock.Clock
	loc   *time.Location
	log   *zap.Logger
}

// NewService builds the service. Expiry dates are compared against the
// calendar day in loc.
func NewService(store Repository, clk clock.Clock, loc *time.Location, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, clock: clk, loc: loc, log: log}
}

// Quote is the result of checking a code against a pre-VAT amount.
type Quote struct {
	Code                 string       `json:"code"`
	Description          *string      `json:"description,omitempty"`
	DiscountType         DiscountType `json:"discount_type"`
	DiscountValue        float64      `json:"discount_value"`
	OriginalBudgetPreVAT types.Money  `json:"original_budget_pre_vat"`
	DiscountAmount       types.Money  `json:"discount_amount"`
	FinalBudgetPreVAT    types.Money  `json:"final_budget_pre_vat"`
	VATPercentage        float64      `json:"vat_percentage"`
	VATAmount            types.Money  `json:"vat_amount"`
	TotalWithVAT         types.Money  `json:"total_with_vat"`
}

// Validate returns the voucher for code when it can be redeemed against preVAT.
// Rule failures are apperr.VoucherError.
func (s *Service) Validate(ctx context.Context, code string, preVAT types.Money) (*Voucher, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.VoucherError{Reason: ReasonEmptyCode}
	}
	v, err := s.store.FindByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.VoucherError{Code: code, Reason: ReasonNotFound, Err: err}
	}
	if err != nil {
		return nil, apperr.Persistence("find voucher", err)
	}
	if err := v.CheckUsable(preVAT, s.clock.Now().In(s.loc)); err != nil {
		return nil, err
	}
	return v, nil
}

// Apply is the pure discount computation; see Voucher.Apply.
func (s *Service) Apply(preVAT types.Money, v *Voucher) (types.Money, types.Money) {
	return v.Apply(preVAT)
}

// Quote validates code against preVAT and prices the discounted total.
func (s *Service) Quote(ctx context.Context, code string, preVAT types.Money, vatPct float64) (Quote, error) {
	v, err := s.Validate(ctx, code, preVAT)
	if err != nil {
		return Quote{}, err
	}
	final, discount := v.Apply(preVAT)
	vat := final.Percent(vatPct)
	return Quote{
		Code:                 v.Code,
		Description:          v.Description,
		DiscountType:         v.DiscountType,
		DiscountValue:        v.DiscountValue,
		OriginalBudgetPreVAT: types.Cents(preVAT.Amount),
		DiscountAmount:       discount,
		FinalBudgetPreVAT:    final,
		VATPercentage:        vatPct,
		VATAmount:            vat,
		TotalWithVAT:         final.Add(vat),
	}, nil
}

// RecordUsage marks code as used by bookingID. Repeating the call for the
// same booking is a no-op and reports false.
func (s *Service) RecordUsage(ctx context.Context, code string, bookingID types.ID) (bool, error) {
	var recorded bool
	err := s.store.InTx(ctx, func(tx Repository) error {
		v, err := tx.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		recorded, err = tx.RecordUsage(ctx, v, bookingID)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return false, apperr.VoucherError{Code: NormalizeCode(code), Reason: ReasonNotFound, Err: err}
	case errors.Is(err, ErrExhausted):
		return false, apperr.VoucherError{Code: NormalizeCode(code), Reason: ReasonExhausted, Err: err}
	case err != nil:
		return false, apperr.Persistence("record voucher usage", err)
	}
	if recorded {
		s.log.Info("voucher usage recorded", zap.String("voucher_code", NormalizeCode(code)), zap.String("booking_id", string(bookingID)))
	}
	return recorded, nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Voucher, error) {
	v, err := cmd.Build()
	if err != nil {
		return nil, err
	}
	v.ID = types.NewID()
	if err := s.store.Create(ctx, v); err != nil {
		return nil, mapStoreError(err, "create voucher")
	}
	s.log.Info("voucher created", zap.String("voucher_id", string(v.ID)), zap.String("voucher_code", v.Code))
	return v, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Voucher, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "get voucher")
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]Voucher, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Persistence("list vouchers", err)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id types.ID, cmd UpdateCommand) (*Voucher, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "get voucher")
	}
	if err := cmd.ApplyTo(v); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, v); err != nil {
		if errors.Is(err, ErrMaxUsesBelowUsage) {
			return nil, apperr.Validation("max_uses", "cannot be below current uses")
		}
		return nil, mapStoreError(err, "update voucher")
	}
	return v, nil
}

func (s *Service) Delete(ctx context.Context, id types.ID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mapStoreError(err, "delete voucher")
	}
	s.log.Info("voucher deleted", zap.String("voucher_id", string(id)))
	return nil
}

func mapStoreError(err error, op string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFoundError{Resource: "voucher", Err: err}
	case errors.Is(err, ErrCodeTaken):
		return apperr.ConflictError{Resource: "voucher", Msg: "code already exists", Err: err}
	case errors.Is(err, ErrInUse):
		return apperr.ConflictError{Resource: "voucher", Msg: "voucher has recorded usages", Err: err}
	}
	return apperr.Persistence(op, err)
}
