package voucher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/clock"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// memRepo is an in-memory Repository. InTx serializes callers the way a row
// lock would.
type memRepo struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	byID   map[types.ID]*Voucher
	usages map[types.ID]types.ID
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[types.ID]*Voucher{}, usages: map[types.ID]types.ID{}}
}

func (m *memRepo) Create(_ context.Context, v *Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Code == v.Code {
			return ErrCodeTaken
		}
	}
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	m.byID[v.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byID {
		if v.Code == NormalizeCode(code) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) LockByCode(ctx context.Context, code string) (*Voucher, error) {
	return m.FindByCode(ctx, code)
}

func (m *memRepo) List(context.Context) ([]Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Voucher, 0, len(m.byID))
	for _, v := range m.byID {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memRepo) Save(_ context.Context, v *Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[v.ID]
	if !ok {
		return ErrNotFound
	}
	v.CurrentUses = cur.CurrentUses
	if v.MaxUses > 0 && cur.CurrentUses > v.MaxUses {
		return ErrMaxUsesBelowUsage
	}
	cp := *v
	m.byID[v.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	for _, vid := range m.usages {
		if vid == id {
			return ErrInUse
		}
	}
	delete(m.byID, id)
	return nil
}

func (m *memRepo) RecordUsage(_ context.Context, v *Voucher, bookingID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usages[bookingID]; ok {
		return false, nil
	}
	cur := m.byID[v.ID]
	if cur.MaxUses > 0 && cur.CurrentUses >= cur.MaxUses {
		return false, ErrExhausted
	}
	m.usages[bookingID] = v.ID
	cur.CurrentUses++
	v.CurrentUses = cur.CurrentUses
	return true, nil
}

func (m *memRepo) InTx(_ context.Context, fn func(Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

var today = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewService(repo, clock.NewFakeClock(today), time.UTC, nil), repo
}

func ptr[T any](v T) *T { return &v }

func mustCreate(t *testing.T, svc *Service, cmd CreateCommand) *Voucher {
	t.Helper()
	v, err := svc.Create(context.Background(), cmd)
	require.NoError(t, err)
	return v
}

func TestValidateReasons(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	mustCreate(t, svc, CreateCommand{Code: "ok10", DiscountType: "percentage", DiscountValue: 10})
	mustCreate(t, svc, CreateCommand{Code: "OFF", DiscountType: "PERCENTAGE", DiscountValue: 10, IsActive: ptr(false)})
	mustCreate(t, svc, CreateCommand{Code: "OLD", DiscountType: "PERCENTAGE", DiscountValue: 10, ExpirationDate: ptr("2025-06-09")})
	mustCreate(t, svc, CreateCommand{Code: "TODAY", DiscountType: "PERCENTAGE", DiscountValue: 10, ExpirationDate: ptr("2025-06-10")})
	mustCreate(t, svc, CreateCommand{Code: "MIN50", DiscountType: "FIXED_AMOUNT", DiscountValue: 5, MinBookingValue: ptr(50.0)})
	used := mustCreate(t, svc, CreateCommand{Code: "ONCE", DiscountType: "FIXED_AMOUNT", DiscountValue: 5})
	repo.byID[used.ID].CurrentUses = 1
	unlimited := mustCreate(t, svc, CreateCommand{Code: "FOREVER", DiscountType: "FIXED_AMOUNT", DiscountValue: 5, MaxUses: ptr(0)})
	repo.byID[unlimited.ID].CurrentUses = 1000

	cases := []struct {
		code   string
		preVAT int64
		reason string
	}{
		{"  ok10 ", 3000, ""},
		{"", 3000, ReasonEmptyCode},
		{"NOPE", 3000, ReasonNotFound},
		{"OFF", 3000, ReasonInactive},
		{"OLD", 3000, ReasonExpired},
		{"TODAY", 3000, ""},
		{"MIN50", 4999, ReasonBelowMinimum},
		{"MIN50", 5000, ""},
		{"ONCE", 3000, ReasonExhausted},
		{"FOREVER", 3000, ""},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%d", tc.code, tc.preVAT), func(t *testing.T) {
			v, err := svc.Validate(ctx, tc.code, types.Cents(tc.preVAT))
			if tc.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, NormalizeCode(tc.code), v.Code)
				return
			}
			var ve apperr.VoucherError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.reason, ve.Reason)
		})
	}
}

func TestApply(t *testing.T) {
	pct := &Voucher{DiscountType: DiscountPercentage, DiscountValue: 15}
	final, discount := pct.Apply(types.Cents(2700))
	assert.Equal(t, int64(405), discount.Amount)
	assert.Equal(t, int64(2295), final.Amount)

	fixed := &Voucher{DiscountType: DiscountFixedAmount, DiscountValue: 50}
	final, discount = fixed.Apply(types.Cents(3000))
	assert.Equal(t, int64(3000), discount.Amount, "fixed discount is clamped to the budget")
	assert.Equal(t, int64(0), final.Amount)

	full := &Voucher{DiscountType: DiscountPercentage, DiscountValue: 100}
	final, discount = full.Apply(types.Cents(1234))
	assert.Equal(t, int64(1234), discount.Amount)
	assert.Equal(t, int64(0), final.Amount)
}

func TestQuote(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, CreateCommand{Code: "TEN", DiscountType: "FIXED_AMOUNT", DiscountValue: 3, Description: ptr(" summer ")})

	q, err := svc.Quote(context.Background(), "ten", types.Cents(3000), 23)
	require.NoError(t, err)
	assert.Equal(t, "TEN", q.Code)
	assert.Equal(t, "summer", *q.Description)
	assert.Equal(t, int64(300), q.DiscountAmount.Amount)
	assert.Equal(t, int64(2700), q.FinalBudgetPreVAT.Amount)
	assert.Equal(t, int64(621), q.VATAmount.Amount)
	assert.Equal(t, int64(3321), q.TotalWithVAT.Amount)
}

func TestRecordUsageIdempotentPerBooking(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	v := mustCreate(t, svc, CreateCommand{Code: "TWICE", DiscountType: "FIXED_AMOUNT", DiscountValue: 1, MaxUses: ptr(2)})

	ok, err := svc.RecordUsage(ctx, "twice", "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.RecordUsage(ctx, "TWICE", "b1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, repo.byID[v.ID].CurrentUses)

	_, err = svc.RecordUsage(ctx, "TWICE", "b2")
	require.NoError(t, err)
	_, err = svc.RecordUsage(ctx, "TWICE", "b3")
	var ve apperr.VoucherError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonExhausted, ve.Reason)
	assert.Equal(t, 2, repo.byID[v.ID].CurrentUses)
}

func TestRecordUsageConcurrentRespectsCap(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	v := mustCreate(t, svc, CreateCommand{Code: "RACE", DiscountType: "FIXED_AMOUNT", DiscountValue: 1, MaxUses: ptr(3)})

	const attempts = 12
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, _ := svc.RecordUsage(ctx, "RACE", types.ID(fmt.Sprintf("b%d", i)))
			results <- ok
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	recorded := 0
	for ok := range results {
		if ok {
			recorded++
		}
	}
	assert.Equal(t, 3, recorded)
	assert.Equal(t, 3, repo.byID[v.ID].CurrentUses)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []struct {
		name  string
		cmd   CreateCommand
		field string
	}{
		{"missing code", CreateCommand{DiscountType: "PERCENTAGE", DiscountValue: 5}, "code"},
		{"bad type", CreateCommand{Code: "A", DiscountType: "BOGO", DiscountValue: 5}, "discount_type"},
		{"zero value", CreateCommand{Code: "A", DiscountType: "FIXED_AMOUNT", DiscountValue: 0}, "discount_value"},
		{"percentage over 100", CreateCommand{Code: "A", DiscountType: "PERCENTAGE", DiscountValue: 101}, "discount_value"},
		{"bad date", CreateCommand{Code: "A", DiscountType: "PERCENTAGE", DiscountValue: 5, ExpirationDate: ptr("10/06/2025")}, "expiration_date"},
		{"negative uses", CreateCommand{Code: "A", DiscountType: "PERCENTAGE", DiscountValue: 5, MaxUses: ptr(-1)}, "max_uses"},
		{"negative minimum", CreateCommand{Code: "A", DiscountType: "PERCENTAGE", DiscountValue: 5, MinBookingValue: ptr(-1.0)}, "min_booking_value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.cmd)
			var ve apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestCreateDefaultsAndDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	v := mustCreate(t, svc, CreateCommand{Code: "welcome", DiscountType: "PERCENTAGE", DiscountValue: 10})
	assert.Equal(t, "WELCOME", v.Code)
	assert.Equal(t, 1, v.MaxUses)
	assert.True(t, v.IsActive)
	assert.NotEmpty(t, v.ID)

	_, err := svc.Create(ctx, CreateCommand{Code: "Welcome", DiscountType: "PERCENTAGE", DiscountValue: 10})
	assert.True(t, apperr.IsConflict(err))
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	v := mustCreate(t, svc, CreateCommand{Code: "EDIT", DiscountType: "PERCENTAGE", DiscountValue: 10, MinBookingValue: ptr(20.0)})

	updated, err := svc.Update(ctx, v.ID, UpdateCommand{
		DiscountType:         ptr("FIXED_AMOUNT"),
		DiscountValue:        ptr(150.0),
		ClearMinBookingValue: true,
		ExpirationDate:       ptr("2025-12-31"),
	})
	require.NoError(t, err)
	assert.Equal(t, DiscountFixedAmount, updated.DiscountType)
	assert.Equal(t, 150.0, updated.DiscountValue)
	assert.Nil(t, updated.MinBookingValue)
	require.NotNil(t, updated.ExpirationDate)
	assert.Equal(t, 2025, updated.ExpirationDate.Year())

	_, err = svc.Update(ctx, v.ID, UpdateCommand{DiscountType: ptr("PERCENTAGE")})
	assert.True(t, apperr.IsValidation(err), "150 is not a valid percentage")

	_, err = svc.Update(ctx, "missing", UpdateCommand{})
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.RecordUsage(ctx, "EDIT", "b1")
	require.NoError(t, err)
	assert.True(t, apperr.IsConflict(svc.Delete(ctx, v.ID)))

	other := mustCreate(t, svc, CreateCommand{Code: "GONE", DiscountType: "PERCENTAGE", DiscountValue: 10})
	require.NoError(t, svc.Delete(ctx, other.ID))
	_, err = svc.Get(ctx, other.ID)
	assert.True(t, apperr.IsNotFound(err))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestValidateExpiryUsesServiceTimezone(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)
	// 23:30 UTC on the 10th is already 00:30 on the 11th in Lisbon summer time.
	lateUTC := time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC)
	repo := newMemRepo()
	ctx := context.Background()

	inLisbon := NewService(repo, clock.NewFakeClock(lateUTC), lisbon, nil)
	mustCreate(t, inLisbon, CreateCommand{Code: "JUNE10", DiscountType: "PERCENTAGE", DiscountValue: 10, ExpirationDate: ptr("2025-06-10")})

	_, err = inLisbon.Validate(ctx, "JUNE10", types.Cents(3000))
	var ve apperr.VoucherError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonExpired, ve.Reason)

	inUTC := NewService(repo, clock.NewFakeClock(lateUTC), time.UTC, nil)
	_, err = inUTC.Validate(ctx, "JUNE10", types.Cents(3000))
	assert.NoError(t, err)
}

func TestUpdateRejectsMaxUsesBelowCurrentUses(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	v := mustCreate(t, svc, CreateCommand{Code: "BUSY", DiscountType: "FIXED_AMOUNT", DiscountValue: 1, MaxUses: ptr(10)})
	repo.byID[v.ID].CurrentUses = 5

	_, err := svc.Update(ctx, v.ID, UpdateCommand{MaxUses: ptr(1)})
	var ve apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "max_uses", ve.Field)
	assert.Equal(t, 10, repo.byID[v.ID].MaxUses)

	updated, err := svc.Update(ctx, v.ID, UpdateCommand{MaxUses: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.MaxUses)

	updated, err = svc.Update(ctx, v.ID, UpdateCommand{MaxUses: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.MaxUses, "0 means unlimited")
}

// staleRepo hands out vouchers with no recorded uses, as if usages landed
// after the read.
type staleRepo struct{ *memRepo }

func (r staleRepo) Get(ctx context.Context, id types.ID) (*Voucher, error) {
	v, err := r.memRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v.CurrentUses = 0
	return v, nil
}

func TestUpdateMaxUsesRacingUsages(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(staleRepo{repo}, clock.NewFakeClock(today), time.UTC, nil)
	v := mustCreate(t, svc, CreateCommand{Code: "LATE", DiscountType: "FIXED_AMOUNT", DiscountValue: 1, MaxUses: ptr(10)})
	repo.byID[v.ID].CurrentUses = 4

	_, err := svc.Update(ctx, v.ID, UpdateCommand{MaxUses: ptr(2)})
	var ve apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "max_uses", ve.Field)
	assert.Equal(t, 10, repo.byID[v.ID].MaxUses)
}
