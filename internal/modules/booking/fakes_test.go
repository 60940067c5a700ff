package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/modules/availability"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/driver"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/voucher"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// memDB backs every fake repository. InTx holds txMu for the whole call, which
// stands in for the day lock and the voucher row lock, and restores a snapshot
// when fn fails.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	bookings map[types.ID]Booking
	events   []Event
	drivers  map[types.ID]driver.Driver
	vouchers map[string]voucher.Voucher
	usages   map[types.ID]string

	failCreate error
}

func newMemDB() *memDB {
	return &memDB{
		bookings: map[types.ID]Booking{},
		drivers:  map[types.ID]driver.Driver{},
		vouchers: map[string]voucher.Voucher{},
		usages:   map[types.ID]string{},
	}
}

func (m *memDB) addDriver(id types.ID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id] = driver.Driver{ID: id, FirstName: string(id), IsActive: active}
}

func (m *memDB) addVoucher(v voucher.Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Code = voucher.NormalizeCode(v.Code)
	if v.ID == "" {
		v.ID = types.ID("v-" + v.Code)
	}
	m.vouchers[v.Code] = v
}

func (m *memDB) voucher(code string) voucher.Voucher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vouchers[code]
}

func (m *memDB) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *memDB) eventsFor(id types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.BookingID == id {
			out = append(out, e)
		}
	}
	return out
}

// store

func (m *memDB) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *memDB) Get(_ context.Context, id types.ID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memDB) List(_ context.Context, f ListFilter) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if f.UserID != nil && (b.UserID == nil || *b.UserID != *f.UserID) {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.Date != nil && !b.Date.Equal(*f.Date) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Time > out[j].Time
	})
	return out, nil
}

func (m *memDB) FindOccupying(_ context.Context, date time.Time, statuses []string) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Slot
	for _, b := range m.bookings {
		if !b.Date.Equal(date) {
			continue
		}
		for _, s := range statuses {
			if string(b.Status) == s {
				out = append(out, availability.Slot{BookingID: b.ID, Status: s, Start: b.Time, DurationMinutes: b.DurationMinutes})
				break
			}
		}
	}
	return out, nil
}

func (m *memDB) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	m.bookings[id] = b
	return true, nil
}

func (m *memDB) AssignDriver(_ context.Context, id types.ID, driverID *types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.AssignedDriverID = driverID
	b.Status = to
	b.StatusVersion++
	m.bookings[id] = b
	return true, nil
}

func (m *memDB) Delete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(m.bookings, id)
	delete(m.usages, id)
	return nil
}

func (m *memDB) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

// drivers

type memDrivers struct{ db *memDB }

func (d memDrivers) CountActive(context.Context) (int, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	n := 0
	for _, dr := range d.db.drivers {
		if dr.IsActive {
			n++
		}
	}
	return n, nil
}

func (d memDrivers) GetActive(_ context.Context, id types.ID) (*driver.Driver, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	dr, ok := d.db.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	if !dr.IsActive {
		return nil, driver.ErrInactive
	}
	return &dr, nil
}

// vouchers

type memVouchers struct {
	db  *memDB
	now func() time.Time
}

func (v memVouchers) LockByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	found, ok := v.db.vouchers[voucher.NormalizeCode(code)]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return &found, nil
}

func (v memVouchers) RecordUsage(_ context.Context, vo *voucher.Voucher, bookingID types.ID) (bool, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	if _, ok := v.db.usages[bookingID]; ok {
		return false, nil
	}
	cur := v.db.vouchers[vo.Code]
	if cur.MaxUses > 0 && cur.CurrentUses >= cur.MaxUses {
		return false, voucher.ErrExhausted
	}
	cur.CurrentUses++
	v.db.vouchers[vo.Code] = cur
	v.db.usages[bookingID] = vo.Code
	vo.CurrentUses = cur.CurrentUses
	return true, nil
}

// Validate mirrors voucher.Service.Validate without the transaction.
func (v memVouchers) Validate(ctx context.Context, code string, preVAT types.Money) (*voucher.Voucher, error) {
	found, err := v.LockByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := found.CheckUsable(preVAT, v.now()); err != nil {
		return nil, err
	}
	return found, nil
}

// unit of work

type memTx struct {
	db       *memDB
	vouchers memVouchers
}

func (t memTx) Bookings() Repository                     { return t.db }
func (t memTx) Drivers() DriverLookup                    { return memDrivers{db: t.db} }
func (t memTx) Vouchers() VoucherLocker                  { return t.vouchers }
func (t memTx) LockDay(context.Context, time.Time) error { return nil }

type memUoW struct {
	db       *memDB
	vouchers memVouchers
}

func (u memUoW) InTx(_ context.Context, fn func(Tx) error) error {
	u.db.txMu.Lock()
	defer u.db.txMu.Unlock()

	snap := u.db.snapshot()
	if err := fn(memTx{db: u.db, vouchers: u.vouchers}); err != nil {
		u.db.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	bookings map[types.ID]Booking
	events   []Event
	vouchers map[string]voucher.Voucher
	usages   map[types.ID]string
}

func (m *memDB) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		bookings: make(map[types.ID]Booking, len(m.bookings)),
		events:   append([]Event(nil), m.events...),
		vouchers: make(map[string]voucher.Voucher, len(m.vouchers)),
		usages:   make(map[types.ID]string, len(m.usages)),
	}
	for k, v := range m.bookings {
		s.bookings[k] = v
	}
	for k, v := range m.vouchers {
		s.vouchers[k] = v
	}
	for k, v := range m.usages {
		s.usages[k] = v
	}
	return s
}

func (m *memDB) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = s.bookings
	m.events = s.events
	m.vouchers = s.vouchers
	m.usages = s.usages
}
