// README: Booking HTTP handlers: customer admission, own bookings and admin management.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simaodiazz/curvas-humildes-server/internal/http/middleware"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/booking"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type BookingService interface {
	Admit(ctx context.Context, cmd booking.AdmitCommand) (*booking.Booking, error)
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	List(ctx context.Context, f booking.ListFilter) ([]booking.Booking, error)
	ListByUser(ctx context.Context, userID types.ID) ([]booking.Booking, error)
	UpdateStatus(ctx context.Context, id types.ID, status string, actor booking.Actor) (*booking.Booking, error)
	AssignDriver(ctx context.Context, id types.ID, driverID *types.ID, actor booking.Actor) (*booking.Booking, error)
	Delete(ctx context.Context, id types.ID) error
}

type BookingHandler struct {
	svc BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type createBookingRequest struct {
	PassengerName   string  `json:"passenger_name"`
	PassengerPhone  *string `json:"passenger_phone"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	PickupLocation  string  `json:"pickup_location"`
	DropoffLocation string  `json:"dropoff_location"`
	Passengers      int     `json:"passengers"`
	Bags            int     `json:"bags"`
	Instructions    *string `json:"instructions"`
	VoucherCode     string  `json:"voucher_code"`
}

type bookingResponse struct {
	ID                   types.ID       `json:"id"`
	UserID               *types.ID      `json:"user_id,omitempty"`
	PassengerName        string         `json:"passenger_name"`
	PassengerPhone       *string        `json:"passenger_phone,omitempty"`
	Date                 string         `json:"date"`
	Time                 string         `json:"time"`
	DurationMinutes      *int           `json:"duration_minutes,omitempty"`
	PickupLocation       string         `json:"pickup_location"`
	DropoffLocation      string         `json:"dropoff_location"`
	Passengers           int            `json:"passengers"`
	Bags                 int            `json:"bags"`
	Instructions         *string        `json:"instructions,omitempty"`
	OriginalBudgetPreVAT types.Money    `json:"original_budget_pre_vat"`
	DiscountAmount       types.Money    `json:"discount_amount"`
	FinalBudgetPreVAT    types.Money    `json:"final_budget_pre_vat"`
	VATPercentage        float64        `json:"vat_percentage"`
	VATAmount            types.Money    `json:"vat_amount"`
	TotalWithVAT         types.Money    `json:"total_with_vat"`
	AppliedVoucherCode   *string        `json:"applied_voucher_code,omitempty"`
	Status               booking.Status `json:"status"`
	AssignedDriverID     *types.ID      `json:"assigned_driver_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	return bookingResponse{
		ID:                   b.ID,
		UserID:               b.UserID,
		PassengerName:        b.PassengerName,
		PassengerPhone:       b.PassengerPhone,
		Date:                 booking.FormatDate(b.Date),
		Time:                 b.Time.String(),
		DurationMinutes:      b.DurationMinutes,
		PickupLocation:       b.Pickup,
		DropoffLocation:      b.Dropoff,
		Passengers:           b.Passengers,
		Bags:                 b.Bags,
		Instructions:         b.Instructions,
		OriginalBudgetPreVAT: b.OriginalBudget,
		DiscountAmount:       b.DiscountAmount,
		FinalBudgetPreVAT:    b.FinalBudget,
		VATPercentage:        b.VATPercentage,
		VATAmount:            b.VATAmount,
		TotalWithVAT:         b.TotalWithVAT,
		AppliedVoucherCode:   b.AppliedVoucher,
		Status:               b.Status,
		AssignedDriverID:     b.AssignedDriverID,
		CreatedAt:            b.CreatedAt,
	}
}

func toBookingResponses(in []booking.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(in))
	for i := range in {
		out = append(out, toBookingResponse(&in[i]))
	}
	return out
}

// Create admits a booking for the authenticated caller.
func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	b, err := h.svc.Admit(c.Request.Context(), booking.AdmitCommand{
		UserID:          &uid,
		PassengerName:   req.PassengerName,
		PassengerPhone:  req.PassengerPhone,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Pickup:          req.PickupLocation,
		Dropoff:         req.DropoffLocation,
		Passengers:      req.Passengers,
		Bags:            req.Bags,
		Instructions:    req.Instructions,
		VoucherCode:     req.VoucherCode,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Mine(c *gin.Context) {
	out, err := h.svc.ListByUser(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponses(out))
}

// List accepts optional date and status query filters.
func (h *BookingHandler) List(c *gin.Context) {
	var f booking.ListFilter
	if v := c.Query("date"); v != "" {
		d, err := booking.ParseDate(v)
		if err != nil {
			writeAppError(c, err)
			return
		}
		f.Date = &d
	}
	if v := c.Query("status"); v != "" {
		st, err := booking.ParseStatus(v)
		if err != nil {
			writeAppError(c, err)
			return
		}
		f.Status = &st
	}
	if v := c.Query("user_id"); v != "" {
		uid := types.ID(v)
		f.UserID = &uid
	}
	out, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponses(out))
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status, adminActor(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

// assignRequest unassigns the driver when DriverID is null or empty.
type assignRequest struct {
	DriverID *string `json:"driver_id"`
}

func (h *BookingHandler) AssignDriver(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !bindJSON(c, &req) {
		return
	}
	var driverID *types.ID
	if req.DriverID != nil && *req.DriverID != "" {
		d := types.ID(*req.DriverID)
		driverID = &d
	}
	b, err := h.svc.AssignDriver(c.Request.Context(), id, driverID, adminActor(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func adminActor(c *gin.Context) booking.Actor {
	a := booking.Actor{Type: booking.ActorAdmin}
	if uid := middleware.CallerUID(c); uid != "" {
		id := types.ID(uid)
		a.ID = &id
	}
	return a
}
