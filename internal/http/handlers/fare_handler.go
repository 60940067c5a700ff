// README: Public fare estimation and slot availability handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simaodiazz/curvas-humildes-server/internal/modules/booking"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/pricing"
)

type FareService interface {
	EstimateFare(ctx context.Context, cmd booking.EstimateCommand) (pricing.FareBreakdown, error)
	CheckAvailability(ctx context.Context, q booking.AvailabilityQuery) (bool, error)
}

type FareHandler struct {
	svc FareService
}

func NewFareHandler(svc FareService) *FareHandler {
	return &FareHandler{svc: svc}
}

type estimateRequest struct {
	Passengers      int    `json:"passengers"`
	Bags            int    `json:"bags"`
	PickupLocation  string `json:"pickup_location"`
	DropoffLocation string `json:"dropoff_location"`
	Time            string `json:"time"`
}

func (h *FareHandler) Estimate(c *gin.Context) {
	var req estimateRequest
	if !bindJSON(c, &req) {
		return
	}
	fare, err := h.svc.EstimateFare(c.Request.Context(), booking.EstimateCommand{
		Passengers: req.Passengers,
		Bags:       req.Bags,
		Pickup:     req.PickupLocation,
		Dropoff:    req.DropoffLocation,
		Time:       req.Time,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fare)
}

type availabilityRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *FareHandler) Availability(c *gin.Context) {
	var req availabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	ok, err := h.svc.CheckAvailability(c.Request.Context(), booking.AvailabilityQuery{
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": ok})
}
