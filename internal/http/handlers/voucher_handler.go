// README: Voucher handlers: public quote and admin CRUD.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/voucher"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type VoucherService interface {
	Quote(ctx context.Context, code string, preVAT types.Money, vatPct float64) (voucher.Quote, error)
	Create(ctx context.Context, cmd voucher.CreateCommand) (*voucher.Voucher, error)
	Get(ctx context.Context, id types.ID) (*voucher.Voucher, error)
	List(ctx context.Context) ([]voucher.Voucher, error)
	Update(ctx context.Context, id types.ID, cmd voucher.UpdateCommand) (*voucher.Voucher, error)
	Delete(ctx context.Context, id types.ID) error
}

type VoucherHandler struct {
	svc     VoucherService
	vatRate float64
}

func NewVoucherHandler(svc VoucherService, vatRate float64) *VoucherHandler {
	return &VoucherHandler{svc: svc, vatRate: vatRate}
}

type validateVoucherRequest struct {
	Code string `json:"code"`
	// BookingValue is the pre-VAT amount in euros.
	BookingValue *types.Money `json:"booking_value"`
}

func (h *VoucherHandler) Validate(c *gin.Context) {
	var req validateVoucherRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BookingValue == nil || req.BookingValue.Amount < 0 {
		writeAppError(c, apperr.Validation("booking_value", "must be a non-negative amount"))
		return
	}
	q, err := h.svc.Quote(c.Request.Context(), req.Code, *req.BookingValue, h.vatRate)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *VoucherHandler) Create(c *gin.Context) {
	var cmd voucher.CreateCommand
	if !bindJSON(c, &cmd) {
		return
	}
	v, err := h.svc.Create(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, v)
}

func (h *VoucherHandler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	if out == nil {
		out = []voucher.Voucher{}
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *VoucherHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *VoucherHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var cmd voucher.UpdateCommand
	if !bindJSON(c, &cmd) {
		return
	}
	v, err := h.svc.Update(c.Request.Context(), id, cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *VoucherHandler) Delete(c *gin.Context) {
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
