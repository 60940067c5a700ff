// README: Admin tariff settings handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simaodiazz/curvas-humildes-server/internal/modules/tariff"
)

type TariffService interface {
	GetActive(ctx context.Context) (tariff.Settings, error)
	Update(ctx context.Context, cmd tariff.UpdateCommand) (tariff.Settings, error)
}

type TariffHandler struct {
	svc TariffService
}

func NewTariffHandler(svc TariffService) *TariffHandler {
	return &TariffHandler{svc: svc}
}

func (h *TariffHandler) Get(c *gin.Context) {
	s, err := h.svc.GetActive(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *TariffHandler) Update(c *gin.Context) {
	var cmd tariff.UpdateCommand
	if !bindJSON(c, &cmd) {
		return
	}
	s, err := h.svc.Update(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}
