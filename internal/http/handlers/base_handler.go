// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps typed application errors onto status codes. Anything
// unrecognised is a 500 whose message never reaches the client.
func writeAppError(c *gin.Context, err error) {
	var (
		ve apperr.ValidationError
		re apperr.RoutingError
		ce apperr.CapacityConflictError
		vo apperr.VoucherError
		nf apperr.NotFoundError
		cf apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(c, http.StatusBadRequest, errorResponse{
			Error: ve.Error(), Code: "validation_error",
			Details: map[string]any{"field": ve.Field},
		})
	case errors.As(err, &re):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			Error: "could not calculate a route between the given locations", Code: "routing_error",
		})
	case errors.As(err, &ce):
		writeJSON(c, http.StatusConflict, errorResponse{
			Error: "no driver is available for the requested slot", Code: "capacity_conflict",
			Details: map[string]any{"date": ce.Date, "time": ce.Time},
		})
	case errors.As(err, &vo):
		writeJSON(c, http.StatusBadRequest, errorResponse{
			Error: vo.Error(), Code: "voucher_invalid",
			Details: map[string]any{"reason": vo.Reason},
		})
	case errors.As(err, &nf):
		writeJSON(c, http.StatusNotFound, errorResponse{Error: nf.Error(), Code: "not_found"})
	case errors.As(err, &cf):
		writeJSON(c, http.StatusConflict, errorResponse{Error: cf.Error(), Code: "conflict"})
	default:
		_ = c.Error(err)
		writeJSON(c, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal_error"})
	}
}

// bindJSON decodes the body and answers 400 itself on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "invalid_body"})
		return false
	}
	return true
}

// pathID reads a UUID path parameter and answers 400 itself when malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{
			Error: "invalid " + name, Code: "validation_error",
			Details: map[string]any{"field": name},
		})
		return "", false
	}
	return types.ID(raw), true
}
