// README: HTTP route registration.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/simaodiazz/curvas-humildes-server/internal/http/handlers"
	"github.com/simaodiazz/curvas-humildes-server/internal/http/middleware"
)

const roleAdmin = "admin"

func (s *Server) registerAPI(api *gin.RouterGroup) {
	fares := handlers.NewFareHandler(s.deps.Fares)
	bookings := handlers.NewBookingHandler(s.deps.Bookings)
	vouchers := handlers.NewVoucherHandler(s.deps.Vouchers, s.deps.VATRate)
	tariffs := handlers.NewTariffHandler(s.deps.Tariffs)

	api.POST("/fares/estimate", append(s.limited(), fares.Estimate)...)
	api.POST("/availability", fares.Availability)
	api.POST("/vouchers/validate", vouchers.Validate)

	authed := api.Group("", middleware.Auth(s.deps.Verifier))
	authed.POST("/bookings", append(s.limited(), bookings.Create)...)
	authed.GET("/bookings/mine", bookings.Mine)

	admin := api.Group("/admin", middleware.Auth(s.deps.Verifier), middleware.RequireRole(roleAdmin))
	admin.GET("/tariffs", tariffs.Get)
	admin.PUT("/tariffs", tariffs.Update)

	admin.GET("/bookings", bookings.List)
	admin.GET("/bookings/:id", bookings.Get)
	admin.PATCH("/bookings/:id/status", bookings.UpdateStatus)
	admin.PATCH("/bookings/:id/assign", bookings.AssignDriver)
	admin.DELETE("/bookings/:id", bookings.Delete)

	admin.POST("/vouchers", vouchers.Create)
	admin.GET("/vouchers", vouchers.List)
	admin.GET("/vouchers/:id", vouchers.Get)
	admin.PATCH("/vouchers/:id", vouchers.Update)
	admin.DELETE("/vouchers/:id", vouchers.Delete)
}
