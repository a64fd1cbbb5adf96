package router

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"netgiropay/internal/handler"
	"netgiropay/internal/handler/api"
	"netgiropay/internal/middleware"
)

// Deps bundles what the routes need.
type Deps struct {
	Netgiro    *handler.NetgiroHandler
	Orders     *api.OrderHandler
	Guard      middleware.InFlightGuard
	GuardWait  time.Duration
	Gatherer   prometheus.Gatherer
	APIKey     string
	APIKeyHash string
	Logger     *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, d Deps) {
	// Global middleware
	e.Use(echomw.Recover())

	// Netgíró customer and provider entry points
	ng := e.Group("/netgiro")
	ng.GET("/pay/:orderID", d.Netgiro.PayPage)
	ng.GET("/return", d.Netgiro.Return)
	ng.POST("/return", d.Netgiro.Return)
	callbackGuard := middleware.CallbackGuard(d.Guard, handler.ReferenceFromRequest, d.GuardWait, d.Logger)
	ng.GET("/callback", d.Netgiro.Callback, callbackGuard)
	ng.POST("/callback", d.Netgiro.Callback, callbackGuard)

	// Admin API with auth + logging middleware
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.CORS())
	apiGroup.Use(middleware.APIAuth(d.APIKey, d.APIKeyHash))
	apiGroup.Use(middleware.APILogger(d.Logger))

	apiGroup.GET("/orders/:id", d.Orders.Get)
	apiGroup.POST("/orders/:id/confirm", d.Orders.Confirm)
	apiGroup.POST("/orders/:id/refund", d.Orders.Refund)
	apiGroup.GET("/orders/:id/netgiro-status", d.Orders.Status)
	apiGroup.POST("/orders/:id/status", d.Orders.ChangeStatus)

	// Metrics
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
