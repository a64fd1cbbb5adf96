package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"netgiropay/internal/models"
	"netgiropay/internal/payment"
)

// OrderReader is the read side the admin API shows.
type OrderReader interface {
	FindOrder(ctx context.Context, id uint) (*models.Order, error)
	PaymentFlag(ctx context.Context, id uint) (models.PaymentFlag, error)
	Notes(ctx context.Context, id uint) ([]models.OrderNote, error)
}

// OrderHandler exposes the operator actions on Netgíró orders.
type OrderHandler struct {
	orders  OrderReader
	gateway *payment.Gateway
	logger  *zap.Logger
}

func NewOrderHandler(orders OrderReader, gw *payment.Gateway, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, gateway: gw, logger: logger}
}

// Get returns the order with its payment flag and notes.
// GET /api/orders/:id
func (h *OrderHandler) Get(c echo.Context) error {
	c.Set("api_actions", "order")
	id, ok := orderID(c)
	if !ok {
		return errorResponse(c, http.StatusBadRequest, "invalid_order_id", "Invalid order id", nil)
	}
	ctx := c.Request().Context()

	order, err := h.orders.FindOrder(ctx, id)
	if err != nil {
		return gatewayError(c, "order", err)
	}
	flag, err := h.orders.PaymentFlag(ctx, id)
	if err != nil {
		h.logger.Error("Failed to read payment flag", zap.Uint("order_id", id), zap.Error(err))
		return gatewayError(c, "order", err)
	}
	notes, err := h.orders.Notes(ctx, id)
	if err != nil {
		h.logger.Error("Failed to read order notes", zap.Uint("order_id", id), zap.Error(err))
		return gatewayError(c, "order", err)
	}

	return successResponse(c, "Successful", map[string]interface{}{
		"order":          order,
		"payment_status": flag.String(),
		"notes":          notes,
	})
}

// Confirm captures an authorized payment.
// POST /api/orders/:id/confirm
func (h *OrderHandler) Confirm(c echo.Context) error {
	c.Set("api_actions", "confirm")
	id, ok := orderID(c)
	if !ok {
		return errorResponse(c, http.StatusBadRequest, "invalid_order_id", "Invalid order id", nil)
	}

	res, err := h.gateway.ConfirmAuthorizedPayment(c.Request().Context(), id)
	if err != nil {
		h.logger.Warn("Netgíró confirm failed", zap.Uint("order_id", id), zap.Error(err))
		return gatewayError(c, "confirm", err)
	}
	return successResponse(c, res.Message, resultObj(res))
}

// Refund refunds part or all of a payment.
// POST /api/orders/:id/refund
func (h *OrderHandler) Refund(c echo.Context) error {
	c.Set("api_actions", "refund")
	id, ok := orderID(c)
	if !ok {
		return errorResponse(c, http.StatusBadRequest, "invalid_order_id", "Invalid order id", nil)
	}
	var req models.RefundRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid_request", "Invalid request body", nil)
	}

	res, err := h.gateway.Refund(c.Request().Context(), id, req.Amount, req.Reason)
	if err != nil {
		h.logger.Warn("Netgíró refund failed", zap.Uint("order_id", id), zap.Error(err))
		return gatewayError(c, "refund", err)
	}
	return successResponse(c, res.Message, resultObj(res))
}

// Status asks Netgíró for the transaction state and records it as a note.
// GET /api/orders/:id/netgiro-status
func (h *OrderHandler) Status(c echo.Context) error {
	c.Set("api_actions", "netgiro-status")
	id, ok := orderID(c)
	if !ok {
		return errorResponse(c, http.StatusBadRequest, "invalid_order_id", "Invalid order id", nil)
	}

	res, err := h.gateway.CheckStatus(c.Request().Context(), id)
	if err != nil {
		return gatewayError(c, "status", err)
	}
	return successResponse(c, res.Message, resultObj(res))
}

// ChangeStatus moves the order to a new status.
// POST /api/orders/:id/status
func (h *OrderHandler) ChangeStatus(c echo.Context) error {
	c.Set("api_actions", "status")
	id, ok := orderID(c)
	if !ok {
		return errorResponse(c, http.StatusBadRequest, "invalid_order_id", "Invalid order id", nil)
	}
	var req models.StatusChangeRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid_request", "Invalid request body", nil)
	}
	if !req.Status.Valid() {
		return errorResponse(c, http.StatusBadRequest, "invalid_status", "Unknown order status", nil)
	}

	change, err := h.gateway.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		h.logger.Error("Failed to change order status", zap.Uint("order_id", id), zap.Error(err))
		return gatewayError(c, "status", err)
	}
	msg := "Order status updated"
	if change.ConfirmError != "" {
		msg = "Order status updated, Netgíró confirmation failed"
	}
	return successResponse(c, msg, change)
}
