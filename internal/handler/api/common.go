package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"netgiropay/internal/models"
	"netgiropay/internal/payment"
)

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, status int, code, msg string, obj interface{}) error {
	return c.JSON(status, models.APIResponse{
		Status: false,
		Msg:    msg,
		Code:   code,
		Obj:    obj,
	})
}

// gatewayError maps a payment error of operation op to an HTTP answer.
func gatewayError(c echo.Context, op string, err error) error {
	var apiErr *payment.APIError
	switch {
	case errors.Is(err, payment.ErrOrderNotFound):
		return errorResponse(c, http.StatusNotFound, "order_not_found", "Order not found", nil)
	case errors.Is(err, payment.ErrInvalidTotal):
		return errorResponse(c, http.StatusBadRequest, "netgiro_"+op+"_invalid_amount", err.Error(), nil)
	case errors.Is(err, payment.ErrInvalidState), errors.Is(err, payment.ErrMissingTransactionID):
		return errorResponse(c, http.StatusConflict, "netgiro_"+op+"_invalid_state", err.Error(), nil)
	case errors.As(err, &apiErr):
		return errorResponse(c, http.StatusBadGateway, "netgiro_"+op+"_api_failed", apiErr.Error(), resultObj(apiErr.Result))
	default:
		return errorResponse(c, http.StatusInternalServerError, "internal_error", "Internal error", nil)
	}
}

func resultObj(res *payment.Result) interface{} {
	if res == nil {
		return nil
	}
	return map[string]interface{}{
		"success":     res.Success,
		"message":     res.Message,
		"status_code": res.StatusCode,
		"data":        res.Data,
	}
}

// orderID parses the :id path parameter.
func orderID(c echo.Context) (uint, bool) {
	return models.ParseOrderID(c.Param("id"))
}
