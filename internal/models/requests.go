package models

import "github.com/shopspring/decimal"

// APIResponse is the standard response format of the admin API.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Code   string      `json:"code,omitempty"`
	Obj    interface{} `json:"obj"`
}

// RefundRequest is the body of POST /api/orders/:id/refund.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// StatusChangeRequest is the body of POST /api/orders/:id/status.
type StatusChangeRequest struct {
	Status OrderStatus `json:"status"`
}
