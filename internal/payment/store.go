package payment

import (
	"context"
	"time"

	"netgiropay/internal/models"
)

// OrderStore is the persistence the payment flow runs against.
// FindOrder returns ErrOrderNotFound for unknown ids.
type OrderStore interface {
	FindOrder(ctx context.Context, id uint) (*models.Order, error)
	SetTransactionID(ctx context.Context, id uint, transactionID string) error
	UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error
	// PaymentComplete moves an unpaid order to processing and records the
	// transaction id and paid time.
	PaymentComplete(ctx context.Context, id uint, transactionID string) error
	AddNote(ctx context.Context, id uint, note string) error

	PaymentFlag(ctx context.Context, id uint) (models.PaymentFlag, error)
	SetPaymentFlag(ctx context.Context, id uint, flag models.PaymentFlag) error

	CallbackValidated(ctx context.Context, id uint) (bool, error)
	// MarkCallbackValidated sets the marker only if absent and reports
	// whether this call set it.
	MarkCallbackValidated(ctx context.Context, id uint, at time.Time) (bool, error)

	EmptyCart(ctx context.Context, id uint) error
	OrdersByFlag(ctx context.Context, flag models.PaymentFlag, limit int) ([]models.Order, error)

	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(OrderStore) error) error
}
