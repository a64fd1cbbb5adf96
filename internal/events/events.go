package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Payment lifecycle event types.
const (
	TypeAuthorized = "payment.authorized"
	TypeConfirmed  = "payment.confirmed"
	TypeCancelled  = "payment.cancelled"
	TypeRefunded   = "payment.refunded"
	TypeFailed     = "payment.failed"
)

// Event describes one payment lifecycle change of an order.
type Event struct {
	Type          string    `json:"type"`
	OrderID       uint      `json:"order_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Flag          string    `json:"flag,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events to an outside system.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishTimeout bounds how long Emit waits for the publishers.
var PublishTimeout = 3 * time.Second

// Emit publishes ev and only logs a failure; delivery never affects the caller.
// Publishing runs on a context detached from ctx and bounded by PublishTimeout.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := p.Publish(pubCtx, ev); err != nil {
		logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.Uint("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}
