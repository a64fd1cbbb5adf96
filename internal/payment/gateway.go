package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"netgiropay/internal/events"
	"netgiropay/internal/models"
)

// Gateway runs the operator-driven flows: manual confirmation, refunds,
// status checks and reconciliation.
type Gateway struct {
	store     OrderStore
	api       ProviderAPI
	publisher events.Publisher
	logger    *zap.Logger
}

func NewGateway(store OrderStore, api ProviderAPI, pub events.Publisher, logger *zap.Logger) *Gateway {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Gateway{store: store, api: api, publisher: pub, logger: logger}
}

// ConfirmAuthorizedPayment captures an AUTHORIZED payment. Guard failures
// return ErrInvalidState or ErrMissingTransactionID without a provider call;
// a failed call returns *APIError and leaves the flag unchanged.
func (g *Gateway) ConfirmAuthorizedPayment(ctx context.Context, orderID uint) (*Result, error) {
	order, flag, err := g.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if flag != models.FlagAuthorized {
		g.logger.Info("netgiro confirmation skipped", zap.Uint("order_id", orderID), zap.String("flag", flag.String()))
		return nil, fmt.Errorf("%w: flag is %s", ErrInvalidState, flag)
	}
	if order.TransactionID == "" {
		g.logger.Warn("netgiro confirmation skipped, no transaction id", zap.Uint("order_id", orderID))
		return nil, ErrMissingTransactionID
	}

	res := g.api.ConfirmCart(ctx, order.TransactionID)
	if !res.Success {
		g.logger.Error("netgiro confirmation failed", zap.Uint("order_id", orderID), zap.String("message", res.Message))
		g.addNote(ctx, orderID, fmt.Sprintf("Netgíró payment confirmation failed: %s", res.Message))
		return res, &APIError{Op: opConfirm, Result: res}
	}

	err = g.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.SetPaymentFlag(ctx, orderID, models.FlagConfirmed); err != nil {
			return err
		}
		return tx.AddNote(ctx, orderID, fmt.Sprintf("Netgíró payment confirmed. Transaction ID: %s.", order.TransactionID))
	})
	if err != nil {
		return res, fmt.Errorf("record confirmation: %w", err)
	}
	g.logger.Info("netgiro payment confirmed", zap.Uint("order_id", orderID), zap.String("transaction_id", order.TransactionID))
	g.emit(ctx, events.TypeConfirmed, order, models.FlagConfirmed, RoundAmount(order.Total), "")
	return res, nil
}

// Refund returns amount to the customer. Only AUTHORIZED or CONFIRMED
// payments with a transaction id are refundable; anything else fails with
// ErrInvalidState before the network is touched.
func (g *Gateway) Refund(ctx context.Context, orderID uint, amount decimal.Decimal, reason string) (*Result, error) {
	order, flag, err := g.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !flag.Refundable() {
		return nil, fmt.Errorf("%w: refund not allowed when flag is %s", ErrInvalidState, flag)
	}
	if order.TransactionID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, ErrMissingTransactionID)
	}
	if !RoundAmount(amount).IsPositive() || amount.GreaterThan(order.Total) {
		return nil, fmt.Errorf("%w: refund amount %s", ErrInvalidTotal, amount.String())
	}

	res := g.api.RefundPayment(ctx, order.TransactionID, amount, reason)
	if !res.Success {
		g.logger.Error("netgiro refund failed", zap.Uint("order_id", orderID), zap.String("message", res.Message))
		g.addNote(ctx, orderID, fmt.Sprintf("Netgíró refund of %s %s failed: %s",
			RoundAmount(amount).String(), order.Currency, res.Message))
		return res, &APIError{Op: opRefund, Result: res}
	}

	note := fmt.Sprintf("Netgíró refund of %s %s processed.", RoundAmount(amount).String(), order.Currency)
	if reason != "" {
		note += " Reason: " + reason
	}
	err = g.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.SetPaymentFlag(ctx, orderID, models.FlagRefunded); err != nil {
			return err
		}
		if RoundAmount(amount).GreaterThanOrEqual(RoundAmount(order.Total)) {
			if err := tx.UpdateStatus(ctx, orderID, models.OrderStatusRefunded); err != nil {
				return err
			}
		}
		return tx.AddNote(ctx, orderID, note)
	})
	if err != nil {
		return res, fmt.Errorf("record refund: %w", err)
	}
	g.logger.Info("netgiro refund processed", zap.Uint("order_id", orderID), zap.String("amount", amount.String()))
	g.emit(ctx, events.TypeRefunded, order, models.FlagRefunded, RoundAmount(amount), reason)
	return res, nil
}

// CheckStatus asks the provider about the order's transaction and writes
// the answer to the order notes.
func (g *Gateway) CheckStatus(ctx context.Context, orderID uint) (*Result, error) {
	order, err := g.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != "" && order.PaymentMethod != "netgiro" {
		g.addNote(ctx, orderID, "Order was not paid using Netgíró. Status check aborted.")
		return nil, fmt.Errorf("%w: payment method %s", ErrInvalidState, order.PaymentMethod)
	}
	if order.TransactionID == "" {
		g.addNote(ctx, orderID, "No Netgíró transaction ID found for this order.")
		return nil, ErrMissingTransactionID
	}

	res := g.api.TransactionStatus(ctx, order.TransactionID)
	if !res.Success {
		g.addNote(ctx, orderID, fmt.Sprintf("Netgíró status check failed: %s", res.Message))
		return res, &APIError{Op: opStatus, Result: res}
	}
	if err := g.store.AddNote(ctx, orderID, StatusNote(order.TransactionID, res.Data)); err != nil {
		return res, err
	}
	return res, nil
}

// StatusNote renders transaction details as an order note.
func StatusNote(txID string, data map[string]any) string {
	status := "Status not provided"
	if s, ok := data["status"].(string); ok && s != "" {
		r := []rune(s)
		status = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	refundable := "Not Refundable"
	if v, ok := data["isRefundable"].(bool); ok && v {
		refundable = "Refundable"
	}
	settlement := "Settlement date not available"
	if s, ok := data["settlementDate"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			s = t.Format("2006-01-02")
		}
		settlement = "Settlement expected on: " + s
	}
	return fmt.Sprintf("Netgíró status updated: Transaction ID: %s. Status: %s. Refundable: %s. %s",
		txID, status, refundable, settlement)
}

// StatusChange reports what ChangeStatus did.
type StatusChange struct {
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	Confirm *Result            `json:"-"`
	// ConfirmError is set when a triggered confirmation failed.
	ConfirmError string `json:"confirm_error,omitempty"`
}

// ChangeStatus moves the order to status. Moving an on-hold order to
// processing or completed captures its authorized payment.
func (g *Gateway) ChangeStatus(ctx context.Context, orderID uint, to models.OrderStatus) (*StatusChange, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidState, to)
	}
	order, err := g.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	change := &StatusChange{From: order.Status, To: to}
	if order.Status == to {
		return change, nil
	}
	err = g.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.UpdateStatus(ctx, orderID, to); err != nil {
			return err
		}
		return tx.AddNote(ctx, orderID, fmt.Sprintf("Order status changed from %s to %s.", order.Status, to))
	})
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusOnHold && (to == models.OrderStatusProcessing || to == models.OrderStatusCompleted) {
		res, err := g.ConfirmAuthorizedPayment(ctx, orderID)
		change.Confirm = res
		if err != nil {
			change.ConfirmError = err.Error()
		}
	}
	return change, nil
}

// ReconcileAuthorized re-reads AUTHORIZED orders from the provider and
// cancels the ones the provider reports as cancelled. It returns how many
// orders were cancelled.
func (g *Gateway) ReconcileAuthorized(ctx context.Context, limit int) (int, error) {
	orders, err := g.store.OrdersByFlag(ctx, models.FlagAuthorized, limit)
	if err != nil {
		return 0, fmt.Errorf("list authorized orders: %w", err)
	}
	cancelled := 0
	for i := range orders {
		order := &orders[i]
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		if order.TransactionID == "" {
			continue
		}
		res := g.api.TransactionStatus(ctx, order.TransactionID)
		if !res.Success {
			g.logger.Warn("netgiro reconcile status failed", zap.Uint("order_id", order.ID), zap.String("message", res.Message))
			continue
		}
		status, _ := res.Data["status"].(string)
		if !isCancelledStatus(status) {
			g.logger.Debug("netgiro reconcile unchanged", zap.Uint("order_id", order.ID), zap.String("status", status))
			continue
		}
		err := g.store.Transaction(ctx, func(tx OrderStore) error {
			if err := tx.UpdateStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
				return err
			}
			if err := tx.AddNote(ctx, order.ID, fmt.Sprintf("Netgíró reports transaction %s as %s. Order cancelled.", order.TransactionID, status)); err != nil {
				return err
			}
			return tx.SetPaymentFlag(ctx, order.ID, models.FlagCancelled)
		})
		if err != nil {
			g.logger.Error("netgiro reconcile cancel failed", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		cancelled++
		g.emit(ctx, events.TypeCancelled, order, models.FlagCancelled, RoundAmount(order.Total), "cancelled by provider")
	}
	return cancelled, nil
}

func isCancelledStatus(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cancelled", "canceled", "cancel":
		return true
	}
	return false
}

// addNote writes a best-effort note; a failed write is only logged.
func (g *Gateway) addNote(ctx context.Context, orderID uint, note string) {
	if err := g.store.AddNote(ctx, orderID, note); err != nil {
		g.logger.Error("write order note", zap.Uint("order_id", orderID), zap.String("note", note), zap.Error(err))
	}
}

func (g *Gateway) load(ctx context.Context, orderID uint) (*models.Order, models.PaymentFlag, error) {
	order, err := g.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, models.FlagNone, err
	}
	flag, err := g.store.PaymentFlag(ctx, orderID)
	if err != nil {
		return nil, models.FlagNone, fmt.Errorf("read payment flag: %w", err)
	}
	return order, flag, nil
}

func (g *Gateway) emit(ctx context.Context, typ string, order *models.Order, flag models.PaymentFlag, amount decimal.Decimal, msg string) {
	events.Emit(ctx, g.publisher, g.logger, events.Event{
		Type:          typ,
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		Amount:        amount.String(),
		Currency:      order.Currency,
		Flag:          string(flag),
		Message:       msg,
		OccurredAt:    time.Now().UTC(),
	})
}
