package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"netgiropay/internal/events"
	"netgiropay/internal/metrics"
	"netgiropay/internal/models"
)

// Inbound entry points, used as metric labels.
const (
	EntryReturn   = "return"
	EntryCallback = "callback"
)

// ReturnAction tells the HTTP layer where to send the customer.
type ReturnAction int

const (
	ActionCheckout ReturnAction = iota
	ActionCancel
	ActionOrderReceived
)

// ReturnOutcome is the result of a browser return.
type ReturnOutcome struct {
	Action      ReturnAction
	RedirectURL string
	// Err is set for rejected returns.
	Err error
}

// CallbackOutcome is the HTTP answer to a server callback.
type CallbackOutcome struct {
	HTTPStatus int
	Body       string
}

var errAlreadyValidated = errors.New("callback already validated")

// Processor verifies inbound returns and callbacks and drives the order's
// payment state.
type Processor struct {
	settings  *Settings
	store     OrderStore
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewProcessor(s *Settings, store OrderStore, pub events.Publisher, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Processor{
		settings:  s,
		store:     store,
		publisher: pub,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// HandleReturn processes the customer's browser redirect back from the
// payment page.
func (p *Processor) HandleReturn(ctx context.Context, params CallbackParams) ReturnOutcome {
	log := p.logger.With(zap.String("entry", EntryReturn), zap.String("reference", params.ReferenceNumber))

	if err := params.Validate(); err != nil {
		log.Warn("netgiro return rejected", zap.Error(err))
		return p.rejectReturn("missing_fields", err)
	}
	order, err := p.findOrder(ctx, params.ReferenceNumber)
	if err != nil {
		log.Warn("netgiro return rejected", zap.Error(err))
		return p.rejectReturn("order_not_found", err)
	}
	if !VerifyCallback(p.settings.SecretKey, params) {
		if err := p.signatureMismatch(ctx, order, EntryReturn); err != nil {
			log.Error("record signature mismatch", zap.Error(err))
		}
		log.Error("netgiro return signature mismatch", zap.Uint("order_id", order.ID))
		return p.rejectReturn("bad_signature", ErrSignatureMismatch)
	}

	flag, err := p.store.PaymentFlag(ctx, order.ID)
	if err != nil {
		log.Error("read payment flag", zap.Error(err))
		return p.rejectReturn("error", err)
	}
	if flag.Terminal() {
		log.Warn("netgiro return for finished payment ignored", zap.String("flag", flag.String()))
		p.metrics.Inbound(EntryReturn, "ignored")
		if flag == models.FlagCancelled {
			return ReturnOutcome{Action: ActionCancel, RedirectURL: p.settings.CancelURL}
		}
		return ReturnOutcome{Action: ActionOrderReceived, RedirectURL: p.settings.OrderReceivedFor(order.Reference())}
	}

	if err := p.store.SetTransactionID(ctx, order.ID, params.TransactionID); err != nil {
		log.Error("store transaction id", zap.Error(err))
		return p.rejectReturn("error", err)
	}

	switch params.Status {
	case StatusCancelled:
		if err := p.cancel(ctx, order, params.TransactionID, EntryReturn); err != nil {
			log.Error("cancel order", zap.Error(err))
			return p.rejectReturn("error", err)
		}
		p.metrics.Inbound(EntryReturn, "cancelled")
		return ReturnOutcome{Action: ActionCancel, RedirectURL: p.settings.CancelURL}
	case StatusUnconfirmed:
		log.Warn("netgiro payment unconfirmed, proceeding", zap.String("transaction_id", params.TransactionID))
	case StatusConfirmed:
	default:
		note := fmt.Sprintf("Netgíró returned unknown payment status %q. Transaction ID: %s.", params.Status, params.TransactionID)
		p.addNote(ctx, order.ID, note)
		log.Warn("netgiro return unknown status", zap.String("status", params.Status))
		return p.rejectReturn("unknown_status", fmt.Errorf("unknown payment status %q", params.Status))
	}

	var ev *events.Event
	switch p.settings.ConfirmationType {
	case ConfirmServerCallback:
		ev, err = p.awaitCallback(ctx, order)
	case ConfirmManual:
		ev, err = p.authorize(ctx, order, flag, params.TransactionID)
	default:
		ev, err = p.complete(ctx, order, flag, params.TransactionID)
	}
	if err != nil {
		log.Error("netgiro return transition failed", zap.Error(err))
		return p.rejectReturn("error", err)
	}
	if ev != nil {
		events.Emit(ctx, p.publisher, p.logger, *ev)
	}

	if err := p.store.EmptyCart(ctx, order.ID); err != nil {
		log.Warn("empty cart", zap.Error(err))
	}
	log.Info("netgiro return accepted",
		zap.Uint("order_id", order.ID),
		zap.String("confirmation_type", p.settings.ConfirmationType.String()),
	)
	p.metrics.Inbound(EntryReturn, "accepted")
	return ReturnOutcome{Action: ActionOrderReceived, RedirectURL: p.settings.OrderReceivedFor(order.Reference())}
}

func (p *Processor) rejectReturn(outcome string, err error) ReturnOutcome {
	p.metrics.Inbound(EntryReturn, outcome)
	return ReturnOutcome{Action: ActionCheckout, RedirectURL: p.settings.CheckoutURL, Err: err}
}

// awaitCallback leaves confirmation to the server callback.
func (p *Processor) awaitCallback(ctx context.Context, order *models.Order) (*events.Event, error) {
	validated, err := p.store.CallbackValidated(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if validated {
		return nil, nil
	}
	if order.Status == models.OrderStatusPending || order.Status.IsPaid() {
		return nil, nil
	}
	if err := p.store.UpdateStatus(ctx, order.ID, models.OrderStatusPending); err != nil {
		return nil, err
	}
	return nil, p.store.AddNote(ctx, order.ID, "Netgíró payment returned, awaiting server callback confirmation.")
}

// authorize puts the order on hold until someone confirms it manually.
func (p *Processor) authorize(ctx context.Context, order *models.Order, flag models.PaymentFlag, txID string) (*events.Event, error) {
	if flag != models.FlagNone || order.Status.IsPaid() {
		p.logger.Info("netgiro payment already recorded", zap.Uint("order_id", order.ID), zap.String("flag", flag.String()))
		return nil, nil
	}
	note := fmt.Sprintf("Netgíró payment authorized, awaiting manual confirmation. Transaction ID: %s. Amount: %s %s.",
		txID, RoundAmount(order.Total).String(), order.Currency)
	err := p.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.UpdateStatus(ctx, order.ID, models.OrderStatusOnHold); err != nil {
			return err
		}
		if err := tx.AddNote(ctx, order.ID, note); err != nil {
			return err
		}
		return tx.SetPaymentFlag(ctx, order.ID, models.FlagAuthorized)
	})
	if err != nil {
		return nil, err
	}
	return p.event(events.TypeAuthorized, order, txID, models.FlagAuthorized), nil
}

// complete marks the order paid right away.
func (p *Processor) complete(ctx context.Context, order *models.Order, flag models.PaymentFlag, txID string) (*events.Event, error) {
	if flag == models.FlagConfirmed || order.Status.IsPaid() {
		p.logger.Info("netgiro payment already confirmed", zap.Uint("order_id", order.ID))
		return nil, nil
	}
	err := p.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.PaymentComplete(ctx, order.ID, txID); err != nil {
			return err
		}
		if err := tx.AddNote(ctx, order.ID, fmt.Sprintf("Netgíró payment completed. Transaction ID: %s.", txID)); err != nil {
			return err
		}
		return tx.SetPaymentFlag(ctx, order.ID, models.FlagConfirmed)
	})
	if err != nil {
		return nil, err
	}
	return p.event(events.TypeConfirmed, order, txID, models.FlagConfirmed), nil
}

// HandleCallback processes a server-to-server confirmation. The answer is
// 200 only once the order is durably marked paid.
func (p *Processor) HandleCallback(ctx context.Context, params CallbackParams) CallbackOutcome {
	log := p.logger.With(zap.String("entry", EntryCallback), zap.String("reference", params.ReferenceNumber))

	if err := params.Validate(); err != nil {
		log.Warn("netgiro callback rejected", zap.Error(err))
		return p.answer("missing_fields", http.StatusBadRequest, "Missing required parameters")
	}
	order, err := p.findOrder(ctx, params.ReferenceNumber)
	if err != nil {
		log.Warn("netgiro callback rejected", zap.Error(err))
		if errors.Is(err, ErrOrderNotFound) {
			return p.answer("order_not_found", http.StatusNotFound, "Order not found")
		}
		return p.answer("error", http.StatusInternalServerError, "Internal error")
	}
	if !VerifyCallback(p.settings.SecretKey, params) {
		if err := p.signatureMismatch(ctx, order, EntryCallback); err != nil {
			log.Error("record signature mismatch", zap.Error(err))
		}
		log.Error("netgiro callback signature mismatch", zap.Uint("order_id", order.ID))
		return p.answer("bad_signature", http.StatusBadRequest, "Invalid signature")
	}

	sent, err := decimal.NewFromString(params.TotalAmount)
	if err != nil || !RoundAmount(sent).Equal(RoundAmount(order.Total)) {
		log.Error("netgiro callback amount mismatch",
			zap.Uint("order_id", order.ID),
			zap.String("sent", params.TotalAmount),
			zap.String("expected", RoundAmount(order.Total).String()),
		)
		return p.answer("amount_mismatch", http.StatusBadRequest, "Amount mismatch")
	}

	validated, err := p.store.CallbackValidated(ctx, order.ID)
	if err != nil {
		log.Error("read callback marker", zap.Error(err))
		return p.answer("error", http.StatusInternalServerError, "Internal error")
	}
	if validated {
		log.Info("netgiro callback already processed", zap.Uint("order_id", order.ID))
		return p.answer("duplicate", http.StatusOK, "OK")
	}

	flag, err := p.store.PaymentFlag(ctx, order.ID)
	if err != nil {
		log.Error("read payment flag", zap.Error(err))
		return p.answer("error", http.StatusInternalServerError, "Internal error")
	}
	if flag.Terminal() {
		log.Warn("netgiro callback for finished payment", zap.String("flag", flag.String()))
		return p.answer("ignored", http.StatusBadRequest, "Payment already "+flagWord(flag))
	}

	switch params.Status {
	case StatusCancelled:
		if err := p.cancel(ctx, order, params.TransactionID, EntryCallback); err != nil {
			log.Error("cancel order", zap.Error(err))
			return p.answer("error", http.StatusInternalServerError, "Internal error")
		}
		return p.answer("cancelled", http.StatusBadRequest, "Payment cancelled")
	case StatusUnconfirmed, StatusConfirmed:
		if params.Status == StatusUnconfirmed {
			log.Warn("netgiro payment unconfirmed, completing", zap.String("transaction_id", params.TransactionID))
		}
	default:
		log.Warn("netgiro callback unknown status", zap.String("status", params.Status))
		return p.answer("unknown_status", http.StatusBadRequest, "Unknown payment status")
	}

	err = p.store.Transaction(ctx, func(tx OrderStore) error {
		set, err := tx.MarkCallbackValidated(ctx, order.ID, p.now().UTC())
		if err != nil {
			return err
		}
		if !set {
			return errAlreadyValidated
		}
		if err := tx.SetTransactionID(ctx, order.ID, params.TransactionID); err != nil {
			return err
		}
		if order.Status.NeedsPayment() {
			if err := tx.PaymentComplete(ctx, order.ID, params.TransactionID); err != nil {
				return err
			}
		}
		note := fmt.Sprintf("Netgíró payment confirmed by server callback. Transaction ID: %s. Invoice: %s.",
			params.TransactionID, params.InvoiceNumber)
		if err := tx.AddNote(ctx, order.ID, note); err != nil {
			return err
		}
		return tx.SetPaymentFlag(ctx, order.ID, models.FlagConfirmed)
	})
	switch {
	case errors.Is(err, errAlreadyValidated):
		log.Info("netgiro callback raced a duplicate", zap.Uint("order_id", order.ID))
		return p.answer("duplicate", http.StatusOK, "OK")
	case err != nil:
		log.Error("netgiro callback completion failed", zap.Error(err))
		return p.answer("error", http.StatusInternalServerError, "Internal error")
	}

	events.Emit(ctx, p.publisher, p.logger, *p.event(events.TypeConfirmed, order, params.TransactionID, models.FlagConfirmed))
	log.Info("netgiro callback accepted", zap.Uint("order_id", order.ID), zap.String("transaction_id", params.TransactionID))
	return p.answer("accepted", http.StatusOK, "OK")
}

func (p *Processor) answer(outcome string, status int, body string) CallbackOutcome {
	p.metrics.Inbound(EntryCallback, outcome)
	return CallbackOutcome{HTTPStatus: status, Body: body}
}

// addNote writes a best-effort note; a failed write is only logged.
func (p *Processor) addNote(ctx context.Context, orderID uint, note string) {
	if err := p.store.AddNote(ctx, orderID, note); err != nil {
		p.logger.Error("write order note", zap.Uint("order_id", orderID), zap.String("note", note), zap.Error(err))
	}
}

func (p *Processor) findOrder(ctx context.Context, ref string) (*models.Order, error) {
	id, ok := models.ParseOrderID(ref)
	if !ok {
		return nil, fmt.Errorf("%w: reference %q", ErrOrderNotFound, ref)
	}
	return p.store.FindOrder(ctx, id)
}

// signatureMismatch records a failed verification. Orders that are already
// paid or carry a payment flag keep their state and only get a note.
func (p *Processor) signatureMismatch(ctx context.Context, order *models.Order, entry string) error {
	note := fmt.Sprintf("Netgíró %s signature verification failed.", entry)
	flag, err := p.store.PaymentFlag(ctx, order.ID)
	if err != nil {
		return err
	}
	if order.Status.IsPaid() || flag != models.FlagNone {
		return p.store.AddNote(ctx, order.ID, note+" Order state left unchanged.")
	}
	err = p.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.UpdateStatus(ctx, order.ID, models.OrderStatusFailed); err != nil {
			return err
		}
		return tx.AddNote(ctx, order.ID, note+" Order marked as failed.")
	})
	if err != nil {
		return err
	}
	ev := p.event(events.TypeFailed, order, "", models.FlagNone)
	ev.Message = "signature verification failed"
	events.Emit(ctx, p.publisher, p.logger, *ev)
	return nil
}

func (p *Processor) cancel(ctx context.Context, order *models.Order, txID, entry string) error {
	err := p.store.Transaction(ctx, func(tx OrderStore) error {
		if err := tx.SetTransactionID(ctx, order.ID, txID); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
			return err
		}
		note := fmt.Sprintf("Netgíró payment cancelled (%s). Transaction ID: %s.", entry, txID)
		if err := tx.AddNote(ctx, order.ID, note); err != nil {
			return err
		}
		return tx.SetPaymentFlag(ctx, order.ID, models.FlagCancelled)
	})
	if err != nil {
		return err
	}
	events.Emit(ctx, p.publisher, p.logger, *p.event(events.TypeCancelled, order, txID, models.FlagCancelled))
	return nil
}

func (p *Processor) event(typ string, order *models.Order, txID string, flag models.PaymentFlag) *events.Event {
	return &events.Event{
		Type:          typ,
		OrderID:       order.ID,
		TransactionID: txID,
		Amount:        RoundAmount(order.Total).String(),
		Currency:      order.Currency,
		Flag:          string(flag),
		OccurredAt:    p.now().UTC(),
	}
}

func flagWord(f models.PaymentFlag) string {
	switch f {
	case models.FlagRefunded:
		return "refunded"
	case models.FlagCancelled:
		return "cancelled"
	}
	return string(f)
}
