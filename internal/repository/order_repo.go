package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"netgiropay/internal/models"
	"netgiropay/internal/payment"
)

// OrderRepository handles orders, their notes, meta and carts.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

var _ payment.OrderStore = (*OrderRepository)(nil)

// Create inserts an order with its items.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindOrder returns an order with its items.
func (r *OrderRepository) FindOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", payment.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) SetTransactionID(ctx context.Context, id uint, transactionID string) error {
	return r.updateOrder(ctx, id, map[string]interface{}{"transaction_id": transactionID})
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error {
	return r.updateOrder(ctx, id, map[string]interface{}{"status": status})
}

// PaymentComplete records the transaction id and moves an unpaid order to
// processing. Orders already past payment keep their status.
func (r *OrderRepository) PaymentComplete(ctx context.Context, id uint, transactionID string) error {
	if err := r.SetTransactionID(ctx, id, transactionID); err != nil {
		return err
	}
	unpaid := []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusOnHold,
		models.OrderStatusFailed,
		models.OrderStatusCancelled,
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, unpaid).
		Updates(map[string]interface{}{
			"status":    models.OrderStatusProcessing,
			"date_paid": time.Now().UTC(),
		}).Error
}

func (r *OrderRepository) AddNote(ctx context.Context, id uint, note string) error {
	return r.db.WithContext(ctx).Create(&models.OrderNote{OrderID: id, Note: note}).Error
}

// Notes returns the order's notes, oldest first.
func (r *OrderRepository) Notes(ctx context.Context, id uint) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := r.db.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&notes).Error
	return notes, err
}

func (r *OrderRepository) PaymentFlag(ctx context.Context, id uint) (models.PaymentFlag, error) {
	v, ok, err := r.meta(ctx, id, models.MetaPaymentStatus)
	if err != nil || !ok {
		return models.FlagNone, err
	}
	return models.PaymentFlag(v), nil
}

func (r *OrderRepository) SetPaymentFlag(ctx context.Context, id uint, flag models.PaymentFlag) error {
	row := models.OrderMeta{OrderID: id, MetaKey: models.MetaPaymentStatus, MetaValue: string(flag)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
	}).Create(&row).Error
}

func (r *OrderRepository) CallbackValidated(ctx context.Context, id uint) (bool, error) {
	_, ok, err := r.meta(ctx, id, models.MetaCallbackValidated)
	return ok, err
}

// MarkCallbackValidated inserts the marker unless it exists. The unique
// (order_id, meta_key) index makes this a compare-and-set.
func (r *OrderRepository) MarkCallbackValidated(ctx context.Context, id uint, at time.Time) (bool, error) {
	row := models.OrderMeta{OrderID: id, MetaKey: models.MetaCallbackValidated, MetaValue: at.UTC().Format(time.RFC3339)}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// EmptyCart removes the items of the cart the order was placed from.
func (r *OrderRepository) EmptyCart(ctx context.Context, id uint) error {
	var order models.Order
	if err := r.db.WithContext(ctx).Select("id", "cart_id").First(&order, id).Error; err != nil {
		return err
	}
	if order.CartID == "" {
		return nil
	}
	return r.db.WithContext(ctx).Where("cart_id = ?", order.CartID).Delete(&models.CartItem{}).Error
}

// CartItems returns the items currently in a cart.
func (r *OrderRepository) CartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Find(&items).Error
	return items, err
}

// OrdersByFlag returns orders whose payment flag equals flag, oldest first.
func (r *OrderRepository) OrdersByFlag(ctx context.Context, flag models.PaymentFlag, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Joins("JOIN order_meta ON order_meta.order_id = orders.id AND order_meta.meta_key = ?", models.MetaPaymentStatus).
		Where("order_meta.meta_value = ?", string(flag)).
		Order("orders.id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// Transaction runs fn inside a database transaction.
func (r *OrderRepository) Transaction(ctx context.Context, fn func(payment.OrderStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&OrderRepository{db: tx})
	})
}

func (r *OrderRepository) updateOrder(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *OrderRepository) meta(ctx context.Context, id uint, key string) (string, bool, error) {
	var row models.OrderMeta
	err := r.db.WithContext(ctx).Where("order_id = ? AND meta_key = ?", id, key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.MetaValue, true, nil
}
