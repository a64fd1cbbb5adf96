package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the checkout/fulfillment status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusOnHold, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusFailed, OrderStatusRefunded:
		return true
	}
	return false
}

// IsPaid reports whether the order has moved past payment.
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted || s == OrderStatusRefunded
}

// NeedsPayment reports whether a payment-complete transition may move the order.
func (s OrderStatus) NeedsPayment() bool {
	switch s {
	case OrderStatusPending, OrderStatusOnHold, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentFlag is the persisted Netgíró payment lifecycle marker.
type PaymentFlag string

const (
	FlagNone       PaymentFlag = ""
	FlagAuthorized PaymentFlag = "NETGIRO_AUTHORIZED"
	FlagConfirmed  PaymentFlag = "NETGIRO_CONFIRMED"
	FlagRefunded   PaymentFlag = "NETGIRO_REFUNDED"
	FlagCancelled  PaymentFlag = "NETGIRO_CANCELLED"
)

// Terminal reports whether no further flag transition is allowed.
func (f PaymentFlag) Terminal() bool {
	return f == FlagRefunded || f == FlagCancelled
}

// Refundable reports whether a refund may be attempted.
func (f PaymentFlag) Refundable() bool {
	return f == FlagAuthorized || f == FlagConfirmed
}

func (f PaymentFlag) String() string {
	if f == FlagNone {
		return "N/A"
	}
	return string(f)
}

// Order meta keys.
const (
	MetaPaymentStatus     = "_netgiro_payment_status"
	MetaCallbackValidated = "_netgiro_callback_validated"
)

// Order maps to the `orders` table.
type Order struct {
	ID             uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CartID         string          `gorm:"column:cart_id;size:64;index" json:"cart_id"`
	Status         OrderStatus     `gorm:"column:status;size:32;not null;default:pending" json:"status"`
	Currency       string          `gorm:"column:currency;size:3;default:ISK" json:"currency"`
	Total          decimal.Decimal `gorm:"column:total;type:decimal(14,2)" json:"total"`
	ShippingTotal  decimal.Decimal `gorm:"column:shipping_total;type:decimal(14,2)" json:"shipping_total"`
	DiscountTotal  decimal.Decimal `gorm:"column:discount_total;type:decimal(14,2)" json:"discount_total"`
	TransactionID  string          `gorm:"column:transaction_id;size:100" json:"transaction_id"`
	PaymentMethod  string          `gorm:"column:payment_method;size:50;default:netgiro" json:"payment_method"`
	DatePaid       *time.Time      `gorm:"column:date_paid" json:"date_paid,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// Reference returns the merchant reference number sent to the provider.
func (o *Order) Reference() string {
	return formatUint(o.ID)
}

// OrderItem maps to the `order_items` table.
type OrderItem struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint            `gorm:"column:order_id;index" json:"order_id"`
	ProductID string          `gorm:"column:product_id;size:64" json:"product_id"`
	Name      string          `gorm:"column:name;size:255" json:"name"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(14,2)" json:"unit_price"`
	Quantity  int             `gorm:"column:quantity" json:"quantity"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:decimal(14,2)" json:"line_total"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderNote maps to the `order_notes` table.
type OrderNote struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint      `gorm:"column:order_id;index" json:"order_id"`
	Note      string    `gorm:"column:note;type:text" json:"note"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (OrderNote) TableName() string {
	return "order_notes"
}

// OrderMeta maps to the `order_meta` key/value table.
type OrderMeta struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint   `gorm:"column:order_id;uniqueIndex:idx_order_meta_key" json:"order_id"`
	MetaKey   string `gorm:"column:meta_key;size:191;uniqueIndex:idx_order_meta_key" json:"meta_key"`
	MetaValue string `gorm:"column:meta_value;type:text" json:"meta_value"`
}

func (OrderMeta) TableName() string {
	return "order_meta"
}

// CartItem maps to the `cart_items` table.
type CartItem struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CartID    string `gorm:"column:cart_id;size:64;index" json:"cart_id"`
	ProductID string `gorm:"column:product_id;size:64" json:"product_id"`
	Quantity  int    `gorm:"column:quantity" json:"quantity"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
