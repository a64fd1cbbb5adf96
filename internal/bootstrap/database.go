package bootstrap

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"netgiropay/internal/models"
)

// MigrateAndSeed ensures required tables exist. With seedDemo it also adds a
// sample order and cart to an empty database, for trying the flow against
// the provider's test environment.
func MigrateAndSeed(db *gorm.DB, seedDemo bool) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if !seedDemo {
		return nil
	}
	if err := seedDemoOrder(db); err != nil {
		return fmt.Errorf("seed demo order failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Order{},
		&models.OrderItem{},
		&models.OrderNote{},
		&models.OrderMeta{},
		&models.CartItem{},
	}
}

func seedDemoOrder(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Order{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		order := models.Order{
			CartID:        "demo-cart",
			Status:        models.OrderStatusPending,
			Currency:      "ISK",
			Total:         decimal.NewFromInt(5990),
			ShippingTotal: decimal.NewFromInt(990),
			PaymentMethod: "netgiro",
			Items: []models.OrderItem{
				{ProductID: "1001", Name: "Lopapeysa", UnitPrice: decimal.NewFromInt(2500), Quantity: 2, LineTotal: decimal.NewFromInt(5000)},
			},
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return tx.Create(&models.CartItem{CartID: order.CartID, ProductID: "1001", Quantity: 2}).Error
	})
}
