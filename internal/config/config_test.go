package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgiropay/internal/payment"
)

func setGatewayEnv(t *testing.T) {
	t.Setenv("NETGIRO_APPLICATION_ID", "APP1")
	t.Setenv("NETGIRO_SECRET_KEY", "KEY1")
	t.Setenv("PUBLIC_BASE_URL", "https://shop.example/")
}

func TestLoadDefaults(t *testing.T) {
	setGatewayEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Gateway.TestMode)
	assert.True(t, cfg.Gateway.SendItems)
	assert.True(t, cfg.Gateway.RoundNumbers)
	assert.Equal(t, payment.ConfirmAutomatic, cfg.Gateway.ConfirmationType)
	assert.Equal(t, 30*time.Second, cfg.Redis.GuardTTL)
	assert.Equal(t, 5*time.Second, cfg.Redis.GuardWait)
	assert.Equal(t, "netgiro.payments", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 50, cfg.Reconcile.Limit)

	s := cfg.Gateway.Settings()
	assert.Equal(t, "https://shop.example/netgiro/return", s.SuccessURL)
	assert.Equal(t, "https://shop.example/netgiro/callback", s.CallbackURL)
	assert.Equal(t, "https://shop.example/cart", s.CancelURL)
	assert.Equal(t, "https://shop.example/checkout", s.CheckoutURL)
	assert.Equal(t, "https://securepay.test.netgiro.is/", s.GatewayURL())
}

func TestLoadOverrides(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("NETGIRO_CONFIRMATION_TYPE", "2")
	t.Setenv("NETGIRO_TEST_MODE", "false")
	t.Setenv("NETGIRO_CANCEL_URL", "https://shop.example/basket")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CALLBACK_GUARD_TTL", "5s")
	t.Setenv("CALLBACK_GUARD_WAIT", "250ms")
	t.Setenv("RECONCILE_SCHEDULE", " ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, payment.ConfirmManual, cfg.Gateway.ConfirmationType)
	assert.False(t, cfg.Gateway.TestMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Redis.GuardTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.GuardWait)
	assert.Empty(t, cfg.Reconcile.Schedule)

	s := cfg.Gateway.Settings()
	assert.Equal(t, "https://shop.example/basket", s.CancelURL)
	assert.Equal(t, "https://securepay.netgiro.is/v1/", s.GatewayURL())
}

func TestLoadRejectsInvalidGateway(t *testing.T) {
	cases := map[string]func(t *testing.T){
		"missing secret": func(t *testing.T) { t.Setenv("NETGIRO_SECRET_KEY", "") },
		"bad base url":   func(t *testing.T) { t.Setenv("PUBLIC_BASE_URL", "not a url") },
		"bad type":       func(t *testing.T) { t.Setenv("NETGIRO_CONFIRMATION_TYPE", "7") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			setGatewayEnv(t)
			mutate(t)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "3306", Name: "shop", User: "u", Pass: "p", Charset: "utf8mb4"}
	assert.Equal(t, "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=True&loc=Local", d.DSN())
}
