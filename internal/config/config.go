package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"netgiropay/internal/payment"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Admin     AdminConfig
	Telegram  TelegramConfig
	Kafka     KafkaConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
	// GuardTTL bounds how long a callback stays marked in flight.
	GuardTTL time.Duration
	// GuardWait is how long a duplicate callback waits for the one in flight.
	GuardWait time.Duration
}

// GatewayConfig is the merchant's Netgíró setup.
type GatewayConfig struct {
	ApplicationID    string                   `validate:"required"`
	SecretKey        string                   `validate:"required"`
	TestMode         bool
	ConfirmationType payment.ConfirmationType `validate:"oneof=0 1 2"`
	SendItems        bool
	RoundNumbers     bool
	ShopName         string
	ClientInfo       string
	PublicBaseURL    string `validate:"required,http_url"`
	CancelURL        string `validate:"omitempty,http_url"`
	CheckoutURL      string `validate:"omitempty,http_url"`
	OrderReceivedURL string `validate:"omitempty,http_url"`
	PaymentURL       string `validate:"omitempty,http_url"`
	APIURL           string `validate:"omitempty,http_url"`
	PartnerAPIURL    string `validate:"omitempty,http_url"`
}

type AdminConfig struct {
	APIKey     string
	APIKeyHash string
}

type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type ReconcileConfig struct {
	// Schedule is a six-field cron spec; empty disables the job.
	Schedule string
	Limit    int
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	setDatabaseDefaults()
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CALLBACK_GUARD_TTL", "30s")
	viper.SetDefault("CALLBACK_GUARD_WAIT", "5s")
	viper.SetDefault("NETGIRO_TEST_MODE", true)
	viper.SetDefault("NETGIRO_CONFIRMATION_TYPE", 0)
	viper.SetDefault("NETGIRO_SEND_ITEMS", true)
	viper.SetDefault("NETGIRO_ROUND_NUMBERS", true)
	viper.SetDefault("NETGIRO_CLIENT_INFO", "System: netgiropay")
	viper.SetDefault("SHOP_NAME", "Shop")
	viper.SetDefault("KAFKA_TOPIC", "netgiro.payments")
	viper.SetDefault("KAFKA_CLIENT_ID", "netgiropay")
	viper.SetDefault("RECONCILE_SCHEDULE", "0 */30 * * * *")
	viper.SetDefault("RECONCILE_LIMIT", 50)

	guardTTL, err := time.ParseDuration(viper.GetString("CALLBACK_GUARD_TTL"))
	if err != nil {
		guardTTL = 30 * time.Second
	}
	guardWait, err := time.ParseDuration(viper.GetString("CALLBACK_GUARD_WAIT"))
	if err != nil {
		guardWait = 5 * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: databaseFromEnv(),
		Redis: RedisConfig{
			Addr:      viper.GetString("REDIS_ADDR"),
			Pass:      viper.GetString("REDIS_PASS"),
			DB:        viper.GetInt("REDIS_DB"),
			GuardTTL:  guardTTL,
			GuardWait: guardWait,
		},
		Gateway: GatewayConfig{
			ApplicationID:    viper.GetString("NETGIRO_APPLICATION_ID"),
			SecretKey:        viper.GetString("NETGIRO_SECRET_KEY"),
			TestMode:         viper.GetBool("NETGIRO_TEST_MODE"),
			ConfirmationType: payment.ConfirmationType(viper.GetInt("NETGIRO_CONFIRMATION_TYPE")),
			SendItems:        viper.GetBool("NETGIRO_SEND_ITEMS"),
			RoundNumbers:     viper.GetBool("NETGIRO_ROUND_NUMBERS"),
			ShopName:         viper.GetString("SHOP_NAME"),
			ClientInfo:       viper.GetString("NETGIRO_CLIENT_INFO"),
			PublicBaseURL:    strings.TrimRight(viper.GetString("PUBLIC_BASE_URL"), "/"),
			CancelURL:        viper.GetString("NETGIRO_CANCEL_URL"),
			CheckoutURL:      viper.GetString("CHECKOUT_URL"),
			OrderReceivedURL: viper.GetString("ORDER_RECEIVED_URL"),
			PaymentURL:       viper.GetString("NETGIRO_PAYMENT_URL"),
			APIURL:           viper.GetString("NETGIRO_API_URL"),
			PartnerAPIURL:    viper.GetString("NETGIRO_PARTNER_API_URL"),
		},
		Admin: AdminConfig{
			APIKey:     viper.GetString("API_KEY"),
			APIKeyHash: viper.GetString("API_KEY_HASH"),
		},
		Telegram: TelegramConfig{
			Token:   viper.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID:  viper.GetString("TELEGRAM_CHAT_ID"),
			BaseURL: viper.GetString("TELEGRAM_API_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:    viper.GetString("KAFKA_TOPIC"),
			ClientID: viper.GetString("KAFKA_CLIENT_ID"),
		},
		Reconcile: ReconcileConfig{
			Schedule: strings.TrimSpace(viper.GetString("RECONCILE_SCHEDULE")),
			Limit:    viper.GetInt("RECONCILE_LIMIT"),
		},
	}

	if err := validator.New().Struct(cfg.Gateway); err != nil {
		return nil, fmt.Errorf("invalid netgiro gateway config: %w", err)
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Admin.APIKey == "" && cfg.Admin.APIKeyHash == "" {
		log.Println("WARNING: API_KEY is not set, admin API will reject every request")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database section, for schema bootstrap.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	setDatabaseDefaults()

	db := databaseFromEnv()
	if db.Name == "" {
		return nil, fmt.Errorf("DB_NAME is not set")
	}
	return &db, nil
}

func setDatabaseDefaults() {
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
	}
}

// Settings builds the payment settings, deriving the return and callback
// URLs from the public base URL.
func (g *GatewayConfig) Settings() *payment.Settings {
	base := strings.TrimRight(g.PublicBaseURL, "/")
	return &payment.Settings{
		ApplicationID:    g.ApplicationID,
		SecretKey:        g.SecretKey,
		TestMode:         g.TestMode,
		ConfirmationType: g.ConfirmationType,
		SendItems:        g.SendItems,
		RoundNumbers:     g.RoundNumbers,
		ShopName:         g.ShopName,
		ClientInfo:       g.ClientInfo,
		SuccessURL:       base + "/netgiro/return",
		CallbackURL:      base + "/netgiro/callback",
		CancelURL:        orDefault(g.CancelURL, base+"/cart"),
		CheckoutURL:      orDefault(g.CheckoutURL, base+"/checkout"),
		OrderReceivedURL: orDefault(g.OrderReceivedURL, base+"/order-received"),
		PaymentURL:       g.PaymentURL,
		APIURL:           g.APIURL,
		PartnerAPIURL:    g.PartnerAPIURL,
	}
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
