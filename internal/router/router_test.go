package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"netgiropay/internal/bootstrap"
	"netgiropay/internal/handler"
	"netgiropay/internal/handler/api"
	"netgiropay/internal/metrics"
	"netgiropay/internal/middleware"
	"netgiropay/internal/models"
	"netgiropay/internal/payment"
	"netgiropay/internal/repository"
)

func newServer(t *testing.T) (*echo.Echo, *repository.OrderRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_busy_timeout=5000"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, bootstrap.MigrateAndSeed(db, false))

	s := &payment.Settings{
		ApplicationID:    "APP1",
		SecretKey:        "KEY1",
		TestMode:         true,
		ConfirmationType: payment.ConfirmServerCallback,
		SuccessURL:       "https://shop.example/netgiro/return",
		CallbackURL:      "https://shop.example/netgiro/callback",
		CancelURL:        "https://shop.example/cart",
		CheckoutURL:      "https://shop.example/checkout",
		OrderReceivedURL: "https://shop.example/order-received",
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewOrderRepository(db)
	log := zap.NewNop()
	proc := payment.NewProcessor(s, repo, nil, log, m)
	gw := payment.NewGateway(repo, payment.NewClient(s, log, m), nil, log)
	guard, err := middleware.NewInFlightGuard("", "", 0, time.Minute)
	require.NoError(t, err)

	e := echo.New()
	Setup(e, Deps{
		Netgiro:   handler.NewNetgiroHandler(s, repo, proc, log),
		Orders:    api.NewOrderHandler(repo, gw, log),
		Guard:     guard,
		GuardWait: time.Second,
		Gatherer:  reg,
		APIKey:    "secret-token",
		Logger:    log,
	})
	return e, repo
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e, _ := newServer(t)
	rec := do(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCallbackRouteAndMetrics(t *testing.T) {
	e, repo := newServer(t)
	o := &models.Order{Status: models.OrderStatusPending, Currency: "ISK", Total: decimal.NewFromInt(5000)}
	require.NoError(t, repo.Create(context.Background(), o))

	p := payment.CallbackParams{
		ReferenceNumber: o.Reference(),
		TransactionID:   "TX-1",
		InvoiceNumber:   "INV-1",
		TotalAmount:     "5000",
		Status:          payment.StatusConfirmed,
	}
	sig, err := payment.CallbackSignature("KEY1", p)
	require.NoError(t, err)
	q := url.Values{
		payment.ParamReferenceNumber: {p.ReferenceNumber},
		payment.ParamTransactionID:   {p.TransactionID},
		payment.ParamInvoiceNumber:   {p.InvoiceNumber},
		payment.ParamTotalAmount:     {p.TotalAmount},
		payment.ParamStatus:          {p.Status},
		payment.ParamSignature:       {sig},
	}

	req := httptest.NewRequest(http.MethodPost, "/netgiro/callback", strings.NewReader(q.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := do(e, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OK", rec.Body.String())

	// The guard was released, so a retry reaches the handler and is idempotent.
	rec = do(e, httptest.NewRequest(http.MethodGet, "/netgiro/callback?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `netgiro_inbound_total{entry="callback",outcome="accepted"} 1`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	e, repo := newServer(t)
	o := &models.Order{Status: models.OrderStatusPending, Currency: "ISK", Total: decimal.NewFromInt(5000)}
	require.NoError(t, repo.Create(context.Background(), o))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/orders/"+o.Reference(), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+o.Reference(), nil)
	req.Header.Set("Token", "secret-token")
	rec = do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"N/A"`)
}
