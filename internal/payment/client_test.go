package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captured struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func newTestClient(t *testing.T, status int, respBody string) (*Client, *captured, *observer.ObservedLogs, *int32) {
	t.Helper()
	var calls int32
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		got.method = r.Method
		got.path = r.URL.EscapedPath()
		got.header = r.Header.Clone()
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	s := testSettings()
	s.APIURL = srv.URL + "/v1/"
	s.PartnerAPIURL = srv.URL + "/partner/"

	core, logs := observer.New(zapcore.DebugLevel)
	c := NewClient(s, zap.New(core), nil)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	c.salt = func() string { return "fixed-salt" }
	return c, got, logs, &calls
}

func TestConfirmCartSuccess(t *testing.T) {
	c, got, _, _ := newTestClient(t, http.StatusOK, `{"Success":true,"Message":"Confirmed"}`)

	res := c.ConfirmCart(context.Background(), "TX-1")
	require.True(t, res.Success)
	assert.Equal(t, "Confirmed", res.Message)
	assert.True(t, res.APILevelSuccess)
	assert.NoError(t, res.TransportErr)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/checkout/ConfirmCart", got.path)
	assert.JSONEq(t, `{"transactionId":"TX-1"}`, string(got.body))
	assert.Equal(t, "APP1", got.header.Get("netgiro_appkey"))
	assert.Equal(t, "1700000000", got.header.Get("netgiro_nonce"))
	assert.Equal(t, "true", got.header.Get("netgiro-api-request"))
	assert.Equal(t, "application/json; charset=utf-8", got.header.Get("Content-Type"))

	want, err := RequestSignature("KEY1", "1700000000", c.settings.APIBaseURL()+"checkout/ConfirmCart", string(got.body))
	require.NoError(t, err)
	assert.Equal(t, want, got.header.Get("netgiro_signature"))
}

func TestConfirmCartRequiresBothHTTPAndAPISuccess(t *testing.T) {
	c, _, _, _ := newTestClient(t, http.StatusOK, `{"Success":false,"Message":"Cart already confirmed"}`)
	res := c.ConfirmCart(context.Background(), "TX-1")
	assert.False(t, res.Success)
	assert.False(t, res.APILevelSuccess)
	assert.Equal(t, "Cart already confirmed", res.Message)

	c, _, _, _ = newTestClient(t, http.StatusInternalServerError, `{"Success":true}`)
	res = c.ConfirmCart(context.Background(), "TX-1")
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 500 error.", res.Message)

	c, _, _, _ = newTestClient(t, http.StatusOK, `{}`)
	res = c.ConfirmCart(context.Background(), "TX-1")
	assert.False(t, res.Success)
	assert.Equal(t, "API request failed.", res.Message)
}

func TestInvalidJSONIsNotATransportError(t *testing.T) {
	c, _, _, _ := newTestClient(t, http.StatusOK, `<html>oops</html>`)

	for _, res := range []*Result{
		c.ConfirmCart(context.Background(), "TX-1"),
		c.TransactionStatus(context.Background(), "TX-1"),
	} {
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "Invalid JSON response")
		assert.NoError(t, res.TransportErr)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	s := testSettings()
	s.APIURL = base + "/v1/"
	s.PartnerAPIURL = base + "/partner/"
	c := NewClient(s, zap.NewNop(), nil)

	for _, res := range []*Result{
		c.ConfirmCart(context.Background(), "TX-1"),
		c.RefundPayment(context.Background(), "TX-1", decimal.NewFromInt(10), ""),
		c.TransactionStatus(context.Background(), "TX-1"),
	} {
		assert.False(t, res.Success)
		assert.Error(t, res.TransportErr)
		assert.Zero(t, res.StatusCode)
	}
}

func TestRefundSuccessIgnoresBody(t *testing.T) {
	c, got, _, _ := newTestClient(t, http.StatusOK, `{"Message":"pending review"}`)

	res := c.RefundPayment(context.Background(), "TX-1", decimal.RequireFromString("4999.6"), strings.Repeat("é", 120))
	require.True(t, res.Success)
	assert.Nil(t, res.Data)

	assert.Equal(t, "/partner/refund", got.path)
	assert.Equal(t, "KEY1", got.header.Get("token"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "TX-1", payload["transactionId"])
	assert.EqualValues(t, 5000, payload["refundAmount"])
	assert.Equal(t, "a3ef74536b806dc2b0516df0e4fdda812cade79d", payload["idempotencyKey"])
	assert.Equal(t, strings.Repeat("é", 100), payload["reason"])
}

func TestRefundOmitsEmptyReasonAndFailsOnNon200(t *testing.T) {
	c, got, _, _ := newTestClient(t, http.StatusCreated, `{"message":"created?"}`)
	res := c.RefundPayment(context.Background(), "TX-1", decimal.NewFromInt(100), "")
	assert.False(t, res.Success)
	assert.Equal(t, "created?", res.Message)
	assert.NotContains(t, string(got.body), "reason")

	c, _, _, _ = newTestClient(t, http.StatusBadGateway, `bad gateway`)
	res = c.RefundPayment(context.Background(), "TX-1", decimal.NewFromInt(100), "")
	assert.False(t, res.Success)
	assert.Equal(t, "Refund failed with HTTP status 502.", res.Message)
	assert.NoError(t, res.TransportErr)
}

func TestIdempotencyKeyVariesWithSalt(t *testing.T) {
	c := NewClient(testSettings(), zap.NewNop(), nil)
	a := c.idempotencyKey("TX-1_100")
	b := c.idempotencyKey("TX-1_100")
	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
}

func TestTransactionStatus(t *testing.T) {
	c, got, _, _ := newTestClient(t, http.StatusOK, `{"status":"confirmed","isRefundable":true,"settlementDate":"2026-11-01T00:00:00Z"}`)
	res := c.TransactionStatus(context.Background(), "TX 1/2")
	require.True(t, res.Success)
	assert.Equal(t, "confirmed", res.Data["status"])
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/partner/transaction/TX%201%2F2", got.path)
	assert.Equal(t, "KEY1", got.header.Get("token"))

	c, _, _, _ = newTestClient(t, http.StatusOK, `{"Success":false,"Message":"Unknown transaction"}`)
	res = c.TransactionStatus(context.Background(), "TX-1")
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown transaction", res.Message)

	c, _, _, _ = newTestClient(t, http.StatusNotFound, `{}`)
	res = c.TransactionStatus(context.Background(), "TX-1")
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 404 received from Netgíró.", res.Message)
}

func TestMissingTransactionIDMakesNoCall(t *testing.T) {
	c, _, _, calls := newTestClient(t, http.StatusOK, `{"Success":true}`)

	assert.False(t, c.ConfirmCart(context.Background(), "").Success)
	assert.False(t, c.RefundPayment(context.Background(), "", decimal.NewFromInt(1), "").Success)
	assert.False(t, c.TransactionStatus(context.Background(), "").Success)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestRequestResponseLogging(t *testing.T) {
	c, _, logs, _ := newTestClient(t, http.StatusBadRequest, `{"message":"nope"}`)
	c.RefundPayment(context.Background(), "TX-1", decimal.NewFromInt(10), "")

	sent := logs.FilterMessage("Netgíró API request sent").All()
	require.Len(t, sent, 1)
	assert.Equal(t, zapcore.DebugLevel, sent[0].Level)
	headers := sent[0].ContextMap()["headers"].(map[string]string)
	assert.Equal(t, "[redacted]", headers["token"])

	recv := logs.FilterMessage("Netgíró API response received").All()
	require.Len(t, recv, 1)
	assert.Equal(t, zapcore.ErrorLevel, recv[0].Level)
	assert.EqualValues(t, 400, recv[0].ContextMap()["status_code"])

	c, _, logs, _ = newTestClient(t, http.StatusOK, `{"Success":true}`)
	c.ConfirmCart(context.Background(), "TX-1")
	recv = logs.FilterMessage("Netgíró API response received").All()
	require.Len(t, recv, 1)
	assert.Equal(t, zapcore.DebugLevel, recv[0].Level)
}
