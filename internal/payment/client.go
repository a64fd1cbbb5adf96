package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"netgiropay/internal/metrics"
	"netgiropay/internal/pkg/httpclient"
)

// RequestTimeout bounds every provider call. Calls are never retried.
const RequestTimeout = 25 * time.Second

const (
	opConfirm = "confirm"
	opRefund  = "refund"
	opStatus  = "status"

	invalidJSONMessage = "Invalid JSON response from Netgíró."
	maxReasonRunes     = 100
	idempotencyKeyLen  = 40
)

// Result is the uniform outcome of a provider call.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
	// StatusCode is zero when the request never got a response.
	StatusCode int
	// TransportErr is set only for network-level failures.
	TransportErr error
	// APILevelSuccess mirrors the body's Success field when it was present.
	APILevelSuccess bool
}

// ProviderAPI is the set of provider operations used by the gateway.
type ProviderAPI interface {
	ConfirmCart(ctx context.Context, transactionID string) *Result
	RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) *Result
	TransactionStatus(ctx context.Context, transactionID string) *Result
}

// Client talks to the provider's v1 and partner APIs.
type Client struct {
	settings *Settings
	http     *httpclient.Client
	logger   *zap.Logger
	metrics  *metrics.Metrics

	now  func() time.Time
	salt func() string
}

// NewClient creates a provider client for s.
func NewClient(s *Settings, logger *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		settings: s,
		http:     httpclient.New(RequestTimeout).WithHeader("User-Agent", "netgiropay/1.0"),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		salt:     func() string { return uuid.NewString() },
	}
}

var _ ProviderAPI = (*Client)(nil)

// ConfirmCart captures an authorized payment through the v1 API.
// Success requires HTTP 2xx and Success=true in the body.
func (c *Client) ConfirmCart(ctx context.Context, transactionID string) *Result {
	if transactionID == "" {
		return failure(ErrMissingTransactionID.Error())
	}
	endpoint := c.settings.APIBaseURL() + "checkout/ConfirmCart"
	body, err := json.Marshal(struct {
		TransactionID string `json:"transactionId"`
	}{transactionID})
	if err != nil {
		return failure(fmt.Sprintf("encode confirm payload: %v", err))
	}

	nonce := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := RequestSignature(c.settings.SecretKey, nonce, endpoint, string(body))
	if err != nil {
		c.logger.Error("netgiro confirm not signed", zap.Error(err))
		return failure(err.Error())
	}
	headers := map[string]string{
		"Content-Type":        "application/json; charset=utf-8",
		"Accept":              "application/json",
		"netgiro_appkey":      c.settings.ApplicationID,
		"netgiro_nonce":       nonce,
		"netgiro_signature":   sig,
		"netgiro-api-request": "true",
	}

	start := time.Now()
	resp, res := c.send(ctx, http.MethodPost, endpoint, headers, body)
	if res == nil {
		res = c.handleAPIResponse(resp, "checkout/ConfirmCart")
	}
	c.metrics.APIRequest(opConfirm, res.Success, time.Since(start))
	return res
}

// RefundPayment refunds through the partner API. HTTP 200 alone means
// success; the body is read only to explain a failure.
func (c *Client) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) *Result {
	if transactionID == "" {
		return failure(ErrMissingTransactionID.Error())
	}
	if c.settings.SecretKey == "" {
		return failure(fmt.Sprintf("%v: secret key", ErrMissingField))
	}
	endpoint := c.settings.PartnerBaseURL() + "refund"

	payload := refundPayload{
		TransactionID:  transactionID,
		RefundAmount:   RoundAmount(amount).IntPart(),
		IdempotencyKey: c.idempotencyKey(transactionID + "_" + amount.String()),
		Reason:         truncateRunes(reason, maxReasonRunes),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(fmt.Sprintf("encode refund payload: %v", err))
	}
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"Accept":       "application/json",
		"token":        c.settings.SecretKey,
	}

	start := time.Now()
	resp, res := c.send(ctx, http.MethodPost, endpoint, headers, body)
	if res == nil {
		res = c.handleRefundResponse(resp, "refund")
	}
	c.metrics.APIRequest(opRefund, res.Success, time.Since(start))
	return res
}

// TransactionStatus fetches transaction details from the partner API.
// Success requires HTTP 200 and no explicit Success=false.
func (c *Client) TransactionStatus(ctx context.Context, transactionID string) *Result {
	if transactionID == "" {
		return failure(ErrMissingTransactionID.Error())
	}
	if c.settings.SecretKey == "" {
		return failure(fmt.Sprintf("%v: secret key", ErrMissingField))
	}
	endpoint := "transaction/" + url.PathEscape(transactionID)
	headers := map[string]string{
		"Accept": "application/json",
		"token":  c.settings.SecretKey,
	}

	start := time.Now()
	resp, res := c.send(ctx, http.MethodGet, c.settings.PartnerBaseURL()+endpoint, headers, nil)
	if res == nil {
		res = c.handleStatusResponse(resp, endpoint)
	}
	c.metrics.APIRequest(opStatus, res.Success, time.Since(start))
	return res
}

type refundPayload struct {
	TransactionID  string `json:"transactionId"`
	RefundAmount   int64  `json:"refundAmount"`
	IdempotencyKey string `json:"idempotencyKey"`
	Reason         string `json:"reason,omitempty"`
}

// send logs the exchange and returns either a response or a transport failure.
func (c *Client) send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte) (*httpclient.Response, *Result) {
	c.logger.Debug("Netgíró API request sent",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Any("headers", redactHeaders(headers)),
		zap.ByteString("body", body),
		zap.Duration("timeout", c.http.Timeout()),
	)

	resp, err := c.http.Do(ctx, method, endpoint, headers, body)
	if err != nil {
		c.logger.Error("Netgíró HTTP error", zap.String("url", endpoint), zap.Error(err))
		return nil, &Result{Message: err.Error(), TransportErr: err}
	}

	level := zap.DebugLevel
	if resp.StatusCode >= http.StatusBadRequest {
		level = zap.ErrorLevel
	}
	c.logger.Log(level, "Netgíró API response received",
		zap.String("url", endpoint),
		zap.Int("status_code", resp.StatusCode),
		zap.Any("headers", resp.Header),
		zap.ByteString("response_body", resp.Body),
	)
	return resp, nil
}

func (c *Client) handleAPIResponse(resp *httpclient.Response, endpoint string) *Result {
	data, err := decodeBody(resp.Body)
	if err != nil {
		c.logger.Error("Netgíró invalid JSON response", zap.String("endpoint", endpoint), zap.Error(err))
		return &Result{Message: invalidJSONMessage, StatusCode: resp.StatusCode}
	}

	apiSuccess := data["Success"] == true
	httpSuccess := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !apiSuccess || !httpSuccess {
		msg := messageFrom(data)
		if msg == "" && !httpSuccess {
			msg = fmt.Sprintf("HTTP %d error.", resp.StatusCode)
		}
		if msg == "" {
			msg = "API request failed."
		}
		c.logger.Error("Netgíró API error",
			zap.String("endpoint", endpoint),
			zap.String("message", msg),
			zap.Int("status", resp.StatusCode),
			zap.Any("api_success_field", data["Success"]),
		)
		return &Result{Message: msg, Data: data, StatusCode: resp.StatusCode, APILevelSuccess: apiSuccess}
	}

	msg := messageFrom(data)
	if msg == "" {
		msg = "Operation successful."
	}
	c.logger.Info("Netgíró API success", zap.String("endpoint", endpoint), zap.String("message", msg))
	return &Result{Success: true, Message: msg, Data: data, StatusCode: resp.StatusCode, APILevelSuccess: true}
}

func (c *Client) handleRefundResponse(resp *httpclient.Response, endpoint string) *Result {
	if resp.StatusCode == http.StatusOK {
		msg := "Refund processed successfully (HTTP 200 OK received)."
		c.logger.Info("Netgíró API success", zap.String("endpoint", endpoint), zap.String("message", msg))
		return &Result{Success: true, Message: msg, StatusCode: resp.StatusCode, APILevelSuccess: true}
	}

	data, err := decodeBody(resp.Body)
	if err != nil {
		data = nil
	}
	msg := messageFrom(data)
	if msg == "" {
		msg = fmt.Sprintf("Refund failed with HTTP status %d.", resp.StatusCode)
	}
	c.logger.Error("Netgíró API error",
		zap.String("endpoint", endpoint),
		zap.String("message", msg),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("response_body", resp.Body),
	)
	return &Result{Message: msg, Data: data, StatusCode: resp.StatusCode, APILevelSuccess: true}
}

func (c *Client) handleStatusResponse(resp *httpclient.Response, endpoint string) *Result {
	data, err := decodeBody(resp.Body)
	if err != nil {
		c.logger.Error("Netgíró GET invalid JSON response", zap.String("endpoint", endpoint), zap.Error(err))
		return &Result{Message: invalidJSONMessage, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		msg := messageFrom(data)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d received from Netgíró.", resp.StatusCode)
		}
		c.logger.Error("Netgíró GET error",
			zap.String("endpoint", endpoint),
			zap.String("message", msg),
			zap.Int("status", resp.StatusCode),
		)
		return &Result{Message: msg, Data: data, StatusCode: resp.StatusCode, APILevelSuccess: true}
	}

	if v, ok := data["Success"]; ok && v == false {
		msg := messageFrom(data)
		if msg == "" {
			msg = "Netgíró returned Success=false."
		}
		c.logger.Warn("Netgíró GET indicated failure", zap.String("endpoint", endpoint), zap.String("message", msg))
		return &Result{Message: msg, Data: data, StatusCode: resp.StatusCode}
	}

	c.logger.Info("Netgíró GET success", zap.String("endpoint", endpoint))
	return &Result{Success: true, Message: "Transaction retrieved.", Data: data, StatusCode: resp.StatusCode, APILevelSuccess: true}
}

func (c *Client) idempotencyKey(seed string) string {
	sum := sha256.Sum256([]byte(seed + "_" + c.salt()))
	return hex.EncodeToString(sum[:])[:idempotencyKeyLen]
}

func failure(msg string) *Result {
	return &Result{Message: msg}
}

// decodeBody parses a JSON object body. Anything else, an empty body
// included, is invalid.
func decodeBody(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("response body is not a JSON object")
	}
	return data, nil
}

func messageFrom(data map[string]any) string {
	for _, k := range []string{"Message", "message"} {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func redactHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if k == "token" {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
