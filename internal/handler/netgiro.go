package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"netgiropay/internal/models"
	"netgiropay/internal/payment"
)

const paramsContextKey = "netgiro_params"

// NetgiroHandler serves the customer-facing pay page and the provider's
// return and callback entry points.
type NetgiroHandler struct {
	settings  *payment.Settings
	store     payment.OrderStore
	processor *payment.Processor
	logger    *zap.Logger
}

func NewNetgiroHandler(s *payment.Settings, store payment.OrderStore, p *payment.Processor, logger *zap.Logger) *NetgiroHandler {
	return &NetgiroHandler{settings: s, store: store, processor: p, logger: logger}
}

var payPage = template.Must(template.New("pay").Parse(`<!DOCTYPE html>
<html lang="is">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Helvetica, Arial, sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
        button { background: #e4007c; color: #fff; border: 0; border-radius: 4px; padding: 12px 24px; font-size: 16px; cursor: pointer; }
    </style>
</head>
<body{{if .Form}} onload="document.getElementById('netgiro_payment_form').submit()"{{end}}>
    <div class="box">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
        {{with .Form}}
        <form action="{{.Action}}" method="post" id="netgiro_payment_form">
            {{range .AllFields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
            {{end}}
            <button type="submit">Greiða með Netgíró</button>
        </form>
        {{end}}
        {{if .CancelURL}}<p><a href="{{.CancelURL}}">Hætta við og fara í körfu</a></p>{{end}}
    </div>
</body>
</html>`))

// PayPage renders the auto-submitting redirect form for an order.
func (h *NetgiroHandler) PayPage(c echo.Context) error {
	orderID, ok := models.ParseOrderID(c.Param("orderID"))
	if !ok {
		return h.renderPage(c, http.StatusNotFound, "Pöntun fannst ekki", "Order not found.", nil)
	}
	order, err := h.store.FindOrder(c.Request().Context(), orderID)
	if err != nil {
		if errors.Is(err, payment.ErrOrderNotFound) {
			return h.renderPage(c, http.StatusNotFound, "Pöntun fannst ekki", "Order not found.", nil)
		}
		h.logger.Error("load order for pay page", zap.Uint("order_id", orderID), zap.Error(err))
		return h.renderPage(c, http.StatusInternalServerError, "Villa", "Could not load the order.", nil)
	}
	if !order.Status.NeedsPayment() {
		return h.renderPage(c, http.StatusConflict, "Pöntun þegar greidd", "This order does not need payment.", nil)
	}

	form, err := payment.BuildForm(h.settings, order)
	if err != nil {
		h.logger.Error("build netgiro form", zap.Uint("order_id", orderID), zap.Error(err))
		return h.renderPage(c, http.StatusUnprocessableEntity, "Villa", "Unable to start the Netgíró payment.", nil)
	}
	return h.renderPage(c, http.StatusOK, "Netgíró", "Þú ert að fara á greiðslusíðu Netgíró.", form)
}

func (h *NetgiroHandler) renderPage(c echo.Context, status int, title, message string, form *payment.Form) error {
	data := map[string]interface{}{
		"Title":     title,
		"Message":   message,
		"Form":      form,
		"CancelURL": h.settings.CancelURL,
	}
	var buf bytes.Buffer
	if err := payPage.Execute(&buf, data); err != nil {
		return c.String(http.StatusInternalServerError, "template error")
	}
	return c.HTMLBlob(status, buf.Bytes())
}

// Return handles the customer's browser coming back from Netgíró.
func (h *NetgiroHandler) Return(c echo.Context) error {
	params, err := CallbackParamsFrom(c)
	if err != nil {
		h.logger.Warn("netgiro return body unreadable", zap.Error(err))
	}
	out := h.processor.HandleReturn(c.Request().Context(), params)
	return c.Redirect(http.StatusFound, out.RedirectURL)
}

// Callback handles the provider's server-to-server confirmation.
func (h *NetgiroHandler) Callback(c echo.Context) error {
	params, err := CallbackParamsFrom(c)
	if err != nil {
		h.logger.Warn("netgiro callback body unreadable", zap.Error(err))
		return c.String(http.StatusBadRequest, "Invalid request body")
	}
	out := h.processor.HandleCallback(c.Request().Context(), params)
	return c.String(out.HTTPStatus, out.Body)
}

// ReferenceFromRequest returns the order reference of an inbound request,
// or "" when it has none.
func ReferenceFromRequest(c echo.Context) string {
	params, _ := CallbackParamsFrom(c)
	return strings.TrimSpace(params.ReferenceNumber)
}

// CallbackParamsFrom reads the ng_* parameters from a JSON body, a form body
// or the query string. JSON values win; missing ones fall back to the query.
// The result is cached on the context and the body is restored.
func CallbackParamsFrom(c echo.Context) (payment.CallbackParams, error) {
	if p, ok := c.Get(paramsContextKey).(payment.CallbackParams); ok {
		return p, nil
	}

	req := c.Request()
	values := map[string]string{}
	var parseErr error

	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) && req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			parseErr = err
		} else if len(bytes.TrimSpace(raw)) > 0 {
			values, parseErr = decodeJSONParams(raw)
		}
	}

	get := func(name string) string {
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		return c.FormValue(name)
	}
	p := payment.CallbackParams{
		ReferenceNumber: get(payment.ParamReferenceNumber),
		TransactionID:   get(payment.ParamTransactionID),
		InvoiceNumber:   get(payment.ParamInvoiceNumber),
		TotalAmount:     get(payment.ParamTotalAmount),
		Status:          get(payment.ParamStatus),
		Signature:       get(payment.ParamSignature),
	}
	if parseErr == nil {
		c.Set(paramsContextKey, p)
	}
	return p, parseErr
}

func decodeJSONParams(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		}
	}
	return out, nil
}
