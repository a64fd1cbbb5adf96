package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Sign returns the lowercase hex SHA-256 of the parts concatenated in order,
// without separators. An empty part is an error; nothing is signed over a
// placeholder.
func Sign(parts ...string) (string, error) {
	h := sha256.New()
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: signature part %d is empty", ErrMissingField, i)
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether candidate equals Sign(parts...) using a
// constant-time comparison. Any empty part fails verification.
func Verify(candidate string, parts ...string) bool {
	if candidate == "" {
		return false
	}
	expected, err := Sign(parts...)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(candidate), []byte(expected))
}

// RedirectSignature signs the outbound payment form.
func RedirectSignature(secret, orderID, total, appID string) (string, error) {
	return Sign(secret, orderID, total, appID)
}

// RequestSignature signs a server-to-server v1 API call.
func RequestSignature(secret, nonce, url, body string) (string, error) {
	return Sign(secret, nonce, url, body)
}

// CallbackParams are the signed ng_* fields of a return or callback.
type CallbackParams struct {
	ReferenceNumber string
	TransactionID   string
	InvoiceNumber   string
	TotalAmount     string
	Status          string
	Signature       string
}

// Inbound parameter names.
const (
	ParamReferenceNumber = "ng_referenceNumber"
	ParamTransactionID   = "ng_transactionid"
	ParamInvoiceNumber   = "ng_invoiceNumber"
	ParamTotalAmount     = "ng_totalAmount"
	ParamStatus          = "ng_status"
	ParamSignature       = "ng_netgiroSignature"
)

// Missing returns the names of the empty required fields.
func (p CallbackParams) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{ParamReferenceNumber, p.ReferenceNumber},
		{ParamTransactionID, p.TransactionID},
		{ParamInvoiceNumber, p.InvoiceNumber},
		{ParamTotalAmount, p.TotalAmount},
		{ParamStatus, p.Status},
		{ParamSignature, p.Signature},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Validate returns ErrMissingField when a required field is empty.
func (p CallbackParams) Validate() error {
	if missing := p.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// CallbackSignature computes the inbound signature for p.
func CallbackSignature(secret string, p CallbackParams) (string, error) {
	return Sign(secret, p.ReferenceNumber, p.TransactionID, p.InvoiceNumber, p.TotalAmount, p.Status)
}

// VerifyCallback checks p.Signature against the inbound formula.
func VerifyCallback(secret string, p CallbackParams) bool {
	return Verify(p.Signature, secret, p.ReferenceNumber, p.TransactionID, p.InvoiceNumber, p.TotalAmount, p.Status)
}
