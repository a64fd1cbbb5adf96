package payment

import (
	"fmt"
	"net/url"
	"strings"
)

// ConfirmationType selects when a payment is captured.
type ConfirmationType int

const (
	ConfirmAutomatic      ConfirmationType = 0
	ConfirmServerCallback ConfirmationType = 1
	ConfirmManual         ConfirmationType = 2
)

func (t ConfirmationType) String() string {
	switch t {
	case ConfirmAutomatic:
		return "automatic"
	case ConfirmServerCallback:
		return "server-callback"
	case ConfirmManual:
		return "manual"
	}
	return fmt.Sprintf("ConfirmationType(%d)", int(t))
}

// Valid reports whether t is one of the known selectors.
func (t ConfirmationType) Valid() bool {
	return t >= ConfirmAutomatic && t <= ConfirmManual
}

// Provider status codes sent as ng_status.
const (
	StatusUnconfirmed = "1"
	StatusConfirmed   = "2"
	StatusCancelled   = "5"
)

// Provider endpoints per mode.
const (
	testPaymentURL    = "https://securepay.test.netgiro.is/"
	testAPIURL        = "https://api.test.netgiro.is/v1/"
	testPartnerAPIURL = "https://partner-api.test.netgiro.is/"
	livePaymentURL    = "https://securepay.netgiro.is/v1/"
	liveAPIURL        = "https://api.netgiro.is/v1/"
	livePartnerAPIURL = "https://api.netgiro.is/partner/"
)

// Settings is the gateway configuration. It is built once at startup and
// shared read-only by every component.
type Settings struct {
	ApplicationID    string
	SecretKey        string
	TestMode         bool
	ConfirmationType ConfirmationType
	SendItems        bool
	RoundNumbers     bool
	ShopName         string
	ClientInfo       string

	// Browser-facing URLs.
	SuccessURL       string
	CallbackURL      string
	CancelURL        string
	CheckoutURL      string
	OrderReceivedURL string

	// Optional endpoint overrides; empty means the mode default.
	PaymentURL    string
	APIURL        string
	PartnerAPIURL string
}

// GatewayURL returns the payment form destination.
func (s *Settings) GatewayURL() string {
	return pick(s.PaymentURL, testPaymentURL, livePaymentURL, s.TestMode)
}

// APIBaseURL returns the v1 API base, with a trailing slash.
func (s *Settings) APIBaseURL() string {
	return pick(s.APIURL, testAPIURL, liveAPIURL, s.TestMode)
}

// PartnerBaseURL returns the partner API base, with a trailing slash.
func (s *Settings) PartnerBaseURL() string {
	return pick(s.PartnerAPIURL, testPartnerAPIURL, livePartnerAPIURL, s.TestMode)
}

// OrderReceivedFor returns the thank-you page for an order.
func (s *Settings) OrderReceivedFor(ref string) string {
	return withQuery(s.OrderReceivedURL, "order", ref)
}

func pick(override, test, live string, testMode bool) string {
	if override != "" {
		if !strings.HasSuffix(override, "/") {
			override += "/"
		}
		return override
	}
	if testMode {
		return test
	}
	return live
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
