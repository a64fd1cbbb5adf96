package payment

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"netgiropay/internal/models"
)

var urlValidator = validator.New()

// Field is one hidden input of the payment form.
type Field struct {
	Name  string
	Value string
}

// Item is one line item block of the payment form.
type Item struct {
	ProductNo string
	Name      string
	UnitPrice string
	Amount    string
	Quantity  string
}

// Form is the outbound redirect payload.
type Form struct {
	Action string
	Fields []Field
	Items  []Item
}

// AllFields flattens the form into submission order, with item blocks as
// Items[i].Key entries after the fixed fields.
func (f *Form) AllFields() []Field {
	out := make([]Field, 0, len(f.Fields)+len(f.Items)*5)
	out = append(out, f.Fields...)
	for i, it := range f.Items {
		prefix := "Items[" + strconv.Itoa(i) + "]."
		out = append(out,
			Field{prefix + "ProductNo", it.ProductNo},
			Field{prefix + "Name", it.Name},
			Field{prefix + "UnitPrice", it.UnitPrice},
			Field{prefix + "Amount", it.Amount},
			Field{prefix + "Quantity", it.Quantity},
		)
	}
	return out
}

// Value returns the first field named name.
func (f *Form) Value(name string) (string, bool) {
	for _, fl := range f.AllFields() {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return "", false
}

// BuildForm assembles the signed redirect payload for order.
func BuildForm(s *Settings, order *models.Order) (*Form, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}
	total := RoundAmount(order.Total)
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTotal, order.Total.String())
	}

	action := s.GatewayURL()
	if err := validateURL(action); err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if err := validateURL(s.CancelURL); err != nil {
		return nil, fmt.Errorf("cancel url: %w", err)
	}

	ref := order.Reference()
	totalStr := total.String()
	sig, err := RedirectSignature(s.SecretKey, ref, totalStr, s.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("sign payment form: %w", err)
	}

	form := &Form{Action: action}
	add := func(name, value string) {
		form.Fields = append(form.Fields, Field{Name: name, Value: value})
	}
	add("ApplicationID", s.ApplicationID)
	add("Iframe", "false")
	add("PaymentSuccessfulURL", s.SuccessURL)
	add("PaymentCancelledURL", s.CancelURL)
	add("ConfirmationType", strconv.Itoa(int(s.ConfirmationType)))
	add("ReferenceNumber", ref)
	add("TotalAmount", totalStr)
	add("Signature", sig)
	add("PrefixUrlParameters", "true")
	add("ClientInfo", s.ClientInfo)

	if s.ConfirmationType == ConfirmServerCallback {
		add("PaymentConfirmedURL", s.CallbackURL)
	}
	if order.ShippingTotal.IsPositive() {
		add("ShippingAmount", order.ShippingTotal.Ceil().String())
	}
	if order.DiscountTotal.IsPositive() {
		add("DiscountAmount", order.DiscountTotal.Ceil().String())
	}

	if !s.SendItems {
		add("Description", fmt.Sprintf("Order #%s from %s", ref, s.ShopName))
		return form, nil
	}
	for _, it := range order.Items {
		form.Items = append(form.Items, Item{
			ProductNo: it.ProductID,
			Name:      it.Name,
			UnitPrice: s.itemAmount(it.UnitPrice),
			Amount:    s.itemAmount(it.LineTotal),
			Quantity:  strconv.Itoa(it.Quantity),
		})
	}
	return form, nil
}

// RoundAmount rounds to the nearest whole currency unit, halves away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

func (s *Settings) itemAmount(d decimal.Decimal) string {
	if s.RoundNumbers {
		return RoundAmount(d).String()
	}
	return d.String()
}

func validateURL(raw string) error {
	if err := urlValidator.Var(raw, "required,http_url"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
