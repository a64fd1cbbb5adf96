package events

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// MessageSender is the part of the Telegram client used for reports.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramReporter posts a short line per event to a merchant chat.
type TelegramReporter struct {
	sender MessageSender
	chatID string
	shop   string
}

func NewTelegramReporter(sender MessageSender, chatID, shop string) *TelegramReporter {
	return &TelegramReporter{sender: sender, chatID: chatID, shop: shop}
}

func (t *TelegramReporter) Publish(ctx context.Context, ev Event) error {
	return t.sender.SendMessage(ctx, t.chatID, formatReport(t.shop, ev))
}

var reportTitles = map[string]string{
	TypeAuthorized: "🟡 Netgíró payment authorized",
	TypeConfirmed:  "🟢 Netgíró payment confirmed",
	TypeCancelled:  "⚪️ Netgíró payment cancelled",
	TypeRefunded:   "🔵 Netgíró refund processed",
	TypeFailed:     "🔴 Netgíró payment failed",
}

func formatReport(shop string, ev Event) string {
	title, ok := reportTitles[ev.Type]
	if !ok {
		title = ev.Type
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))
	if shop != "" {
		fmt.Fprintf(&b, "Shop: %s\n", html.EscapeString(shop))
	}
	fmt.Fprintf(&b, "Order: #%d\n", ev.OrderID)
	if ev.TransactionID != "" {
		fmt.Fprintf(&b, "Transaction: <code>%s</code>\n", html.EscapeString(ev.TransactionID))
	}
	if ev.Amount != "" {
		fmt.Fprintf(&b, "Amount: %s %s\n", html.EscapeString(ev.Amount), html.EscapeString(ev.Currency))
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(ev.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}
