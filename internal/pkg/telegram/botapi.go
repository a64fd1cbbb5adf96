package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

// BotAPI provides a direct Telegram Bot API client.
type BotAPI struct {
	client *resty.Client
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewBotAPI creates a Bot API client. An empty baseURL means api.telegram.org.
func NewBotAPI(token, baseURL string) *BotAPI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &BotAPI{
		client: resty.New().
			SetBaseURL(baseURL + "/bot" + token).
			SetTimeout(defaultTimeout),
	}
}

// WithTimeout replaces the per-request timeout.
func (b *BotAPI) WithTimeout(d time.Duration) *BotAPI {
	b.client.SetTimeout(d)
	return b
}

// Call makes a raw API call to the Telegram Bot API.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) ([]byte, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram API call %s failed: %w", method, err)
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("telegram API call %s: decode: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram API call %s: %s", method, out.Description)
	}
	return resp.Body(), nil
}

// SendMessage sends an HTML formatted text message.
func (b *BotAPI) SendMessage(ctx context.Context, chatID string, text string) error {
	_, err := b.Call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	return err
}
