package telegram

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

// BotAPI is a direct Telegram Bot API client used for operator
// notifications (expiring subscriptions, reconciliation failures). It is
// deliberately not a bot framework: the chat UI lives outside this
// service.
type BotAPI struct {
	token  string
	client *resty.Client
}

// NewBotAPI creates a new Bot API client.
func NewBotAPI(token string) *BotAPI {
	return &BotAPI{
		token:  token,
		client: resty.New().SetBaseURL("https://api.telegram.org/bot" + token),
	}
}

// Enabled reports whether a token is configured.
func (b *BotAPI) Enabled() bool {
	return b != nil && b.token != ""
}

// Call makes a raw API call.
func (b *BotAPI) Call(method string, params map[string]interface{}) (string, error) {
	resp, err := b.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return "", fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	return resp.String(), nil
}

// SendMessage sends a text message to a chat.
func (b *BotAPI) SendMessage(chatID string, text string) (string, error) {
	return b.Call("sendMessage", map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}
