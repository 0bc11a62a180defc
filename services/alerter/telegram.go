package alerter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vishalnemlekar/instabot/helpers"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// Notifier delivers one message to the operator channel
type Notifier interface {
	Send(ctx context.Context, text string, html bool) error
}

// TelegramNotifier posts messages through the Bot API sendMessage method
type TelegramNotifier struct {
	endpoint string
	chatID   string
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier for chatID. apiURL is normally
// https://api.telegram.org.
func NewTelegramNotifier(apiURL, token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		endpoint: strings.TrimRight(apiURL, "/") + "/bot" + token + "/sendMessage",
		chatID:   chatID,
	}
}

// Send implements Notifier
func (t *TelegramNotifier) Send(ctx context.Context, text string, html bool) error {
	req := sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	}
	if html {
		req.ParseMode = "HTML"
	}

	body, err := helpers.PostJSON(ctx, t.endpoint, req)
	if err != nil {
		// the endpoint carries the bot token, keep it out of logs
		return pkgerrors.NewNotification("telegram", "sendMessage failed", redactToken(err, t.endpoint))
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return pkgerrors.NewNotification("telegram", "unreadable sendMessage response", err)
	}
	if !resp.OK {
		return pkgerrors.NewNotification("telegram", "sendMessage rejected: "+resp.Description, nil)
	}
	return nil
}

func redactToken(err error, endpoint string) error {
	msg := err.Error()
	if !strings.Contains(msg, endpoint) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, endpoint, "<telegram>/sendMessage"))
}
