package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramTransport sends alerts through the Telegram Bot API
type TelegramTransport struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

// NewTelegramTransport creates a Telegram transport
// baseURL may be empty to use the public Bot API
func NewTelegramTransport(baseURL, token, chatID string, timeout time.Duration) (*TelegramTransport, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if baseURL == "" {
		baseURL = defaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &TelegramTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the transport identifier
func (t *TelegramTransport) Name() string {
	return "telegram"
}

// Send posts subject and body as one message
func (t *TelegramTransport) Send(ctx context.Context, subject, body string) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     subject + "\n\n" + body,
		"disable_web_page_preview": true,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode telegram payload: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.http.Do(req)
	if err != nil {
		// The URL carries the bot token
		return fmt.Errorf("telegram request failed: %s", redact(err.Error(), t.token))
	}
	defer res.Body.Close()

	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
