package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openquant/pmccscan/pkg/models"
)

// telegramAPI is the bot API endpoint template.
const telegramAPI = "https://api.telegram.org/bot%s/sendMessage"

// TelegramChannel is the short-form primary channel.
type TelegramChannel struct {
	botToken string
	chatID   string
	topN     int
	client   *http.Client
}

// NewTelegramChannel creates the chat channel. topN caps the rendered
// opportunity lines.
func NewTelegramChannel(botToken, chatID string, topN int) *TelegramChannel {
	if topN <= 0 {
		topN = 10
	}
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		topN:     topN,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Send posts the formatted summary. 4xx responses other than 429 are
// permanent (bad chat id, policy refusal) and wrap ErrNonRetryable.
func (t *TelegramChannel) Send(ctx context.Context, results *models.ScanResults) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     FormatChat(results, t.topN),
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf(telegramAPI, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("telegram rejected (%d): %s: %w", resp.StatusCode, detail, ErrNonRetryable)
	}
	return fmt.Errorf("telegram send failed (%d): %s", resp.StatusCode, detail)
}
