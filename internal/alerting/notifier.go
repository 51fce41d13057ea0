package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Transport delivers one rendered message. Implementations make exactly one
// network attempt per call; retries belong to the Dispatcher.
type Transport interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// TelegramTransport 通过 Telegram Bot API 推送消息。
type TelegramTransport struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramTransport 构造 Telegram 通道。
func NewTelegramTransport(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramTransport{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "transport_telegram").Logger(),
	}
}

// Name implements Transport.
func (n *TelegramTransport) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send 调用 sendMessage API 推送文本。
func (n *TelegramTransport) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(telegramMessage{ChatID: n.chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := n.baseURL + "/bot" + n.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("telegram 响应码异常: %d %s", resp.StatusCode, result.Description)
	case decodeErr == nil && !result.OK:
		return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
	}

	n.logger.Debug().Str("chat_id", n.chatID).Int("chars", len(text)).Msg("消息已发送 (Telegram)")
	return nil
}

var _ Transport = (*TelegramTransport)(nil)
