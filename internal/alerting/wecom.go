package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WeComTransport posts text messages to a WeCom (企业微信) group robot webhook.
type WeComTransport struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWeComTransport builds a transport for the robot at url.
func NewWeComTransport(url string, timeout time.Duration, logger zerolog.Logger) *WeComTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeComTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "transport_wecom").Logger(),
	}
}

// Name implements Transport.
func (w *WeComTransport) Name() string { return "wecom" }

type wecomMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Send posts one text message. WeCom answers HTTP 200 even for rejected
// messages, so errcode is checked as well.
func (w *WeComTransport) Send(ctx context.Context, text string) error {
	var msg wecomMessage
	msg.MsgType = "text"
	msg.Text.Content = text

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal wecom payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create wecom request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send wecom request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read wecom response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wecom 响应码异常: %d", resp.StatusCode)
	}

	var result wecomResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("decode wecom response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("wecom errcode %d: %s", result.ErrCode, result.ErrMsg)
	}

	w.logger.Debug().Msg("消息已发送 (WeCom)")
	return nil
}

var _ Transport = (*WeComTransport)(nil)
