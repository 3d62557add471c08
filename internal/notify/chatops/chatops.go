package chatops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid = errors.New("chatops config invalid")
	ErrRequestFailed = errors.New("chatops request failed")
)

// Config 运营群机器人配置
type Config struct {
	WebhookURL     string `json:"webhook_url"`     // 群机器人 Webhook 地址
	TimeoutSeconds int    `json:"timeout_seconds"` // 请求超时（秒）
}

// Enabled 判断机器人是否已配置
func (c *Config) Enabled() bool {
	return c != nil && strings.TrimSpace(c.WebhookURL) != ""
}

// Send 向运营群推送一条文本消息。
func Send(ctx context.Context, cfg *Config, text string) error {
	if !cfg.Enabled() {
		return ErrConfigInvalid
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrConfigInvalid)
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	timeout := 3 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}
