package sens

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("sens config invalid")
	ErrMissingParameter = errors.New("sens missing parameter")
	ErrRequestFailed    = errors.New("sens request failed")
	ErrDeliveryRejected = errors.New("sens delivery rejected")
)

// Config 消息服务配置（NCP SENS）
type Config struct {
	APIBaseURL        string `json:"api_base_url"`        // 网关地址
	AccessKey         string `json:"access_key"`          // API 访问密钥
	SecretKey         string `json:"secret_key"`          // API 签名密钥
	AlimtalkServiceID string `json:"alimtalk_service_id"` // 알림톡 服务ID
	SMSServiceID      string `json:"sms_service_id"`      // 短信服务ID
	PlusFriendID      string `json:"plus_friend_id"`      // 카카오 채널ID
	SenderNumber      string `json:"sender_number"`       // 短信发送号码
	TimeoutSeconds    int    `json:"timeout_seconds"`     // 请求超时（秒）
}

// AlimtalkInput 알림톡 发送输入
type AlimtalkInput struct {
	To           string
	TemplateCode string
	Content      string
	ReserveTime  string // 预约发送时间（yyyy-MM-dd HH:mm），为空立即发送
}

// SMSInput 短信发送输入
type SMSInput struct {
	To          string
	Content     string
	ReserveTime string
}

// SendResult 发送受理结果
type SendResult struct {
	RequestID  string
	StatusCode string
	Raw        map[string]interface{}
}

// ValidateConfig 校验消息服务配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return fmt.Errorf("%w: access_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	return nil
}

// SendAlimtalk 发送알림톡模板消息。接口为异步受理，2xx 仅表示已进入发送队列。
func SendAlimtalk(ctx context.Context, cfg *Config, input AlimtalkInput) (*SendResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AlimtalkServiceID) == "" {
		return nil, fmt.Errorf("%w: alimtalk_service_id is required", ErrConfigInvalid)
	}
	to := normalizePhone(input.To)
	if to == "" {
		return nil, fmt.Errorf("%w: to", ErrMissingParameter)
	}
	if strings.TrimSpace(input.TemplateCode) == "" {
		return nil, fmt.Errorf("%w: template_code", ErrMissingParameter)
	}

	body := map[string]interface{}{
		"plusFriendId": cfg.PlusFriendID,
		"templateCode": input.TemplateCode,
		"messages": []map[string]interface{}{
			{
				"to":      to,
				"content": input.Content,
			},
		},
	}
	if strings.TrimSpace(input.ReserveTime) != "" {
		body["reserveTime"] = input.ReserveTime
	}

	uri := fmt.Sprintf("/alimtalk/v2/services/%s/messages", cfg.AlimtalkServiceID)
	return send(ctx, cfg, uri, body)
}

// SendSMS 发送短信。알림톡发送失败时的兜底通道。
func SendSMS(ctx context.Context, cfg *Config, input SMSInput) (*SendResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.SMSServiceID) == "" {
		return nil, fmt.Errorf("%w: sms_service_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SenderNumber) == "" {
		return nil, fmt.Errorf("%w: sender_number is required", ErrConfigInvalid)
	}
	to := normalizePhone(input.To)
	if to == "" {
		return nil, fmt.Errorf("%w: to", ErrMissingParameter)
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content", ErrMissingParameter)
	}

	smsType := "SMS"
	if len([]byte(content)) > 90 {
		smsType = "LMS"
	}
	body := map[string]interface{}{
		"type":    smsType,
		"from":    normalizePhone(cfg.SenderNumber),
		"content": content,
		"messages": []map[string]interface{}{
			{"to": to},
		},
	}
	if strings.TrimSpace(input.ReserveTime) != "" {
		body["reserveTime"] = input.ReserveTime
	}

	uri := fmt.Sprintf("/sms/v2/services/%s/messages", cfg.SMSServiceID)
	return send(ctx, cfg, uri, body)
}

// NormalizePhone 去掉手机号中的连字符与空格，只保留数字。
func NormalizePhone(raw string) string {
	return normalizePhone(raw)
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func send(ctx context.Context, cfg *Config, uri string, body map[string]interface{}) (*SendResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + uri
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("x-ncp-apigw-timestamp", timestamp)
	req.Header.Set("x-ncp-iam-access-key", cfg.AccessKey)
	req.Header.Set("x-ncp-apigw-signature-v2", makeSignature(cfg, http.MethodPost, uri, timestamp))

	client := &http.Client{Timeout: cfg.timeout()}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrDeliveryRejected, resp.StatusCode)
	}
	result := &SendResult{Raw: raw}
	if v, ok := raw["requestId"].(string); ok {
		result.RequestID = v
	}
	if v, ok := raw["statusCode"].(string); ok {
		result.StatusCode = v
	}
	return result, nil
}

// makeSignature 按网关要求对 "{method} {uri}\n{timestamp}\n{accessKey}" 做 HMAC-SHA256。
func makeSignature(cfg *Config, method, uri, timestamp string) string {
	message := method + " " + uri + "\n" + timestamp + "\n" + cfg.AccessKey
	mac := hmac.New(sha256.New, []byte(cfg.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}
