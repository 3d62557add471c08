package nicepay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("nicepay config invalid")
	ErrMissingParameter = errors.New("nicepay missing parameter")
	ErrRequestFailed    = errors.New("nicepay request failed")
	ErrResponseInvalid  = errors.New("nicepay response invalid")
)

// 승인 결과码：0000 为即时成功，3001 为信用卡渠道的成功码。
var approveSuccessCodes = map[string]bool{
	"0000": true,
	"3001": true,
}

// Config 支付网关配置
type Config struct {
	APIBaseURL     string `json:"api_base_url"`    // 网关地址
	MerchantID     string `json:"merchant_id"`     // 商户号（MID）
	MerchantKey    string `json:"merchant_key"`    // 商户密钥（签名用）
	ApprovePath    string `json:"approve_path"`    // 승인接口路径
	TimeoutSeconds int    `json:"timeout_seconds"` // 请求超时（秒）
}

// ApproveInput 승인（二阶段确认）输入
type ApproveInput struct {
	TID           string // 认证阶段返回的交易号
	MID           string // 商户号，为空时取配置
	Moid          string // 商户订单号
	Amount        string // 认证金额，须与下单金额一致
	TaxFreeAmount string // 免税金额，为空时按 0 处理
}

// Result 승인结果
type Result struct {
	Success    bool
	ResultCode string
	ResultMsg  string
	TID        string
	Moid       string
	Amount     string
	Raw        map[string]interface{}
}

// ValidateConfig 校验网关配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantKey) == "" {
		return fmt.Errorf("%w: merchant_key is required", ErrConfigInvalid)
	}
	return nil
}

// Approve 发起승인请求。认证回调成功后必须调用，否则交易不会入账。
func Approve(ctx context.Context, cfg *Config, input ApproveInput) (*Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	tid := strings.TrimSpace(input.TID)
	moid := strings.TrimSpace(input.Moid)
	amt := strings.TrimSpace(input.Amount)
	if tid == "" {
		return nil, fmt.Errorf("%w: tid", ErrMissingParameter)
	}
	if moid == "" {
		return nil, fmt.Errorf("%w: moid", ErrMissingParameter)
	}
	if amt == "" {
		return nil, fmt.Errorf("%w: amt", ErrMissingParameter)
	}
	mid := strings.TrimSpace(input.MID)
	if mid == "" {
		mid = strings.TrimSpace(cfg.MerchantID)
	}
	taxFree := strings.TrimSpace(input.TaxFreeAmount)
	if taxFree == "" {
		taxFree = "0"
	}

	ediDate := time.Now().Format("20060102150405")
	params := map[string]string{
		"TID":        tid,
		"MID":        mid,
		"Moid":       moid,
		"Amt":        amt,
		"TaxFreeAmt": taxFree,
		"EdiDate":    ediDate,
		"SignData":   signApprove(mid, amt, ediDate, cfg.MerchantKey),
		"CharSet":    "utf-8",
		"EdiType":    "JSON",
	}

	endpoint := buildEndpoint(cfg.APIBaseURL, cfg.approvePath())
	respBytes, err := postForm(ctx, endpoint, params, cfg.timeout())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		ResultCode string `json:"ResultCode"`
		ResultMsg  string `json:"ResultMsg"`
		TID        string `json:"TID"`
		Moid       string `json:"Moid"`
		Amt        string `json:"Amt"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, ErrResponseInvalid
	}
	code := strings.TrimSpace(resp.ResultCode)
	if code == "" {
		return nil, ErrResponseInvalid
	}
	result := &Result{
		Success:    approveSuccessCodes[code],
		ResultCode: code,
		ResultMsg:  strings.TrimSpace(resp.ResultMsg),
		TID:        strings.TrimSpace(resp.TID),
		Moid:       strings.TrimSpace(resp.Moid),
		Amount:     strings.TrimSpace(resp.Amt),
		Raw:        raw,
	}
	if result.TID == "" {
		result.TID = tid
	}
	if result.Moid == "" {
		result.Moid = moid
	}
	return result, nil
}

func (c *Config) approvePath() string {
	if strings.TrimSpace(c.ApprovePath) != "" {
		return c.ApprovePath
	}
	return "/webapi/pay_process.jsp"
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

func signApprove(mid, amt, ediDate, merchantKey string) string {
	sum := sha256.Sum256([]byte(mid + amt + ediDate + merchantKey))
	return hex.EncodeToString(sum[:])
}

func buildEndpoint(baseURL, apiPath string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	path := strings.TrimSpace(apiPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func postForm(ctx context.Context, endpoint string, params map[string]string, timeout time.Duration) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
