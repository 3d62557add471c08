package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/payment/nicepay"
	"github.com/budo-next/internal/repository"

	"go.uber.org/zap"
)

// PaymentService 支付服务。处理网关认证回调与승인（二阶段确认）。
type PaymentService struct {
	orderRepo  repository.OrderRepository
	notifySvc  *NotifyService
	gatewayCfg *nicepay.Config
	baseURL    string
}

// NewPaymentService 创建支付服务
func NewPaymentService(orderRepo repository.OrderRepository, notifySvc *NotifyService, paymentCfg *config.PaymentConfig, baseURL string) *PaymentService {
	svc := &PaymentService{
		orderRepo: orderRepo,
		notifySvc: notifySvc,
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
	if paymentCfg != nil {
		svc.gatewayCfg = &nicepay.Config{
			APIBaseURL:     paymentCfg.APIBaseURL,
			MerchantID:     paymentCfg.MerchantID,
			MerchantKey:    paymentCfg.MerchantKey,
			TimeoutSeconds: paymentCfg.TimeoutSeconds,
		}
	}
	return svc
}

// AuthCallbackInput 网关认证回调输入（GET/POST 参数归一化后）
type AuthCallbackInput struct {
	AuthResultCode string
	AuthResultMsg  string
	TxTid          string
	Moid           string
	Amount         string
	MID            string
	PayMethod      string
}

// CallbackResult 回调处理结果，handler 据此 302 跳转
type CallbackResult struct {
	Success     bool
	OrderNo     string
	Message     string
	RedirectURL string
}

// ApproveInput 승인重试输入
type ApproveInput struct {
	TID           string
	MID           string
	OrderNo       string
	Amount        string
	TaxFreeAmount string
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// HandleAuthCallback 处理网关认证回调。
// 认证成功才发起승인；无论结果如何都返回跳转地址，绝不向网关回 JSON。
func (s *PaymentService) HandleAuthCallback(ctx context.Context, input AuthCallbackInput) *CallbackResult {
	moid := strings.TrimSpace(input.Moid)
	log := paymentLogger(
		"callback_moid", moid,
		"callback_tid", strings.TrimSpace(input.TxTid),
		"callback_auth_code", strings.TrimSpace(input.AuthResultCode),
	)
	log.Infow("payment_callback_received")

	if moid == "" {
		log.Warnw("payment_callback_moid_missing")
		return s.failureResult("", "잘못된 결제 요청입니다")
	}
	order, err := s.orderRepo.GetByOrderNo(moid)
	if err != nil {
		log.Errorw("payment_callback_order_fetch_failed", "error", err)
		return s.failureResult(moid, "주문 조회에 실패했습니다")
	}
	if order == nil {
		log.Warnw("payment_callback_order_not_found")
		return s.failureResult(moid, "주문을 찾을 수 없습니다")
	}

	// 幂等处理：已支付的订单直接返回成功，不重复승인
	if order.Status == constants.OrderStatusPaid ||
		order.Status == constants.OrderStatusConfirmed ||
		order.Status == constants.OrderStatusDelivered {
		log.Infow("payment_callback_idempotent_success", "current_status", order.Status)
		return s.successResult(order.OrderNo)
	}
	if order.Status != constants.OrderStatusPending {
		log.Warnw("payment_callback_order_terminal", "current_status", order.Status)
		return s.failureResult(order.OrderNo, "이미 종료된 주문입니다")
	}

	if strings.TrimSpace(input.AuthResultCode) != constants.GatewayAuthSuccessCode {
		log.Warnw("payment_callback_auth_failed", "auth_msg", input.AuthResultMsg)
		s.markOrderFailed(order, models.JSON{
			"auth_result_code": input.AuthResultCode,
			"auth_result_msg":  input.AuthResultMsg,
		})
		return s.failureResult(order.OrderNo, displayMessage(input.AuthResultMsg, "결제 인증에 실패했습니다"))
	}

	result, err := nicepay.Approve(ctx, s.gatewayCfg, nicepay.ApproveInput{
		TID:    input.TxTid,
		MID:    input.MID,
		Moid:   order.OrderNo,
		Amount: strings.TrimSpace(input.Amount),
	})
	if err != nil {
		log.Errorw("payment_approve_request_failed", "error", err)
		s.markOrderFailed(order, models.JSON{"approve_error": err.Error()})
		return s.failureResult(order.OrderNo, "결제 승인 요청에 실패했습니다")
	}
	if !result.Success {
		log.Warnw("payment_approve_rejected",
			"result_code", result.ResultCode,
			"result_msg", result.ResultMsg,
		)
		s.markOrderFailed(order, models.JSON(result.Raw))
		return s.failureResult(order.OrderNo, displayMessage(result.ResultMsg, "결제 승인이 거절되었습니다"))
	}

	if err := s.markOrderPaid(order, result, input.PayMethod); err != nil {
		log.Errorw("payment_mark_paid_failed", "error", err)
		return s.failureResult(order.OrderNo, "결제 상태 반영에 실패했습니다")
	}
	log.Infow("payment_approved",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"result_code", result.ResultCode,
		"partner_txn_id", result.TID,
	)
	s.notifySvc.NotifyOps(ctx, fmt.Sprintf("[결제완료] %s / %s원", order.OrderNo, formatAmount(order.Price)))
	return s.successResult(order.OrderNo)
}

// Approve 승인补发。认证成功但승인请求中断时由运营手动补发。
// 已支付订单幂等返回，failed/cancelled 等终态拒绝补发。
func (s *PaymentService) Approve(ctx context.Context, input ApproveInput) (*models.Order, error) {
	orderNo := strings.TrimSpace(input.OrderNo)
	tid := strings.TrimSpace(input.TID)
	if orderNo == "" || tid == "" {
		return nil, fmt.Errorf("%w: tid and order_no are required", ErrPaymentInvalid)
	}
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == constants.OrderStatusPaid ||
		order.Status == constants.OrderStatusConfirmed ||
		order.Status == constants.OrderStatusDelivered {
		paymentLogger().Infow("payment_approve_idempotent",
			"order_no", order.OrderNo,
			"current_status", order.Status,
		)
		return order, nil
	}
	if order.Status != constants.OrderStatusPending {
		return nil, fmt.Errorf("%w: order status %s", ErrPaymentInvalid, order.Status)
	}
	amount := strings.TrimSpace(input.Amount)
	if amount == "" {
		amount = formatAmount(order.Price)
	}

	result, err := nicepay.Approve(ctx, s.gatewayCfg, nicepay.ApproveInput{
		TID:           tid,
		MID:           strings.TrimSpace(input.MID),
		Moid:          order.OrderNo,
		Amount:        amount,
		TaxFreeAmount: strings.TrimSpace(input.TaxFreeAmount),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayApproveFailed, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s %s", ErrGatewayApproveFailed, result.ResultCode, result.ResultMsg)
	}
	if err := s.markOrderPaid(order, result, ""); err != nil {
		return nil, err
	}
	order.Status = constants.OrderStatusPaid
	order.PartnerTxnID = result.TID
	return order, nil
}

// RedirectTarget 构造支付结果页跳转地址
func (s *PaymentService) RedirectTarget(orderNo string, success bool, message string) string {
	values := url.Values{}
	values.Set("moid", orderNo)
	if success {
		values.Set("success", "true")
	} else {
		values.Set("success", "false")
		if strings.TrimSpace(message) != "" {
			values.Set("message", message)
		}
	}
	return s.baseURL + "/payment/result?" + values.Encode()
}

func (s *PaymentService) markOrderPaid(order *models.Order, result *nicepay.Result, payMethod string) error {
	updates := map[string]interface{}{
		"partner_txn_id":  result.TID,
		"partner_payload": models.JSON(result.Raw),
	}
	if method := strings.TrimSpace(payMethod); method != "" {
		updates["pay_method"] = method
	}
	updated, err := s.orderRepo.UpdateStatusFrom(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, updates)
	if err != nil {
		return ErrOrderUpdateFailed
	}
	if !updated {
		// 并发回调已处理过，视为成功
		paymentLogger().Infow("payment_mark_paid_noop",
			"order_id", order.ID,
			"order_no", order.OrderNo,
		)
	}
	return nil
}

func (s *PaymentService) markOrderFailed(order *models.Order, payload models.JSON) {
	updates := map[string]interface{}{}
	if len(payload) > 0 {
		updates["partner_payload"] = payload
	}
	if _, err := s.orderRepo.UpdateStatusFrom(order.ID, constants.OrderStatusPending, constants.OrderStatusFailed, updates); err != nil {
		paymentLogger().Errorw("payment_mark_failed_error",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
	}
}

func (s *PaymentService) successResult(orderNo string) *CallbackResult {
	return &CallbackResult{
		Success:     true,
		OrderNo:     orderNo,
		RedirectURL: s.RedirectTarget(orderNo, true, ""),
	}
}

func (s *PaymentService) failureResult(orderNo, message string) *CallbackResult {
	return &CallbackResult{
		Success:     false,
		OrderNo:     orderNo,
		Message:     message,
		RedirectURL: s.RedirectTarget(orderNo, false, message),
	}
}

func displayMessage(message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return strings.TrimSpace(message)
	}
	return fallback
}
