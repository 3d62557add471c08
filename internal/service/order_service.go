package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// orderNoMaxAttempts 订单编号生成的最大重试次数
const orderNoMaxAttempts = 5

// OrderService 订单服务
type OrderService struct {
	orderRepo    repository.OrderRepository
	memorialRepo repository.MemorialRepository
	notifySvc    *NotifyService
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, memorialRepo repository.MemorialRepository, notifySvc *NotifyService) *OrderService {
	return &OrderService{
		orderRepo:    orderRepo,
		memorialRepo: memorialRepo,
		notifySvc:    notifySvc,
	}
}

// PlaceOrderInput 下单输入
type PlaceOrderInput struct {
	MemorialNo            string
	ProductType           string
	ProductName           string
	Price                 decimal.Decimal
	SenderName            string
	SenderPhone           string
	RecipientName         string
	DeliveryAddress       string
	DeliveryAddressDetail string
	PayMethod             string
}

// UpdateOrderInput 订单状态更新输入。状态之外可附带网关交易号与原始回执。
type UpdateOrderInput struct {
	OrderNo        string
	Status         string
	PartnerTxnID   string
	PartnerPayload map[string]interface{}
}

// 订单状态机：delivered 只能从 paid/confirmed 到达，
// failed/cancelled 可从任意非终态进入，终态不再流转。
var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusPaid:      true,
		constants.OrderStatusFailed:    true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusPaid: {
		constants.OrderStatusConfirmed: true,
		constants.OrderStatusDelivered: true,
		constants.OrderStatusFailed:    true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusConfirmed: {
		constants.OrderStatusDelivered: true,
		constants.OrderStatusFailed:    true,
		constants.OrderStatusCancelled: true,
	},
}

func isTransitionAllowed(current, target string) bool {
	if current == target {
		return true
	}
	nexts, ok := allowedTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

func isOrderStatusValid(status string) bool {
	switch status {
	case constants.OrderStatusPending,
		constants.OrderStatusPaid,
		constants.OrderStatusConfirmed,
		constants.OrderStatusDelivered,
		constants.OrderStatusFailed,
		constants.OrderStatusCancelled:
		return true
	}
	return false
}

func orderLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// PlaceOrder 下单并派发接单通知。通知为后台派发，不阻塞也不影响下单结果。
func (s *OrderService) PlaceOrder(input PlaceOrderInput) (*models.Order, error) {
	order, err := s.createOrder(input)
	if err != nil {
		return nil, err
	}
	s.notifySvc.DispatchOrderEvent(order, constants.OrderNotifyEventCreated)
	return order, nil
}

func (s *OrderService) createOrder(input PlaceOrderInput) (*models.Order, error) {
	if err := validatePlaceOrderInput(input); err != nil {
		return nil, err
	}
	memorial, err := s.memorialRepo.GetByNo(strings.TrimSpace(input.MemorialNo))
	if err != nil {
		orderLogger().Errorw("order_memorial_fetch_failed",
			"memorial_no", input.MemorialNo,
			"error", err,
		)
		return nil, ErrOrderCreateFailed
	}
	if memorial == nil {
		return nil, ErrMemorialNotFound
	}

	var order *models.Order
	for attempt := 0; attempt < orderNoMaxAttempts; attempt++ {
		orderNo, err := s.generateUniqueOrderNo()
		if err != nil {
			return nil, err
		}
		candidate := &models.Order{
			OrderNo:               orderNo,
			MemorialID:            memorial.ID,
			ProductType:           input.ProductType,
			ProductName:           strings.TrimSpace(input.ProductName),
			Price:                 models.NewMoneyFromDecimal(input.Price),
			SenderName:            strings.TrimSpace(input.SenderName),
			SenderPhone:           strings.TrimSpace(input.SenderPhone),
			RecipientName:         strings.TrimSpace(input.RecipientName),
			DeliveryAddress:       strings.TrimSpace(input.DeliveryAddress),
			DeliveryAddressDetail: strings.TrimSpace(input.DeliveryAddressDetail),
			PayMethod:             strings.TrimSpace(input.PayMethod),
			Status:                constants.OrderStatusPending,
		}
		err = s.orderRepo.Create(candidate)
		if err == nil {
			order = candidate
			break
		}
		// 编号唯一索引撞车时换号重试，其余错误直接失败
		if isDuplicateOrderNoErr(err) {
			orderLogger().Warnw("order_no_collision_retry",
				"order_no", orderNo,
				"attempt", attempt+1,
			)
			continue
		}
		orderLogger().Errorw("order_create_failed",
			"order_no", orderNo,
			"memorial_id", memorial.ID,
			"error", err,
		)
		return nil, ErrOrderCreateFailed
	}
	if order == nil {
		return nil, ErrOrderCreateFailed
	}
	orderLogger().Infow("order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"memorial_id", memorial.ID,
		"product_type", order.ProductType,
		"amount", order.Price.String(),
	)
	return order, nil
}

// UpdateOrder 变更订单状态。配送完成时派发客户通知。
func (s *OrderService) UpdateOrder(input UpdateOrderInput) (*models.Order, error) {
	target := strings.ToLower(strings.TrimSpace(input.Status))
	if !isOrderStatusValid(target) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderValidation, input.Status)
	}
	order, err := s.GetByOrderNo(input.OrderNo)
	if err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}
	if !isTransitionAllowed(order.Status, target) {
		orderLogger().Warnw("order_transition_rejected",
			"order_no", order.OrderNo,
			"current_status", order.Status,
			"target_status", target,
		)
		return nil, ErrOrderTransitionInvalid
	}

	updates := map[string]interface{}{}
	if tid := strings.TrimSpace(input.PartnerTxnID); tid != "" {
		updates["partner_txn_id"] = tid
	}
	if len(input.PartnerPayload) > 0 {
		updates["partner_payload"] = models.JSON(input.PartnerPayload)
	}
	updated, err := s.orderRepo.UpdateStatusFrom(order.ID, order.Status, target, updates)
	if err != nil {
		orderLogger().Errorw("order_status_update_failed",
			"order_no", order.OrderNo,
			"target_status", target,
			"error", err,
		)
		return nil, ErrOrderUpdateFailed
	}
	if !updated {
		// 并发更新抢先一步，按最新状态重新校验
		return nil, ErrOrderTransitionInvalid
	}
	previous := order.Status
	order.Status = target
	if tid, ok := updates["partner_txn_id"].(string); ok {
		order.PartnerTxnID = tid
	}
	if payload, ok := updates["partner_payload"].(models.JSON); ok {
		order.PartnerPayload = payload
	}
	orderLogger().Infow("order_status_updated",
		"order_no", order.OrderNo,
		"previous_status", previous,
		"new_status", target,
	)
	if target == constants.OrderStatusDelivered {
		s.notifySvc.DispatchOrderEvent(order, constants.OrderNotifyEventDelivered)
	}
	return order, nil
}

// GetByOrderNo 根据订单编号查询订单
func (s *OrderService) GetByOrderNo(orderNo string) (*models.Order, error) {
	trimmed := strings.TrimSpace(orderNo)
	if trimmed == "" {
		return nil, ErrOrderValidation
	}
	order, err := s.orderRepo.GetByOrderNo(trimmed)
	if err != nil {
		orderLogger().Errorw("order_fetch_failed", "order_no", trimmed, "error", err)
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// List 查询订单列表
func (s *OrderService) List(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	orders, total, err := s.orderRepo.List(filter)
	if err != nil {
		orderLogger().Errorw("order_list_failed", "error", err)
		return nil, 0, ErrOrderFetchFailed
	}
	return orders, total, nil
}

func validatePlaceOrderInput(input PlaceOrderInput) error {
	if strings.TrimSpace(input.MemorialNo) == "" {
		return fmt.Errorf("%w: memorial_no is required", ErrOrderValidation)
	}
	switch input.ProductType {
	case constants.ProductTypeFlower:
		if strings.TrimSpace(input.DeliveryAddress) == "" {
			return fmt.Errorf("%w: delivery_address is required for flower", ErrOrderValidation)
		}
	case constants.ProductTypeCondolenceMoney:
	default:
		return fmt.Errorf("%w: unknown product_type %q", ErrOrderValidation, input.ProductType)
	}
	if !input.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrOrderValidation)
	}
	if strings.TrimSpace(input.SenderName) == "" {
		return fmt.Errorf("%w: sender_name is required", ErrOrderValidation)
	}
	if strings.TrimSpace(input.SenderPhone) == "" {
		return fmt.Errorf("%w: sender_phone is required", ErrOrderValidation)
	}
	if strings.TrimSpace(input.RecipientName) == "" {
		return fmt.Errorf("%w: recipient_name is required", ErrOrderValidation)
	}
	switch strings.TrimSpace(input.PayMethod) {
	case "", constants.PayMethodCard, constants.PayMethodBank:
	default:
		return fmt.Errorf("%w: unknown pay_method %q", ErrOrderValidation, input.PayMethod)
	}
	return nil
}

// generateUniqueOrderNo 生成订单编号并做唯一性校验
func (s *OrderService) generateUniqueOrderNo() (string, error) {
	for attempt := 0; attempt < orderNoMaxAttempts; attempt++ {
		orderNo := generateOrderNo()
		exists, err := s.orderRepo.ExistsByOrderNo(orderNo)
		if err != nil {
			return "", ErrOrderCreateFailed
		}
		if !exists {
			return orderNo, nil
		}
	}
	return "", ErrOrderCreateFailed
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	randPart := randNumeric(6)
	return fmt.Sprintf("BG%s%s", now, randPart)
}

// isDuplicateOrderNoErr 判断是否为唯一索引冲突。
// 驱动未开启错误翻译时退化为按数据库错误文案匹配。
func isDuplicateOrderNoErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
