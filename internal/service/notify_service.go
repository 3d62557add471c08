package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/notify/chatops"
	"github.com/budo-next/internal/notify/sens"
	"github.com/budo-next/internal/queue"
	"github.com/budo-next/internal/repository"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// detachedNotifyTimeout 同进程兜底派发的单次超时
const detachedNotifyTimeout = 15 * time.Second

// NotifyService 通知服务。负责运营群播报与客户消息两条通道。
type NotifyService struct {
	orderRepo    repository.OrderRepository
	memorialRepo repository.MemorialRepository
	queueClient  *queue.Client
	sensCfg      *sens.Config
	chatOpsCfg   *chatops.Config
	fallbackOff  bool
}

// CustomerNotifyInput 客户消息发送输入
type CustomerNotifyInput struct {
	Phone        string
	TemplateCode string
	Content      string
	ReserveTime  string
}

// NewNotifyService 创建通知服务
func NewNotifyService(orderRepo repository.OrderRepository, memorialRepo repository.MemorialRepository, queueClient *queue.Client, notifyCfg *config.NotifyConfig, chatOpsCfg *config.ChatOpsConfig) *NotifyService {
	svc := &NotifyService{
		orderRepo:    orderRepo,
		memorialRepo: memorialRepo,
		queueClient:  queueClient,
	}
	if notifyCfg != nil {
		svc.sensCfg = &sens.Config{
			APIBaseURL:        notifyCfg.APIBaseURL,
			AccessKey:         notifyCfg.AccessKey,
			SecretKey:         notifyCfg.SecretKey,
			AlimtalkServiceID: notifyCfg.AlimtalkService,
			SMSServiceID:      notifyCfg.SMSService,
			PlusFriendID:      notifyCfg.PlusFriendID,
			SenderNumber:      notifyCfg.SenderNumber,
			TimeoutSeconds:    notifyCfg.TimeoutSeconds,
		}
		svc.fallbackOff = notifyCfg.FallbackDisabled
	}
	if chatOpsCfg != nil {
		svc.chatOpsCfg = &chatops.Config{
			WebhookURL:     chatOpsCfg.WebhookURL,
			TimeoutSeconds: chatOpsCfg.TimeoutSeconds,
		}
	}
	return svc
}

func notifyLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// NotifyOps 向运营群播报一条消息。失败只记日志，不影响主流程。
func (s *NotifyService) NotifyOps(ctx context.Context, text string) {
	if s == nil || !s.chatOpsCfg.Enabled() {
		return
	}
	if err := chatops.Send(ctx, s.chatOpsCfg, text); err != nil {
		notifyLogger().Warnw("chatops_send_failed", "error", err)
	}
}

// NotifyCustomer 发送客户消息：优先알림톡模板，失败时降级为短信。
// 两条通道都失败才返回错误。
func (s *NotifyService) NotifyCustomer(ctx context.Context, input CustomerNotifyInput) error {
	if s == nil || s.sensCfg == nil {
		return ErrNotifyDeliveryFailed
	}
	phone := sens.NormalizePhone(input.Phone)
	if phone == "" {
		return fmt.Errorf("%w: empty phone", ErrNotifyDeliveryFailed)
	}
	log := notifyLogger(
		"notify_phone_tail", phoneTail(phone),
		"notify_template", input.TemplateCode,
	)

	if strings.TrimSpace(s.sensCfg.AlimtalkServiceID) != "" && strings.TrimSpace(input.TemplateCode) != "" {
		_, err := sens.SendAlimtalk(ctx, s.sensCfg, sens.AlimtalkInput{
			To:           phone,
			TemplateCode: input.TemplateCode,
			Content:      input.Content,
			ReserveTime:  input.ReserveTime,
		})
		if err == nil {
			log.Infow("notify_alimtalk_accepted")
			return nil
		}
		log.Warnw("notify_alimtalk_failed", "error", err)
		if s.fallbackOff {
			return fmt.Errorf("%w: %v", ErrNotifyDeliveryFailed, err)
		}
	}

	if _, err := sens.SendSMS(ctx, s.sensCfg, sens.SMSInput{
		To:          phone,
		Content:     input.Content,
		ReserveTime: input.ReserveTime,
	}); err != nil {
		log.Errorw("notify_sms_failed", "error", err)
		return fmt.Errorf("%w: %v", ErrNotifyDeliveryFailed, err)
	}
	log.Infow("notify_sms_accepted")
	return nil
}

// DispatchOrderEvent 派发订单事件通知。队列可用时走 asynq，
// 否则退化为进程内 goroutine。调用方不等待结果。
func (s *NotifyService) DispatchOrderEvent(order *models.Order, event string) {
	if s == nil || order == nil {
		return
	}
	payload := queue.OrderNotifyPayload{OrderID: order.ID, Event: event}
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueOrderNotify(payload, asynq.MaxRetry(5)); err != nil {
			notifyLogger().Errorw("order_notify_enqueue_failed",
				"order_id", order.ID,
				"event", event,
				"error", err,
			)
		}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedNotifyTimeout)
		defer cancel()
		if err := s.HandleOrderNotify(ctx, payload); err != nil {
			notifyLogger().Warnw("order_notify_inline_failed",
				"order_id", order.ID,
				"event", event,
				"error", err,
			)
		}
	}()
}

// HandleOrderNotify 处理订单事件通知任务。worker 与进程内兜底共用。
// 返回错误表示可重试；订单不存在等终态情况返回 nil 直接跳过。
func (s *NotifyService) HandleOrderNotify(ctx context.Context, payload queue.OrderNotifyPayload) error {
	if s == nil || payload.OrderID == 0 {
		return nil
	}
	log := notifyLogger("order_id", payload.OrderID, "event", payload.Event)

	order, err := s.orderRepo.GetByID(payload.OrderID)
	if err != nil {
		log.Errorw("order_notify_order_fetch_failed", "error", err)
		return err
	}
	if order == nil {
		log.Warnw("order_notify_order_not_found")
		return nil
	}
	memorial, err := s.memorialRepo.GetByID(order.MemorialID)
	if err != nil {
		log.Errorw("order_notify_memorial_fetch_failed", "error", err)
		return err
	}

	switch payload.Event {
	case constants.OrderNotifyEventCreated:
		s.NotifyOps(ctx, opsOrderText(order, memorial))
		if err := s.NotifyCustomer(ctx, CustomerNotifyInput{
			Phone:        order.SenderPhone,
			TemplateCode: constants.NotifyTemplateOrderReceived,
			Content:      orderReceivedText(order, memorial),
		}); err != nil {
			log.Warnw("order_notify_customer_failed", "error", err)
			return err
		}
	case constants.OrderNotifyEventDelivered:
		if err := s.NotifyCustomer(ctx, CustomerNotifyInput{
			Phone:        order.SenderPhone,
			TemplateCode: constants.NotifyTemplateDeliveryComplete,
			Content:      deliveryCompleteText(order, memorial),
		}); err != nil {
			log.Warnw("order_notify_customer_failed", "error", err)
			return err
		}
	default:
		log.Warnw("order_notify_event_unknown")
		return nil
	}
	log.Infow("order_notify_processed")
	return nil
}

func opsOrderText(order *models.Order, memorial *models.Memorial) string {
	deceased := ""
	if memorial != nil {
		deceased = memorial.DeceasedName
	}
	return fmt.Sprintf("[주문접수] %s / %s / %s / %s원 / 보내는분 %s",
		order.OrderNo,
		productLabel(order.ProductType),
		deceased,
		formatAmount(order.Price),
		order.SenderName,
	)
}

func orderReceivedText(order *models.Order, memorial *models.Memorial) string {
	deceased := ""
	if memorial != nil {
		deceased = memorial.DeceasedName
	}
	return fmt.Sprintf("[부고] %s님의 %s 주문(%s)이 접수되었습니다. 결제금액 %s원",
		deceased,
		productLabel(order.ProductType),
		order.OrderNo,
		formatAmount(order.Price),
	)
}

func deliveryCompleteText(order *models.Order, memorial *models.Memorial) string {
	deceased := ""
	if memorial != nil {
		deceased = memorial.DeceasedName
	}
	return fmt.Sprintf("[부고] %s님 빈소로 보내신 %s(%s) 전달이 완료되었습니다.",
		deceased,
		productLabel(order.ProductType),
		order.OrderNo,
	)
}

func thanksText(memorial *models.Memorial) string {
	return fmt.Sprintf("故 %s님의 장례에 함께해 주신 모든 분께 감사의 말씀을 전합니다. - %s 올림",
		memorial.DeceasedName,
		memorial.MournerName,
	)
}

func productLabel(productType string) string {
	switch productType {
	case constants.ProductTypeFlower:
		return "화환"
	case constants.ProductTypeCondolenceMoney:
		return "조의금"
	default:
		return productType
	}
}

func formatAmount(price models.Money) string {
	return price.Decimal.Truncate(0).String()
}

// phoneTail 日志只保留手机号末四位
func phoneTail(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
