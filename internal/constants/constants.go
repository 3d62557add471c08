package constants

// 订单状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusConfirmed = "confirmed"
	OrderStatusDelivered = "delivered"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// 商品类型常量
const (
	ProductTypeFlower          = "flower"
	ProductTypeCondolenceMoney = "condolence_money"
)

// 支付方式常量
const (
	PayMethodCard = "card"
	PayMethodBank = "bank"
)

// 网关授权回调结果码
const (
	GatewayAuthSuccessCode = "0000"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskOrderNotify = "order:notify"
)

// 订单通知事件常量
const (
	OrderNotifyEventCreated   = "created"
	OrderNotifyEventDelivered = "delivered"
)

// 客户通知模板代码
const (
	NotifyTemplateOrderReceived    = "order_received"
	NotifyTemplateDeliveryComplete = "delivery_complete"
	NotifyTemplateThanks           = "thanks"
)
