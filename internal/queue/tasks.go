package queue

import (
	"encoding/json"

	"github.com/budo-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderNotify 订单事件通知任务
	TaskOrderNotify = constants.TaskOrderNotify
)

// OrderNotifyPayload 订单事件通知任务载荷
type OrderNotifyPayload struct {
	OrderID uint   `json:"order_id"`
	Event   string `json:"event"`
}

// NewOrderNotifyTask 创建订单事件通知任务
func NewOrderNotifyTask(payload OrderNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderNotify, body), nil
}
