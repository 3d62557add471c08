package service

import "errors"

// 业务错误定义，handler 层据此映射 HTTP 状态
var (
	ErrOrderValidation        = errors.New("order validation failed")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderCreateFailed      = errors.New("order create failed")
	ErrOrderFetchFailed       = errors.New("order fetch failed")
	ErrOrderUpdateFailed      = errors.New("order update failed")
	ErrOrderTransitionInvalid = errors.New("order status transition invalid")
	ErrMemorialNotFound       = errors.New("memorial not found")
	ErrPaymentInvalid         = errors.New("payment callback invalid")
	ErrGatewayApproveFailed   = errors.New("gateway approve failed")
	ErrNotifyDeliveryFailed   = errors.New("notify delivery failed")
	ErrThanksRunLocked        = errors.New("thanks job already running")
	ErrThanksStoreUnavailable = errors.New("thanks job store unavailable")
	ErrThanksUnauthorized     = errors.New("thanks trigger unauthorized")
)
