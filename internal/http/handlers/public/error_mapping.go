package public

import (
	"errors"

	"github.com/budo-next/internal/http/response"
	"github.com/budo-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrOrderValidation, code: response.CodeBadRequest, msg: "order validation failed"},
	{target: service.ErrMemorialNotFound, code: response.CodeNotFound, msg: "memorial not found"},
}

var orderUpdateErrorRules = []mappedHandlerError{
	{target: service.ErrOrderValidation, code: response.CodeBadRequest, msg: "order validation failed"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrOrderTransitionInvalid, code: response.CodeConflict, msg: "order status transition not allowed"},
}

var orderGetErrorRules = []mappedHandlerError{
	{target: service.ErrOrderValidation, code: response.CodeBadRequest, msg: "order no required"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
}

var paymentApproveErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest, msg: "payment request invalid"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrGatewayApproveFailed, code: response.CodeBadRequest, msg: "gateway approve failed"},
}

var thanksTriggerErrorRules = []mappedHandlerError{
	{target: service.ErrThanksRunLocked, code: response.CodeConflict, msg: "thanks job already running"},
	{target: service.ErrThanksStoreUnavailable, code: response.CodeInternal, msg: "thanks job store unavailable"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "order create failed")
}

func respondOrderUpdateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderUpdateErrorRules, response.CodeInternal, "order update failed")
}

func respondOrderGetError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderGetErrorRules, response.CodeInternal, "order fetch failed")
}

func respondPaymentApproveError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentApproveErrorRules, response.CodeInternal, "payment approve failed")
}

func respondThanksTriggerError(c *gin.Context, err error) {
	respondWithMappedError(c, err, thanksTriggerErrorRules, response.CodeInternal, "thanks job failed")
}
