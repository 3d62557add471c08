package public

import (
	"errors"

	"github.com/budo-next/internal/http/response"
	"github.com/budo-next/internal/service"

	"github.com/gin-gonic/gin"
)

// TriggerThanks 手动触发答谢批处理。
// 外部调度器（cron 等）携带 Bearer 秘钥调用。
func (h *Handler) TriggerThanks(c *gin.Context) {
	if err := h.ThanksService.VerifyTriggerToken(c.GetHeader("Authorization")); err != nil {
		if errors.Is(err, service.ErrThanksUnauthorized) {
			requestLog(c).Warnw("thanks_trigger_unauthorized", "client_ip", c.ClientIP())
			response.Unauthorized(c, "unauthorized")
			return
		}
		respondError(c, response.CodeInternal, "thanks trigger failed", err)
		return
	}
	summary, err := h.ThanksService.Run(c.Request.Context())
	if err != nil {
		respondThanksTriggerError(c, err)
		return
	}
	response.Success(c, summary)
}
