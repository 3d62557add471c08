package public

import (
	"net/http"
	"strings"

	"github.com/budo-next/internal/http/response"
	"github.com/budo-next/internal/service"

	"github.com/gin-gonic/gin"
)

type paymentApproveRequest struct {
	TID        string `json:"tid" binding:"required"`
	MID        string `json:"mid"`
	Moid       string `json:"moid" binding:"required"`
	Amount     string `json:"amt"`
	TaxFreeAmt string `json:"tax_free_amt"`
}

// PaymentCallback 网关认证回调入口。
// 网关以 GET 或 POST 表单回调，处理后 302 跳转到结果页，绝不返回 JSON。
func (h *Handler) PaymentCallback(c *gin.Context) {
	requestLog(c).Infow("payment_callback_entry",
		"method", c.Request.Method,
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
	)
	form, err := parseCallbackForm(c)
	if err != nil {
		requestLog(c).Warnw("payment_callback_parse_failed", "error", err)
		c.Redirect(http.StatusFound, h.PaymentService.RedirectTarget("", false, "잘못된 결제 요청입니다"))
		return
	}
	result := h.PaymentService.HandleAuthCallback(c.Request.Context(), service.AuthCallbackInput{
		AuthResultCode: getFirstValue(form, "resultCode"),
		AuthResultMsg:  getFirstValue(form, "resultMsg"),
		TxTid:          getFirstValue(form, "tid"),
		Moid:           getFirstValue(form, "moid"),
		Amount:         getFirstValue(form, "amt"),
		MID:            getFirstValue(form, "mid"),
		PayMethod:      getFirstValue(form, "payMethod"),
	})
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// PaymentApprove 승인补发。认证成功但승인中断时由运营调用。
func (h *Handler) PaymentApprove(c *gin.Context) {
	var req paymentApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	order, err := h.PaymentService.Approve(c.Request.Context(), service.ApproveInput{
		TID:           req.TID,
		MID:           req.MID,
		OrderNo:       req.Moid,
		Amount:        req.Amount,
		TaxFreeAmount: req.TaxFreeAmt,
	})
	if err != nil {
		respondPaymentApproveError(c, err)
		return
	}
	response.Success(c, order)
}

func parseCallbackForm(c *gin.Context) (map[string][]string, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	if len(c.Request.PostForm) > 0 {
		return c.Request.PostForm, nil
	}
	return c.Request.Form, nil
}

func getFirstValue(form map[string][]string, key string) string {
	if values, ok := form[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}
