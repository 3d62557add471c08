package public

import (
	"strings"
	"time"

	"github.com/budo-next/internal/cache"
	"github.com/budo-next/internal/http/response"
	"github.com/budo-next/internal/models"

	"github.com/gin-gonic/gin"
)

// memorialCacheTTL 讣告详情缓存时长。讣告由编辑子系统写入，
// 展示页允许短时间的陈旧数据。
const memorialCacheTTL = 5 * time.Minute

// GetMemorial 讣告详情
func (h *Handler) GetMemorial(c *gin.Context) {
	memorialNo := strings.TrimSpace(c.Param("memorial_no"))
	if memorialNo == "" {
		respondError(c, response.CodeBadRequest, "memorial no required", nil)
		return
	}

	cacheKey := "memorial:no:" + memorialNo
	var cached models.Memorial
	if hit, err := cache.GetJSON(c.Request.Context(), cacheKey, &cached); err == nil && hit {
		response.Success(c, &cached)
		return
	}

	memorial, err := h.MemorialRepo.GetByNo(memorialNo)
	if err != nil {
		respondError(c, response.CodeInternal, "memorial fetch failed", err)
		return
	}
	if memorial == nil {
		respondError(c, response.CodeNotFound, "memorial not found", nil)
		return
	}
	if err := cache.SetJSON(c.Request.Context(), cacheKey, memorial, memorialCacheTTL); err != nil {
		requestLog(c).Warnw("memorial_cache_set_failed", "memorial_no", memorialNo, "error", err)
	}
	response.Success(c, memorial)
}

// ListMemorialOrders 讣告下的全部订单
func (h *Handler) ListMemorialOrders(c *gin.Context) {
	memorialNo := strings.TrimSpace(c.Param("memorial_no"))
	if memorialNo == "" {
		respondError(c, response.CodeBadRequest, "memorial no required", nil)
		return
	}
	memorial, err := h.MemorialRepo.GetByNo(memorialNo)
	if err != nil {
		respondError(c, response.CodeInternal, "memorial fetch failed", err)
		return
	}
	if memorial == nil {
		respondError(c, response.CodeNotFound, "memorial not found", nil)
		return
	}
	orders, err := h.OrderRepo.ListByMemorial(memorial.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "order list failed", err)
		return
	}
	response.Success(c, orders)
}
