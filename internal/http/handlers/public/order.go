package public

import (
	"strconv"
	"strings"

	"github.com/budo-next/internal/http/response"
	"github.com/budo-next/internal/repository"
	"github.com/budo-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	MemorialNo            string          `json:"memorial_no" binding:"required"`
	ProductType           string          `json:"product_type" binding:"required"`
	ProductName           string          `json:"product_name"`
	Price                 decimal.Decimal `json:"price" binding:"required"`
	SenderName            string          `json:"sender_name" binding:"required"`
	SenderPhone           string          `json:"sender_phone" binding:"required"`
	RecipientName         string          `json:"recipient_name"`
	DeliveryAddress       string          `json:"delivery_address"`
	DeliveryAddressDetail string          `json:"delivery_address_detail"`
	PayMethod             string          `json:"pay_method"`
}

type updateOrderRequest struct {
	Status         string                 `json:"status" binding:"required"`
	PartnerTxnID   string                 `json:"partner_txn_id"`
	PartnerPayload map[string]interface{} `json:"partner_payload"`
}

// CreateOrder 下单
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	order, err := h.OrderService.PlaceOrder(service.PlaceOrderInput{
		MemorialNo:            req.MemorialNo,
		ProductType:           req.ProductType,
		ProductName:           req.ProductName,
		Price:                 req.Price,
		SenderName:            req.SenderName,
		SenderPhone:           req.SenderPhone,
		RecipientName:         req.RecipientName,
		DeliveryAddress:       req.DeliveryAddress,
		DeliveryAddressDetail: req.DeliveryAddressDetail,
		PayMethod:             req.PayMethod,
	})
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateOrder 订单状态变更
func (h *Handler) UpdateOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	order, err := h.OrderService.UpdateOrder(service.UpdateOrderInput{
		OrderNo:        orderNo,
		Status:         req.Status,
		PartnerTxnID:   req.PartnerTxnID,
		PartnerPayload: req.PartnerPayload,
	})
	if err != nil {
		respondOrderUpdateError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrder 订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.OrderService.GetByOrderNo(orderNo)
	if err != nil {
		respondOrderGetError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	// 分页参数只在这里归一化一次，响应回显与查询保持一致
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	var memorialID uint
	if raw := strings.TrimSpace(c.Query("memorial_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid memorial_id", err)
			return
		}
		memorialID = uint(parsed)
	}

	filter := repository.OrderListFilter{
		Page:       page,
		PageSize:   pageSize,
		MemorialID: memorialID,
		Status:     strings.TrimSpace(c.Query("status")),
		OrderNo:    strings.TrimSpace(c.Query("order_no")),
	}
	orders, total, err := h.OrderService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "order list failed", err)
		return
	}
	totalPage := (total + int64(pageSize) - 1) / int64(pageSize)
	response.SuccessWithPage(c, orders, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	})
}
