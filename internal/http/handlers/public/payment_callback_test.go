package public

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/provider"
	"github.com/budo-next/internal/repository"
	"github.com/budo-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newHandlerTestEnv(t *testing.T, name string) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Memorial{}, &models.Order{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	orderRepo := repository.NewOrderRepository(db)
	memorialRepo := repository.NewMemorialRepository(db)
	notifySvc := service.NewNotifyService(orderRepo, memorialRepo, nil, nil, nil)
	container := &provider.Container{
		MemorialRepo:   memorialRepo,
		OrderRepo:      orderRepo,
		NotifyService:  notifySvc,
		OrderService:   service.NewOrderService(orderRepo, memorialRepo, notifySvc),
		PaymentService: service.NewPaymentService(orderRepo, notifySvc, nil, "https://budo.example.com"),
		ThanksService:  service.NewThanksService(memorialRepo, notifySvc, config.ThanksConfig{Timezone: "UTC"}, true),
	}
	return New(container), db
}

func placeCallbackTestOrder(t *testing.T, h *Handler, db *gorm.DB, memorialNo string) *models.Order {
	t.Helper()
	memorial := &models.Memorial{
		MemorialNo:   memorialNo,
		DeceasedName: "故 김영수",
		MournerName:  "김철수",
		MournerPhone: "010-1234-5678",
		FuneralDate:  "2026-08-27",
	}
	if err := db.Create(memorial).Error; err != nil {
		t.Fatalf("create memorial failed: %v", err)
	}
	order, err := h.OrderService.PlaceOrder(service.PlaceOrderInput{
		MemorialNo:    memorialNo,
		ProductType:   constants.ProductTypeCondolenceMoney,
		Price:         decimal.NewFromInt(100000),
		SenderName:    "박민수",
		SenderPhone:   "010-9876-5432",
		RecipientName: "김철수",
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	return order
}

func TestPaymentCallbackRedirectsUnknownOrder(t *testing.T) {
	h, _ := newHandlerTestEnv(t, "handler_cb_unknown")

	r := gin.New()
	r.POST("/api/v1/public/payments/callback", h.PaymentCallback)

	form := url.Values{}
	form.Set("resultCode", "0000")
	form.Set("tid", "tid-1")
	form.Set("moid", "BG00000000000000000000")
	form.Set("amt", "1000")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect, got %d", w.Code)
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://budo.example.com/payment/result?") {
		t.Fatalf("unexpected redirect location: %s", location)
	}
	if !strings.Contains(location, "success=false") {
		t.Fatalf("expected failure redirect, got %s", location)
	}
}

func TestPaymentCallbackAuthFailureMarksOrder(t *testing.T) {
	h, db := newHandlerTestEnv(t, "handler_cb_auth_fail")
	order := placeCallbackTestOrder(t, h, db, "M-2026-2001")

	r := gin.New()
	r.GET("/api/v1/public/payments/callback", h.PaymentCallback)

	query := url.Values{}
	query.Set("resultCode", "9999")
	query.Set("resultMsg", "사용자 취소")
	query.Set("moid", order.OrderNo)
	query.Set("amt", "100000")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/payments/callback?"+query.Encode(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Location"), "success=false") {
		t.Fatalf("expected failure redirect, got %s", w.Header().Get("Location"))
	}

	var stored models.Order
	if err := db.Where("order_no = ?", order.OrderNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
}
