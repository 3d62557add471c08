package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type gatewayStub struct {
	server     *httptest.Server
	callCount  int
	resultCode string
	resultMsg  string
}

func newGatewayStub(t *testing.T) *gatewayStub {
	t.Helper()
	stub := &gatewayStub{resultCode: "0000"}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.callCount++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ResultCode": stub.resultCode,
			"ResultMsg":  stub.resultMsg,
			"TID":        r.Form.Get("TID"),
			"Moid":       r.Form.Get("Moid"),
			"Amt":        r.Form.Get("Amt"),
		})
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newPaymentTestEnv(t *testing.T, name string, stub *gatewayStub) (*PaymentService, *OrderService, *gorm.DB) {
	t.Helper()
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
	notifySvc := NewNotifyService(orderRepo, memorialRepo, nil, nil, nil)
	orderSvc := NewOrderService(orderRepo, memorialRepo, notifySvc)
	paymentCfg := &config.PaymentConfig{
		APIBaseURL:  stub.server.URL,
		MerchantID:  "budogt01m",
		MerchantKey: "test-merchant-key",
	}
	paymentSvc := NewPaymentService(orderRepo, notifySvc, paymentCfg, "https://budo.example.com")
	return paymentSvc, orderSvc, db
}

func placePendingOrder(t *testing.T, orderSvc *OrderService, db *gorm.DB, memorialNo string) *models.Order {
	t.Helper()
	createTestMemorial(t, db, memorialNo)
	order, err := orderSvc.PlaceOrder(PlaceOrderInput{
		MemorialNo:    memorialNo,
		ProductType:   constants.ProductTypeCondolenceMoney,
		Price:         decimal.NewFromInt(150000),
		SenderName:    "박민수",
		SenderPhone:   "010-1234-5678",
		RecipientName: "김영희",
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	return order
}

func TestHandleAuthCallbackApproveSuccess(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_cb_success", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1001")

	result := paymentSvc.HandleAuthCallback(context.Background(), AuthCallbackInput{
		AuthResultCode: "0000",
		TxTid:          "budogt01m01012608280001",
		Moid:           order.OrderNo,
		Amount:         "150000",
	})
	if !result.Success {
		t.Fatalf("expected success, got message %q", result.Message)
	}
	if !strings.Contains(result.RedirectURL, "success=true") {
		t.Fatalf("unexpected redirect url: %s", result.RedirectURL)
	}
	if !strings.Contains(result.RedirectURL, "moid="+order.OrderNo) {
		t.Fatalf("redirect url missing moid: %s", result.RedirectURL)
	}
	if stub.callCount != 1 {
		t.Fatalf("expected 1 approve call, got %d", stub.callCount)
	}

	var stored models.Order
	if err := db.Where("order_no = ?", order.OrderNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", stored.Status)
	}
	if stored.PartnerTxnID != "budogt01m01012608280001" {
		t.Fatalf("unexpected partner txn id: %s", stored.PartnerTxnID)
	}
	if stored.PartnerPayload["ResultCode"] != "0000" {
		t.Fatalf("unexpected partner payload: %+v", stored.PartnerPayload)
	}
}

func TestHandleAuthCallbackAuthFailed(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_cb_auth_fail", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1002")

	result := paymentSvc.HandleAuthCallback(context.Background(), AuthCallbackInput{
		AuthResultCode: "9999",
		AuthResultMsg:  "사용자 취소",
		TxTid:          "tid-x",
		Moid:           order.OrderNo,
		Amount:         "150000",
	})
	if result.Success {
		t.Fatalf("expected failure result")
	}
	if !strings.Contains(result.RedirectURL, "success=false") {
		t.Fatalf("unexpected redirect url: %s", result.RedirectURL)
	}
	if stub.callCount != 0 {
		t.Fatalf("approve should not be called on auth failure, got %d calls", stub.callCount)
	}

	var stored models.Order
	if err := db.Where("order_no = ?", order.OrderNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
}

func TestHandleAuthCallbackApproveRejected(t *testing.T) {
	stub := newGatewayStub(t)
	stub.resultCode = "8000"
	stub.resultMsg = "한도초과"
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_cb_approve_fail", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1003")

	result := paymentSvc.HandleAuthCallback(context.Background(), AuthCallbackInput{
		AuthResultCode: "0000",
		TxTid:          "tid-y",
		Moid:           order.OrderNo,
		Amount:         "150000",
	})
	if result.Success {
		t.Fatalf("expected failure result")
	}
	if !strings.Contains(result.Message, "한도초과") {
		t.Fatalf("expected gateway message, got %q", result.Message)
	}

	var stored models.Order
	if err := db.Where("order_no = ?", order.OrderNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
}

func TestHandleAuthCallbackIdempotent(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_cb_idempotent", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1004")

	input := AuthCallbackInput{
		AuthResultCode: "0000",
		TxTid:          "tid-z",
		Moid:           order.OrderNo,
		Amount:         "150000",
	}
	first := paymentSvc.HandleAuthCallback(context.Background(), input)
	if !first.Success {
		t.Fatalf("first callback failed: %q", first.Message)
	}
	second := paymentSvc.HandleAuthCallback(context.Background(), input)
	if !second.Success {
		t.Fatalf("second callback should report success: %q", second.Message)
	}
	if stub.callCount != 1 {
		t.Fatalf("approve should run once, got %d calls", stub.callCount)
	}
}

func TestHandleAuthCallbackUnknownOrder(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, _, _ := newPaymentTestEnv(t, "payment_cb_unknown", stub)

	result := paymentSvc.HandleAuthCallback(context.Background(), AuthCallbackInput{
		AuthResultCode: "0000",
		TxTid:          "tid-a",
		Moid:           "BG00000000000000000000",
		Amount:         "1000",
	})
	if result.Success {
		t.Fatalf("expected failure for unknown order")
	}
	if stub.callCount != 0 {
		t.Fatalf("approve should not be called, got %d", stub.callCount)
	}
}

func TestApproveCompletesPendingOrder(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_approve_pending", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1005")

	approved, err := paymentSvc.Approve(context.Background(), ApproveInput{
		TID:     "tid-retry",
		OrderNo: order.OrderNo,
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", approved.Status)
	}
	if stub.callCount != 1 {
		t.Fatalf("expected 1 approve call, got %d", stub.callCount)
	}

	var stored models.Order
	if err := db.First(&stored, order.ID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", stored.Status)
	}
	if stored.PartnerTxnID != "tid-retry" {
		t.Fatalf("unexpected partner txn id: %s", stored.PartnerTxnID)
	}
}

func TestApproveRejectsFailedOrder(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_approve_failed", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1006")

	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", constants.OrderStatusFailed).Error; err != nil {
		t.Fatalf("force failed status: %v", err)
	}

	if _, err := paymentSvc.Approve(context.Background(), ApproveInput{
		TID:     "tid-late",
		OrderNo: order.OrderNo,
	}); !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("expected payment invalid error, got %v", err)
	}
	if stub.callCount != 0 {
		t.Fatalf("approve should not reach the gateway, got %d calls", stub.callCount)
	}

	var stored models.Order
	if err := db.First(&stored, order.ID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.Status != constants.OrderStatusFailed {
		t.Fatalf("failed order must stay failed, got %s", stored.Status)
	}
}

func TestApproveIdempotentOnPaidOrder(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, orderSvc, db := newPaymentTestEnv(t, "payment_approve_paid", stub)
	order := placePendingOrder(t, orderSvc, db, "M-2026-1007")
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", constants.OrderStatusPaid).Error; err != nil {
		t.Fatalf("force paid status: %v", err)
	}

	approved, err := paymentSvc.Approve(context.Background(), ApproveInput{
		TID:     "tid-dup",
		OrderNo: order.OrderNo,
	})
	if err != nil {
		t.Fatalf("approve on paid order should succeed: %v", err)
	}
	if approved.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", approved.Status)
	}
	if stub.callCount != 0 {
		t.Fatalf("paid order must not hit the gateway again, got %d calls", stub.callCount)
	}
}

func TestRedirectTargetEncodesMessage(t *testing.T) {
	stub := newGatewayStub(t)
	paymentSvc, _, _ := newPaymentTestEnv(t, "payment_redirect", stub)

	target := paymentSvc.RedirectTarget("BG1", false, "카드 한도 초과")
	if !strings.HasPrefix(target, "https://budo.example.com/payment/result?") {
		t.Fatalf("unexpected target: %s", target)
	}
	if !strings.Contains(target, "success=false") || strings.Contains(target, " ") {
		t.Fatalf("unexpected target: %s", target)
	}

	target = paymentSvc.RedirectTarget("BG1", true, "ignored")
	if strings.Contains(target, "message=") {
		t.Fatalf("success target should not carry message: %s", target)
	}
}
