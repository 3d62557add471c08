package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sensStub struct {
	server    *httptest.Server
	accepted  []string
	failPhone string
}

func newSensStub(t *testing.T) *sensStub {
	t.Helper()
	stub := &sensStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				To string `json:"to"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body failed: %v", err)
		}
		if len(body.Messages) != 1 {
			t.Fatalf("expected single message, got %d", len(body.Messages))
		}
		to := body.Messages[0].To
		if stub.failPhone != "" && to == stub.failPhone {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		stub.accepted = append(stub.accepted, to)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"requestId": "req"})
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newThanksTestEnv(t *testing.T, name string, stub *sensStub) (*ThanksService, *gorm.DB) {
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
	notifyCfg := &config.NotifyConfig{
		APIBaseURL:   stub.server.URL,
		AccessKey:    "test-access-key",
		SecretKey:    "test-secret-key",
		SMSService:   "ncp:sms:kr:100:budo",
		SenderNumber: "0212345678",
	}
	notifySvc := NewNotifyService(orderRepo, memorialRepo, nil, notifyCfg, nil)
	thanksCfg := config.ThanksConfig{
		Timezone:       "UTC",
		LockTTLSeconds: 60,
	}
	return NewThanksService(memorialRepo, notifySvc, thanksCfg, false), db
}

func yesterdayUTC() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

func createThanksMemorial(t *testing.T, db *gorm.DB, no, phone, funeralDate string) *models.Memorial {
	t.Helper()
	memorial := &models.Memorial{
		MemorialNo:   no,
		DeceasedName: "김철수",
		MournerName:  "김영희",
		MournerPhone: phone,
		FuneralDate:  funeralDate,
	}
	if err := db.Create(memorial).Error; err != nil {
		t.Fatalf("create memorial failed: %v", err)
	}
	return memorial
}

func TestThanksRun(t *testing.T) {
	stub := newSensStub(t)
	stub.failPhone = "01099998888"
	svc, db := newThanksTestEnv(t, "thanks_run", stub)

	date := yesterdayUTC()
	ok := createThanksMemorial(t, db, "M-T-0001", "010-1234-5678", date)
	noPhone := createThanksMemorial(t, db, "M-T-0002", "", date)
	failing := createThanksMemorial(t, db, "M-T-0003", "010-9999-8888", date)
	// 出殡日期不是昨天的不应入选
	createThanksMemorial(t, db, "M-T-0004", "010-5555-6666", "2026-01-01")

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("thanks run failed: %v", err)
	}
	if summary.TotalCount != 3 {
		t.Fatalf("expected 3 candidates, got %d", summary.TotalCount)
	}
	if summary.SentCount != 1 {
		t.Fatalf("expected 1 sent, got %d", summary.SentCount)
	}
	if summary.SkippedCount != 1 {
		t.Fatalf("expected 1 skipped, got %d", summary.SkippedCount)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", summary.Errors)
	}
	if summary.Success {
		t.Fatalf("summary should not be successful with errors")
	}
	if len(stub.accepted) != 1 || stub.accepted[0] != "01012345678" {
		t.Fatalf("unexpected accepted recipients: %+v", stub.accepted)
	}

	var stored models.Memorial
	if err := db.First(&stored, ok.ID).Error; err != nil {
		t.Fatalf("load memorial failed: %v", err)
	}
	if !stored.ThanksSent {
		t.Fatalf("successful send should mark thanks_sent")
	}
	for _, id := range []uint{noPhone.ID, failing.ID} {
		var unsent models.Memorial
		if err := db.First(&unsent, id).Error; err != nil {
			t.Fatalf("load memorial failed: %v", err)
		}
		if unsent.ThanksSent {
			t.Fatalf("memorial %d should not be marked", id)
		}
	}
}

func TestThanksRunSkipsDigitFreePhone(t *testing.T) {
	stub := newSensStub(t)
	svc, db := newThanksTestEnv(t, "thanks_bad_phone", stub)

	// 只含分隔符的号码归一化后为空，按缺号跳过而不是按失败每日重试
	memorial := createThanksMemorial(t, db, "M-T-3001", "--- ", yesterdayUTC())

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("thanks run failed: %v", err)
	}
	if summary.SkippedCount != 1 || summary.SentCount != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Errors) != 0 || !summary.Success {
		t.Fatalf("digit-free phone must not count as an error: %+v", summary)
	}
	if len(stub.accepted) != 0 {
		t.Fatalf("no message should be sent, got %+v", stub.accepted)
	}

	var stored models.Memorial
	if err := db.First(&stored, memorial.ID).Error; err != nil {
		t.Fatalf("load memorial failed: %v", err)
	}
	if stored.ThanksSent {
		t.Fatalf("skipped memorial must not be marked")
	}
}

func TestThanksRunIdempotent(t *testing.T) {
	stub := newSensStub(t)
	svc, db := newThanksTestEnv(t, "thanks_idempotent", stub)

	date := yesterdayUTC()
	createThanksMemorial(t, db, "M-T-1001", "010-1234-5678", date)

	first, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.SentCount != 1 || !first.Success {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.TotalCount != 0 || second.SentCount != 0 {
		t.Fatalf("second run should find no candidates: %+v", second)
	}
	if len(stub.accepted) != 1 {
		t.Fatalf("message should be sent once, got %d", len(stub.accepted))
	}
}

func TestThanksRunStoreUnavailable(t *testing.T) {
	stub := newSensStub(t)
	svc, db := newThanksTestEnv(t, "thanks_store_down", stub)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close sql db failed: %v", err)
	}

	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrThanksStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got %v", err)
	}
}

func TestVerifyTriggerToken(t *testing.T) {
	stub := newSensStub(t)
	svc, _ := newThanksTestEnv(t, "thanks_token", stub)

	// debug 模式未配置秘钥时放行
	if err := svc.VerifyTriggerToken(""); err != nil {
		t.Fatalf("debug mode without token should pass: %v", err)
	}

	svc.cfg.TriggerToken = "secret-token"
	if err := svc.VerifyTriggerToken("Bearer secret-token"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if err := svc.VerifyTriggerToken("secret-token"); err != nil {
		t.Fatalf("bare token rejected: %v", err)
	}
	if err := svc.VerifyTriggerToken("Bearer wrong"); !errors.Is(err, ErrThanksUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := svc.VerifyTriggerToken(""); !errors.Is(err, ErrThanksUnauthorized) {
		t.Fatalf("expected unauthorized for missing header, got %v", err)
	}

	// release 模式未配置秘钥时一律拒绝
	svc.cfg.TriggerToken = ""
	svc.isRelease = true
	if err := svc.VerifyTriggerToken(""); !errors.Is(err, ErrThanksUnauthorized) {
		t.Fatalf("release mode without token should reject, got %v", err)
	}
}
