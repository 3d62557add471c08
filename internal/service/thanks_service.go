package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/budo-next/internal/cache"
	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/constants"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/notify/sens"
	"github.com/budo-next/internal/repository"

	"go.uber.org/zap"
)

// ThanksService 答谢消息批处理。每日对出殡日期为昨天的讣告
// 发送丧主答谢消息，发送成功后置位 thanks_sent 防止重复。
type ThanksService struct {
	memorialRepo repository.MemorialRepository
	notifySvc    *NotifyService
	cfg          config.ThanksConfig
	location     *time.Location
	isRelease    bool
}

// ThanksRunSummary 单次批处理执行摘要
type ThanksRunSummary struct {
	Success      bool     `json:"success"`
	FuneralDate  string   `json:"funeral_date"`
	TotalCount   int      `json:"total_count"`
	SentCount    int      `json:"sent_count"`
	SkippedCount int      `json:"skipped_count"`
	Errors       []string `json:"errors"`
}

// NewThanksService 创建答谢批处理服务
func NewThanksService(memorialRepo repository.MemorialRepository, notifySvc *NotifyService, cfg config.ThanksConfig, isRelease bool) *ThanksService {
	location, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		logger.Warnw("thanks_timezone_invalid",
			"timezone", cfg.Timezone,
			"error", err,
		)
		location = time.UTC
	}
	return &ThanksService{
		memorialRepo: memorialRepo,
		notifySvc:    notifySvc,
		cfg:          cfg,
		location:     location,
		isRelease:    isRelease,
	}
}

func thanksLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// VerifyTriggerToken 校验触发端点的 Bearer 秘钥。
// release 模式未配置秘钥时一律拒绝，debug 模式未配置时放行。
func (s *ThanksService) VerifyTriggerToken(authHeader string) error {
	token := strings.TrimSpace(s.cfg.TriggerToken)
	if token == "" {
		if s.isRelease {
			return ErrThanksUnauthorized
		}
		return nil
	}
	provided := strings.TrimSpace(authHeader)
	if strings.HasPrefix(strings.ToLower(provided), "bearer ") {
		provided = strings.TrimSpace(provided[len("bearer "):])
	}
	if provided == "" {
		return ErrThanksUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return ErrThanksUnauthorized
	}
	return nil
}

// Run 执行一次答谢批处理。
// Redis 锁只做同日并发护栏，真正的幂等由 thanks_sent 标记保证。
func (s *ThanksService) Run(ctx context.Context) (*ThanksRunSummary, error) {
	funeralDate := s.yesterday()
	log := thanksLogger("funeral_date", funeralDate)

	lockKey := "thanks:run:" + funeralDate
	acquired, err := cache.SetNX(ctx, lockKey, time.Now().Unix(), s.lockTTL())
	if err != nil {
		// 缓存降级时放行执行，但此时没有持有锁，不能去释放别人的锁
		log.Warnw("thanks_lock_acquire_failed", "error", err)
	} else if !acquired {
		log.Infow("thanks_run_locked")
		return nil, ErrThanksRunLocked
	} else {
		defer func() {
			if err := cache.Del(context.Background(), lockKey); err != nil {
				log.Warnw("thanks_lock_release_failed", "error", err)
			}
		}()
	}

	candidates, err := s.memorialRepo.ListThanksCandidates(funeralDate)
	if err != nil {
		log.Errorw("thanks_candidates_fetch_failed", "error", err)
		return nil, ErrThanksStoreUnavailable
	}

	summary := &ThanksRunSummary{
		FuneralDate: funeralDate,
		TotalCount:  len(candidates),
		Errors:      []string{},
	}
	reserveTime := s.reserveTime()
	templateCode := ""
	if s.cfg.TemplateEnabled {
		templateCode = constants.NotifyTemplateThanks
	}

	for i := range candidates {
		memorial := &candidates[i]
		if sens.NormalizePhone(memorial.MournerPhone) == "" {
			log.Infow("thanks_skip_no_phone", "memorial_id", memorial.ID)
			summary.SkippedCount++
			continue
		}
		if err := s.notifySvc.NotifyCustomer(ctx, CustomerNotifyInput{
			Phone:        memorial.MournerPhone,
			TemplateCode: templateCode,
			Content:      thanksText(memorial),
			ReserveTime:  reserveTime,
		}); err != nil {
			log.Warnw("thanks_send_failed", "memorial_id", memorial.ID, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("memorial %d: %v", memorial.ID, err))
			continue
		}
		marked, err := s.memorialRepo.MarkThanksSent(memorial.ID)
		if err != nil {
			log.Errorw("thanks_mark_failed", "memorial_id", memorial.ID, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("memorial %d: mark failed: %v", memorial.ID, err))
			continue
		}
		if !marked {
			// 另一次执行已抢先标记，消息可能重复发送（至少一次语义）
			log.Infow("thanks_already_marked", "memorial_id", memorial.ID)
			summary.SkippedCount++
			continue
		}
		summary.SentCount++
	}

	summary.Success = len(summary.Errors) == 0
	log.Infow("thanks_run_completed",
		"total_count", summary.TotalCount,
		"sent_count", summary.SentCount,
		"skipped_count", summary.SkippedCount,
		"error_count", len(summary.Errors),
	)
	return summary, nil
}

// yesterday 按配置时区判定"昨天"
func (s *ThanksService) yesterday() string {
	return time.Now().In(s.location).AddDate(0, 0, -1).Format("2006-01-02")
}

// reserveTime 计算预约发送时刻，未配置时返回空串（立即发送）
func (s *ThanksService) reserveTime() string {
	hm := strings.TrimSpace(s.cfg.SendHourMinute)
	if hm == "" {
		return ""
	}
	parsed, err := time.Parse("15:04", hm)
	if err != nil {
		thanksLogger().Warnw("thanks_send_time_invalid", "send_hour_minute", hm)
		return ""
	}
	now := time.Now().In(s.location)
	at := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, s.location)
	if !at.After(now) {
		return ""
	}
	return at.Format("2006-01-02 15:04")
}

func (s *ThanksService) lockTTL() time.Duration {
	if s.cfg.LockTTLSeconds > 0 {
		return time.Duration(s.cfg.LockTTLSeconds) * time.Second
	}
	return 10 * time.Minute
}
