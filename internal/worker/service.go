package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/queue"
	"github.com/budo-next/internal/service"

	"github.com/hibiken/asynq"
)

// defaultThanksTriggerTime 答谢批处理的默认触发时刻
const defaultThanksTriggerTime = "09:00"

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.ThanksService != nil {
		go s.runThanksLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runThanksLoop 每日定时触发答谢批处理。
// 批处理本身幂等，外部 HTTP 触发与本循环可以并存。
func (s *Service) runThanksLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.ThanksService == nil {
		return
	}
	for {
		wait := s.untilNextThanksRun(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		summary, err := s.consumer.ThanksService.Run(ctx)
		if err != nil {
			if errors.Is(err, service.ErrThanksRunLocked) {
				logger.Infow("worker_thanks_run_locked")
				continue
			}
			logger.Warnw("worker_thanks_run_failed", "error", err)
			continue
		}
		logger.Infow("worker_thanks_run_done",
			"total_count", summary.TotalCount,
			"sent_count", summary.SentCount,
			"skipped_count", summary.SkippedCount,
			"error_count", len(summary.Errors),
		)
	}
}

func (s *Service) untilNextThanksRun(now time.Time) time.Duration {
	hm := defaultThanksTriggerTime
	if s.consumer != nil && s.consumer.Config != nil {
		if configured := strings.TrimSpace(s.consumer.Config.Thanks.SendHourMinute); configured != "" {
			hm = configured
		}
	}
	parsed, err := time.Parse("15:04", hm)
	if err != nil {
		parsed, _ = time.Parse("15:04", defaultThanksTriggerTime)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
