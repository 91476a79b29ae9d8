package worker

import (
	"context"
	"errors"
	"time"

	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultTokenPurgeInterval  = time.Hour
	defaultTokenRetentionHours = 72
)

// Service 异步队列服务
type Service struct {
	name           string
	server         *asynq.Server
	mux            *asynq.ServeMux
	consumer       *Consumer
	purgeInterval  time.Duration
	tokenRetention time.Duration
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
		name:           "worker",
		server:         server,
		mux:            mux,
		consumer:       consumer,
		purgeInterval:  resolvePurgeInterval(cfg),
		tokenRetention: resolveTokenRetention(cfg),
	}, nil
}

func resolvePurgeInterval(cfg *config.QueueConfig) time.Duration {
	if cfg == nil || cfg.TokenPurgeIntervalSeconds <= 0 {
		return defaultTokenPurgeInterval
	}
	return time.Duration(cfg.TokenPurgeIntervalSeconds) * time.Second
}

func resolveTokenRetention(cfg *config.QueueConfig) time.Duration {
	hours := defaultTokenRetentionHours
	if cfg != nil && cfg.TokenRetentionHours > 0 {
		hours = cfg.TokenRetentionHours
	}
	return time.Duration(hours) * time.Hour
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
	if s.consumer != nil && s.consumer.Container != nil && s.consumer.QRTokenService != nil {
		go s.runTokenPurgeLoop(ctx)
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

func (s *Service) runTokenPurgeLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.QRTokenService == nil {
		return
	}
	s.purgeExpiredTokens(ctx, time.Now())

	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.purgeExpiredTokens(ctx, now)
		}
	}
}

// purgeExpiredTokens 清理保留期之前已失效的令牌
func (s *Service) purgeExpiredTokens(ctx context.Context, now time.Time) int64 {
	before := now.UTC().Add(-s.tokenRetention)
	purged, err := s.consumer.QRTokenService.PurgeExpired(ctx, before)
	if err != nil {
		logger.Warnw("worker_token_purge_failed", "before", before, "error", err)
		return 0
	}
	if purged > 0 {
		logger.Infow("worker_token_purged", "count", purged, "before", before)
	}
	return purged
}
