package provider

import (
	"time"

	"github.com/stamp-next/internal/authz"
	"github.com/stamp-next/internal/cache"
	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/queue"
	"github.com/stamp-next/internal/repository"
	"github.com/stamp-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.Collector
	Clock       service.Clock

	// Repositories
	MerchantRepo   repository.MerchantRepository
	ProgramRepo    repository.ProgramRepository
	CustomerRepo   repository.CustomerRepository
	MembershipRepo repository.MembershipRepository
	StampEventRepo repository.StampEventRepository
	QRTokenRepo    repository.QRTokenRepository
	RedemptionRepo repository.RedemptionRepository

	// Services
	AuthzService        *authz.Service
	QRTokenService      *service.QRTokenService
	FraudGuard          *service.FraudGuard
	RewardEngine        *service.RewardCycleEngine
	StampLedgerService  *service.StampLedgerService
	RedemptionService   *service.RedemptionService
	ScanService         *service.ScanService
	NotificationService *service.NotificationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}
	cache.SetMembershipStateTTL(time.Duration(cfg.Redis.StateCacheSeconds) * time.Second)

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Clock:       service.SystemClock(),
	}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New()
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.MerchantRepo = repository.NewMerchantRepository(db)
	c.ProgramRepo = repository.NewProgramRepository(db)
	c.CustomerRepo = repository.NewCustomerRepository(db)
	c.MembershipRepo = repository.NewMembershipRepository(db)
	c.StampEventRepo = repository.NewStampEventRepository(db)
	c.QRTokenRepo = repository.NewQRTokenRepository(db)
	c.RedemptionRepo = repository.NewRedemptionRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	extra := make([]authz.Policy, 0, len(c.Config.Authz.ExtraPolicies))
	for _, item := range c.Config.Authz.ExtraPolicies {
		extra = append(extra, authz.Policy{Subject: item.ActorType, Object: item.Object, Action: item.Action})
	}
	synced, err := c.AuthzService.SyncRolePolicies(extra)
	if err != nil {
		logger.Errorw("provider_sync_role_policies_failed", "error", err)
		panic(err)
	}
	if len(synced.Added) > 0 || len(synced.Removed) > 0 {
		logger.Infow("provider_role_policies_synced", "added", len(synced.Added), "removed", len(synced.Removed))
	}

	retry := service.RetryPolicy{
		MaxRetries: c.Config.Ledger.MaxConflictRetries,
		Backoff:    time.Duration(c.Config.Ledger.RetryBackoffMS) * time.Millisecond,
	}

	tokenCfg := c.Config.Token
	c.QRTokenService, err = service.NewQRTokenService(c.QRTokenRepo, service.TokenOptions{
		Secret: tokenCfg.Secret,
		DefaultTTL: map[string]time.Duration{
			constants.TokenPurposeJoin:   tokenCfg.TTLFor(constants.TokenPurposeJoin),
			constants.TokenPurposeStamp:  tokenCfg.TTLFor(constants.TokenPurposeStamp),
			constants.TokenPurposeRedeem: tokenCfg.TTLFor(constants.TokenPurposeRedeem),
		},
		MaxTTL: time.Duration(tokenCfg.MaxTTLSeconds) * time.Second,
	}, retry, c.Clock, c.Metrics)
	if err != nil {
		logger.Errorw("provider_init_qr_token_service_failed", "error", err)
		panic(err)
	}

	c.FraudGuard = service.NewFraudGuard(c.QRTokenService, c.StampEventRepo, service.FraudOptions{
		GeofenceRadiusMeters: c.Config.Fraud.GeofenceRadiusMeters,
		StampCooldown:        time.Duration(c.Config.Fraud.StampCooldownSeconds) * time.Second,
		AllowMissingGeo:      c.Config.Fraud.AllowMissingGeo,
	}, c.Clock)

	c.RewardEngine = service.NewRewardCycleEngine(service.RewardOptions{
		VoucherValidity:   time.Duration(c.Config.Reward.VoucherValidityHours) * time.Hour,
		VoucherCodeLength: c.Config.Reward.VoucherCodeLength,
	})

	notifier := service.NewQueueNotifier(c.QueueClient, c.Metrics)
	c.StampLedgerService = service.NewStampLedgerService(
		c.MembershipRepo,
		c.StampEventRepo,
		c.ProgramRepo,
		c.RewardEngine,
		notifier,
		retry,
		c.Clock,
		c.Metrics,
	)
	c.RedemptionService = service.NewRedemptionService(
		c.MembershipRepo,
		c.RedemptionRepo,
		c.ProgramRepo,
		c.RewardEngine,
		notifier,
		retry,
		c.Clock,
		c.Metrics,
	)
	c.ScanService = service.NewScanService(service.ScanServiceDeps{
		MembershipRepo: c.MembershipRepo,
		ProgramRepo:    c.ProgramRepo,
		CustomerRepo:   c.CustomerRepo,
		Tokens:         c.QRTokenService,
		Guard:          c.FraudGuard,
		Ledger:         c.StampLedgerService,
		Redemption:     c.RedemptionService,
		Engine:         c.RewardEngine,
		Retry:          retry,
		Clock:          c.Clock,
		Metrics:        c.Metrics,
	})
	c.NotificationService = service.NewNotificationService(c.CustomerRepo, service.LogNotificationSender{})
}
