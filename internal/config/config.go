package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stamp-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Token     TokenConfig     `mapstructure:"token"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
	Reward    RewardConfig    `mapstructure:"reward"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Authz     AuthzConfig     `mapstructure:"authz"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
	// 超时配置（秒），0 表示使用默认值
	ReadTimeoutSeconds     int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	AlsoStdout bool   `mapstructure:"also_stdout"`
	// 采样：每秒同一事件先输出 sample_initial 条，之后每 sample_thereafter 条输出一条
	SampleInitial    int `mapstructure:"sample_initial"`
	SampleThereafter int `mapstructure:"sample_thereafter"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		Level:      c.Level,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		AlsoStdout: c.AlsoStdout,

		SampleInitial:    c.SampleInitial,
		SampleThereafter: c.SampleThereafter,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// StateCacheSeconds 会员状态读缓存时长，0 表示不缓存
	StateCacheSeconds int `mapstructure:"state_cache_seconds"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
	// TokenPurgeIntervalSeconds 过期令牌清理间隔
	TokenPurgeIntervalSeconds int `mapstructure:"token_purge_interval_seconds"`
	// TokenRetentionHours 失效令牌保留时长
	TokenRetentionHours int `mapstructure:"token_retention_hours"`
}

// AuthConfig 身份令牌校验配置（令牌由外部身份系统签发）
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// TokenConfig 二维码令牌配置
type TokenConfig struct {
	Secret           string `mapstructure:"secret"`
	JoinTTLSeconds   int    `mapstructure:"join_ttl_seconds"`
	StampTTLSeconds  int    `mapstructure:"stamp_ttl_seconds"`
	RedeemTTLSeconds int    `mapstructure:"redeem_ttl_seconds"`
	MaxTTLSeconds    int    `mapstructure:"max_ttl_seconds"`
	ClockSkewSeconds int    `mapstructure:"clock_skew_seconds"`
}

// TTLFor 返回指定用途的默认有效期
func (c TokenConfig) TTLFor(purpose string) time.Duration {
	seconds := 0
	switch purpose {
	case "join":
		seconds = c.JoinTTLSeconds
	case "stamp":
		seconds = c.StampTTLSeconds
	case "redeem":
		seconds = c.RedeemTTLSeconds
	}
	if seconds <= 0 {
		seconds = 120
	}
	return time.Duration(seconds) * time.Second
}

// FraudConfig 防作弊配置
type FraudConfig struct {
	GeofenceRadiusMeters int  `mapstructure:"geofence_radius_meters"`
	StampCooldownSeconds int  `mapstructure:"stamp_cooldown_seconds"`
	AllowMissingGeo      bool `mapstructure:"allow_missing_geo"`
}

// RewardConfig 奖励配置
type RewardConfig struct {
	VoucherValidityHours int `mapstructure:"voucher_validity_hours"`
	VoucherCodeLength    int `mapstructure:"voucher_code_length"`
}

// LedgerConfig 账本配置
type LedgerConfig struct {
	MaxConflictRetries int `mapstructure:"max_conflict_retries"`
	RetryBackoffMS     int `mapstructure:"retry_backoff_ms"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig 扫码接口限流配置
type RateLimitConfig struct {
	ScanWindowSeconds int `mapstructure:"scan_window_seconds"`
	ScanMaxRequests   int `mapstructure:"scan_max_requests"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuthzPolicyConfig 额外授权项
type AuthzPolicyConfig struct {
	ActorType string `mapstructure:"actor_type"` // customer / staff
	Object    string `mapstructure:"object"`
	Action    string `mapstructure:"action"`
}

// AuthzConfig 授权配置，额外授权在启动时与内置角色矩阵合并
type AuthzConfig struct {
	ExtraPolicies []AuthzPolicyConfig `mapstructure:"extra_policies"`
}

// SetDefaults 写入默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "stamp.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.also_stdout", false)
	v.SetDefault("log.sample_initial", 100)
	v.SetDefault("log.sample_thereafter", 100)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/stamp.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "stamp")
	v.SetDefault("redis.state_cache_seconds", 5)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("queue.token_purge_interval_seconds", 3600)
	v.SetDefault("queue.token_retention_hours", 72)
	v.SetDefault("auth.secret", "change-me-in-production")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("token.secret", "qr-change-me-in-production")
	v.SetDefault("token.join_ttl_seconds", 300)
	v.SetDefault("token.stamp_ttl_seconds", 120)
	v.SetDefault("token.redeem_ttl_seconds", 120)
	v.SetDefault("token.max_ttl_seconds", 86400)
	v.SetDefault("token.clock_skew_seconds", 5)
	v.SetDefault("fraud.geofence_radius_meters", 150)
	v.SetDefault("fraud.stamp_cooldown_seconds", 300)
	v.SetDefault("fraud.allow_missing_geo", false)
	v.SetDefault("reward.voucher_validity_hours", 24)
	v.SetDefault("reward.voucher_code_length", 10)
	v.SetDefault("ledger.max_conflict_retries", 3)
	v.SetDefault("ledger.retry_backoff_ms", 20)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
		"X-Device-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("rate_limit.scan_window_seconds", 10)
	v.SetDefault("rate_limit.scan_max_requests", 5)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持（例如 fraud.stamp_cooldown_seconds -> FRAUD_STAMP_COOLDOWN_SECONDS）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Unmarshal 从 viper 实例解析配置
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回仅包含默认值的配置（测试与工具命令使用）
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Unmarshal(v)
	if err != nil {
		panic(fmt.Errorf("默认配置解析失败: %w", err))
	}
	return cfg
}
