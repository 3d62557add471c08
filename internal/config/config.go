package config

import (
	"fmt"
	"strings"

	"github.com/budo-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	ChatOps  ChatOpsConfig  `mapstructure:"chatops"`
	Thanks   ThanksConfig   `mapstructure:"thanks"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // debug / release
	BaseURL string `mapstructure:"base_url"`
}

// IsRelease 判断是否为生产模式
func (c ServerConfig) IsRelease() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), "release")
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
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
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	APIBaseURL     string `mapstructure:"api_base_url"`    // 网关接口地址
	MerchantID     string `mapstructure:"merchant_id"`     // 商户号（mid）
	MerchantKey    string `mapstructure:"merchant_key"`    // 商户密钥（签名用）
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 承认请求超时
}

// NotifyConfig 客户通知渠道配置
type NotifyConfig struct {
	APIBaseURL       string `mapstructure:"api_base_url"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	AlimtalkService  string `mapstructure:"alimtalk_service_id"`
	SMSService       string `mapstructure:"sms_service_id"`
	PlusFriendID     string `mapstructure:"plus_friend_id"` // 模板消息发送主体
	SenderNumber     string `mapstructure:"sender_number"`  // 短信发送号码
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	FallbackDisabled bool   `mapstructure:"fallback_disabled"` // 关闭短信兜底（测试用）
}

// ChatOpsConfig 内部告警通道配置
type ChatOpsConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ThanksConfig 答谢消息批处理配置
type ThanksConfig struct {
	TriggerToken    string `mapstructure:"trigger_token"` // 触发端点 Bearer 秘钥
	Timezone        string `mapstructure:"timezone"`      // 判定"昨天"的时区
	LockTTLSeconds  int    `mapstructure:"lock_ttl_seconds"`
	SendHourMinute  string `mapstructure:"send_hour_minute"` // 预约发送时刻（HH:mm，空则立即发送）
	TemplateEnabled bool   `mapstructure:"template_enabled"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/budo.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "bg")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default": 10,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("payment.api_base_url", "https://webapi.nicepay.co.kr")
	viper.SetDefault("payment.merchant_id", "")
	viper.SetDefault("payment.merchant_key", "")
	viper.SetDefault("payment.timeout_seconds", 5)
	viper.SetDefault("notify.api_base_url", "https://sens.apigw.ntruss.com")
	viper.SetDefault("notify.access_key", "")
	viper.SetDefault("notify.secret_key", "")
	viper.SetDefault("notify.alimtalk_service_id", "")
	viper.SetDefault("notify.sms_service_id", "")
	viper.SetDefault("notify.plus_friend_id", "")
	viper.SetDefault("notify.sender_number", "")
	viper.SetDefault("notify.timeout_seconds", 5)
	viper.SetDefault("notify.fallback_disabled", false)
	viper.SetDefault("chatops.webhook_url", "")
	viper.SetDefault("chatops.timeout_seconds", 3)
	viper.SetDefault("thanks.trigger_token", "")
	viper.SetDefault("thanks.timezone", "Asia/Seoul")
	viper.SetDefault("thanks.lock_ttl_seconds", 600)
	viper.SetDefault("thanks.send_hour_minute", "")
	viper.SetDefault("thanks.template_enabled", true)

	// 环境变量支持（server.port -> SERVER_PORT）
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("config unmarshal failed: %w", err))
	}
	return &cfg
}
