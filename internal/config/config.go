package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 包含所有应用配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	AliyunOSS     AliyunOSSConfig     `mapstructure:"aliyun_oss"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Log           LogConfig           `mapstructure:"log"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Security      SecurityConfig      `mapstructure:"security"`
	Session       SessionConfig       `mapstructure:"session"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Guard         GuardConfig         `mapstructure:"guard"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Links         LinksConfig         `mapstructure:"links"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin 模式: debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// DatabaseConfig 数据库配置，driver 支持 mysql、postgres、sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis配置，Addr 为空时不启用 Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig 画廊所有者的 JWT 配置 (Token 由画廊管理应用签发)
type JWTConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
	Issuer    string        `mapstructure:"issuer"`
}

// StorageConfig 媒体对象存储配置，Type 为空时不提供媒体预签名接口
type StorageConfig struct {
	Type               string        `mapstructure:"type"` // minio 或 aliyun_oss
	PresignedURLExpiry time.Duration `mapstructure:"presigned_url_expiry"`
}

// LogConfig zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// ElasticsearchConfig 审计事件镜像索引，Addresses 为空时不启用
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// SecurityConfig 安全相关配置
type SecurityConfig struct {
	// TokenHashSecret 用于会话/链接 token 的 HMAC 哈希，缺失时拒绝启动
	TokenHashSecret   string `mapstructure:"token_hash_secret"`
	BcryptCost        int    `mapstructure:"bcrypt_cost"`
	MinPasswordLength int    `mapstructure:"min_password_length"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig 各入口的尝试次数限制
type RateLimitConfig struct {
	Backend          string        `mapstructure:"backend"` // db 或 redis
	PasswordMax      int           `mapstructure:"password_max"`
	PasswordWindow   time.Duration `mapstructure:"password_window"`
	LinkRedeemMax    int           `mapstructure:"link_redeem_max"`
	LinkRedeemWindow time.Duration `mapstructure:"link_redeem_window"`
}

// GuardConfig 暴力破解升级策略
type GuardConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
	BlockDuration    time.Duration `mapstructure:"block_duration"`
	HashProbeBlock   time.Duration `mapstructure:"hash_probe_block"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	ArchiveBucket string `mapstructure:"archive_bucket"` // 为空时清理前不归档
	AlertStream   string `mapstructure:"alert_stream"`   // Redis Stream 名称
}

// LinksConfig 分享链接创建策略
type LinksConfig struct {
	MaxExpiryDays         int    `mapstructure:"max_expiry_days"`
	TemporaryMaxDays      int    `mapstructure:"temporary_max_days"`
	PreviewDefaultMaxUses int    `mapstructure:"preview_default_max_uses"`
	PublicBaseURL         string `mapstructure:"public_base_url"`
}

// JobsConfig 定时清理任务间隔
type JobsConfig struct {
	SessionCleanupInterval time.Duration `mapstructure:"session_cleanup_interval"`
	AuditPurgeInterval     time.Duration `mapstructure:"audit_purge_interval"`
	LinkSweepInterval      time.Duration `mapstructure:"link_sweep_interval"`
	RateLimitSweepInterval time.Duration `mapstructure:"rate_limit_sweep_interval"`
}

const minTokenHashSecretLen = 32

var ErrMissingHashSecret = errors.New("security.token_hash_secret 未配置或长度不足 32 字节")

var AppConfig *Config // 全局应用配置实例

// SetDefaults 注册所有默认值，LoadConfig 和测试共用
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("jwt.expires_in", time.Hour)
	v.SetDefault("jwt.issuer", "gallery-access")
	v.SetDefault("storage.presigned_url_expiry", 15*time.Minute)
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("elasticsearch.index", "gallery-security-audit")

	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.min_password_length", 8)
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("rate_limit.backend", "db")
	v.SetDefault("rate_limit.password_max", 5)
	v.SetDefault("rate_limit.password_window", 15*time.Minute)
	v.SetDefault("rate_limit.link_redeem_max", 20)
	v.SetDefault("rate_limit.link_redeem_window", 15*time.Minute)

	v.SetDefault("guard.failure_threshold", 6)
	v.SetDefault("guard.failure_window", time.Hour)
	v.SetDefault("guard.block_duration", 24*time.Hour)
	v.SetDefault("guard.hash_probe_block", 7*24*time.Hour)

	v.SetDefault("audit.retention_days", 30)
	v.SetDefault("audit.alert_stream", "security_alerts")

	v.SetDefault("links.max_expiry_days", 365)
	v.SetDefault("links.temporary_max_days", 7)
	v.SetDefault("links.preview_default_max_uses", 5)

	v.SetDefault("jobs.session_cleanup_interval", time.Hour)
	v.SetDefault("jobs.audit_purge_interval", 24*time.Hour)
	v.SetDefault("jobs.link_sweep_interval", 10*time.Minute)
	v.SetDefault("jobs.rate_limit_sweep_interval", time.Hour)
}

// LoadConfig 加载配置: .env -> config.yaml -> 环境变量 (GALLERY_ACCESS_ 前缀)
func LoadConfig() (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, relying on environment.")
	}

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/gallery-access/")

	// 例如 security.token_hash_secret 对应 GALLERY_ACCESS_SECURITY_TOKEN_HASH_SECRET
	v.SetEnvPrefix("GALLERY_ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	bindSecretEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		log.Println("Warning: config file not found, using environment variables and defaults.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}

// AutomaticEnv 只对 viper 已知的 key 生效，Unmarshal 需要显式绑定没有默认值的 key
func bindSecretEnv(v *viper.Viper) {
	for _, key := range []string{
		"security.token_hash_secret",
		"database.dsn",
		"jwt.secret_key",
		"redis.addr",
		"redis.password",
		"minio.endpoint",
		"minio.access_key_id",
		"minio.secret_access_key",
		"minio.bucket_name",
		"aliyun_oss.endpoint",
		"aliyun_oss.access_key_id",
		"aliyun_oss.secret_access_key",
		"aliyun_oss.bucket_name",
		"storage.type",
		"audit.archive_bucket",
		"links.public_base_url",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate 校验启动所必需的配置
func (c *Config) Validate() error {
	if len(c.Security.TokenHashSecret) < minTokenHashSecretLen {
		return ErrMissingHashSecret
	}
	if c.JWT.SecretKey == "" {
		return errors.New("jwt.secret_key 未配置")
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("未知的数据库驱动: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn 未配置")
	}
	switch c.RateLimit.Backend {
	case "db":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("rate_limit.backend=redis 需要配置 redis.addr")
		}
	default:
		return fmt.Errorf("未知的频率限制后端: %q", c.RateLimit.Backend)
	}
	if c.RateLimit.PasswordMax < 1 || c.RateLimit.LinkRedeemMax < 1 {
		return errors.New("rate_limit 最大尝试次数必须大于 0")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl 必须大于 0")
	}
	if c.Audit.RetentionDays < 1 {
		return errors.New("audit.retention_days 必须大于 0")
	}
	return nil
}

// Default 返回只包含默认值的配置，主要用于测试和本地工具
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("解析默认配置失败: %v", err))
	}
	return cfg
}
