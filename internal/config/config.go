package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Storage   StorageConfig   `mapstructure:"storage"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

type AppConfig struct {
	Name             string        `mapstructure:"name" validate:"required"`
	NodeID           int64         `mapstructure:"node_id" validate:"min=0,max=1023"`
	Port             int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	AdminPort        int           `mapstructure:"admin_port" validate:"required,min=1,max=65535,nefield=Port"`
	Mode             string        `mapstructure:"mode" validate:"oneof=debug release test"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"gt=0"`
}

type JWTConfig struct {
	SecretKey     string        `mapstructure:"secret_key" validate:"required,min=16"`
	AccessExpire  time.Duration `mapstructure:"access_expire" validate:"gt=0"`
	RefreshExpire time.Duration `mapstructure:"refresh_expire" validate:"gtfield=AccessExpire"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN 生成 PostgreSQL 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	PoolSize int    `mapstructure:"pool_size" validate:"min=1"`
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type NATSConfig struct {
	URL           string        `mapstructure:"url" validate:"required"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	IndexWorkers  int           `mapstructure:"index_workers" validate:"min=1"`
	IndexQueue    int           `mapstructure:"index_queue" validate:"min=1"`
	// Embedded 单实例部署时在进程内启动 NATS，URL 被忽略
	Embedded     bool   `mapstructure:"embedded"`
	EmbeddedHost string `mapstructure:"embedded_host"`
	EmbeddedPort int    `mapstructure:"embedded_port"`
}

type StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region" validate:"required"`
	Bucket          string        `mapstructure:"bucket" validate:"required"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	PublicURL       string        `mapstructure:"public_url"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size" validate:"gt=0"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"min=1"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" validate:"min=1"`
	Burst             int  `mapstructure:"burst"`
}

type StreamConfig struct {
	BufferSize   int           `mapstructure:"buffer_size" validate:"min=1"`
	PingInterval time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

// setDefaults 设置默认值，配置文件中缺失的键使用这里的取值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chatroom")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.admin_port", 8081)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.operation_timeout", 10*time.Second)

	v.SetDefault("jwt.access_expire", 2*time.Hour)
	v.SetDefault("jwt.refresh_expire", 7*24*time.Hour)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.index_workers", 8)
	v.SetDefault("nats.index_queue", 256)
	v.SetDefault("nats.embedded_host", "127.0.0.1")
	v.SetDefault("nats.embedded_port", -1)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.max_upload_size", 10<<20)
	v.SetDefault("storage.breaker_timeout", 30*time.Second)
	v.SetDefault("storage.breaker_failures", 5)

	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("stream.buffer_size", 64)
	v.SetDefault("stream.ping_interval", 30*time.Second)
	v.SetDefault("stream.write_timeout", 10*time.Second)
}

// Load 从指定路径加载配置
// 读取顺序：默认值 < 配置文件 < 环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 从环境变量覆盖配置
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.Port = GetEnvInt("CHATROOM_PORT", c.App.Port)
	c.App.AdminPort = GetEnvInt("CHATROOM_ADMIN_PORT", c.App.AdminPort)
	c.App.NodeID = int64(GetEnvInt("CHATROOM_NODE_ID", int(c.App.NodeID)))
	c.App.Mode = GetEnv("GIN_MODE", c.App.Mode)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.OperationTimeout = GetEnvDuration("OPERATION_TIMEOUT", c.App.OperationTimeout)

	// JWT
	c.JWT.SecretKey = GetEnv("JWT_SECRET", c.JWT.SecretKey)
	c.JWT.AccessExpire = GetEnvDuration("JWT_ACCESS_EXPIRE", c.JWT.AccessExpire)
	c.JWT.RefreshExpire = GetEnvDuration("JWT_REFRESH_EXPIRE", c.JWT.RefreshExpire)

	// Database
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.MaxOpenConns = GetEnvInt("POSTGRES_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = GetEnvInt("POSTGRES_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.AutoMigrate = GetEnvBool("POSTGRES_AUTO_MIGRATE", c.Database.AutoMigrate)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = GetEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)
	c.NATS.Embedded = GetEnvBool("NATS_EMBEDDED", c.NATS.Embedded)

	// Storage
	c.Storage.Endpoint = GetEnv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = GetEnv("S3_REGION", c.Storage.Region)
	c.Storage.Bucket = GetEnv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.AccessKeyID = GetEnv("S3_ACCESS_KEY_ID", c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = GetEnv("S3_SECRET_ACCESS_KEY", c.Storage.SecretAccessKey)
	c.Storage.PublicURL = GetEnv("S3_PUBLIC_URL", c.Storage.PublicURL)

	// CORS
	c.CORS.AllowedOrigins = GetEnvSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
}
