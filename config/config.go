package config

import (
	"fmt"
	"strings"
	"time"

	"jeoparty/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string
	BindAddress string
	BaseURL     string
	AppEnv      string
	LogLevel    string
	Store       string

	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	DBMaxIdleConns int

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	StateTTL      time.Duration

	JWTSecret string

	MetricsEnabled bool
	OtlpEndpoint   string
	OtlpInsecure   bool
}

// NewViper returns a viper instance reading JEOPARTY_* variables with defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("JEOPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("app_env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("store", StorePostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "jeoparty")
	v.SetDefault("db_password", "jeoparty")
	v.SetDefault("db_name", "jeoparty")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("redis_host", "")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("state_ttl", 24*time.Hour)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("otlp_insecure", false)
	return v
}

func Load(v *viper.Viper) *Config {
	return &Config{
		Port:           v.GetString("port"),
		BindAddress:    v.GetString("bind_address"),
		BaseURL:        strings.TrimRight(v.GetString("base_url"), "/"),
		AppEnv:         v.GetString("app_env"),
		LogLevel:       v.GetString("log_level"),
		Store:          strings.ToLower(v.GetString("store")),
		DBHost:         v.GetString("db_host"),
		DBPort:         v.GetString("db_port"),
		DBUser:         v.GetString("db_user"),
		DBPassword:     v.GetString("db_password"),
		DBName:         v.GetString("db_name"),
		DBSSLMode:      v.GetString("db_sslmode"),
		DBMaxOpenConns: v.GetInt("db_max_open_conns"),
		DBMaxIdleConns: v.GetInt("db_max_idle_conns"),
		RedisHost:      v.GetString("redis_host"),
		RedisPort:      v.GetString("redis_port"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		StateTTL:       v.GetDuration("state_ttl"),
		JWTSecret:      v.GetString("jwt_secret"),
		MetricsEnabled: v.GetBool("metrics_enabled"),
		OtlpEndpoint:   v.GetString("otlp_endpoint"),
		OtlpInsecure:   v.GetBool("otlp_insecure"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) Validate() error {
	var port int
	if _, err := fmt.Sscanf(c.Port, "%d", &port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %s", c.Port)
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("unknown store %q (expected %s or %s)", c.Store, StorePostgres, StoreMemory)
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JEOPARTY_JWT_SECRET is required outside development")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("state ttl must be positive, got %s", c.StateTTL)
	}
	return nil
}

// devJWTSecret signs presenter tokens in development when no secret is set.
const devJWTSecret = "jeoparty-development-secret"

// SigningSecret returns the JWT secret, falling back to a fixed secret in development.
func (c *Config) SigningSecret() string {
	if c.JWTSecret == "" && c.IsDevelopment() {
		return devJWTSecret
	}
	return c.JWTSecret
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("Database connection established", "host", cfg.DBHost, "name", cfg.DBName)
	return db, nil
}

// InitRedis returns nil when no Redis host is configured.
func InitRedis(cfg *Config) *redis.Client {
	if cfg.RedisHost == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
