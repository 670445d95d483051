package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseDriver     string
	DatabaseDSN        string
	JWTSecret          string
	AccessTokenTTL     string
	RefreshTokenTTL    string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CORSOrigin         string
	RateLimitRPS       float64
	RateLimitBurst     int
	TokenPurgeInterval time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 解析失败或非正数时回退到默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// LoadDotEnv 按 .env.local > .env 的优先级加载环境文件，已存在的环境变量不会被覆盖。
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

func Load() Config {
	purge, err := time.ParseDuration(getenv("TOKEN_PURGE_INTERVAL", "1h"))
	if err != nil || purge <= 0 {
		purge = time.Hour
	}
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		redisDB = 0
	}
	return Config{
		Port:               getenv("APP_PORT", "8080"),
		Env:                getenv("APP_ENV", "dev"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		DatabaseDriver:     getenv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:        getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chat port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:          getenv("JWT_SECRET", defaultJWTSecret),
		AccessTokenTTL:     getenv("ACCESS_TOKEN_TTL", "15m"),
		RefreshTokenTTL:    getenv("REFRESH_TOKEN_TTL", "7d"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		CORSOrigin:         getenv("CORS_ORIGIN", "http://localhost:3000"),
		RateLimitRPS:       getenvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", 40),
		TokenPurgeInterval: purge,
	}
}

// Validate 在启动前检查配置，生产环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	switch cfg.DatabaseDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed outside dev")
	}
	if cfg.AccessTokenTTL != "" {
		if _, err := auth.ParseLifetime(cfg.AccessTokenTTL); err != nil {
			return fmt.Errorf("ACCESS_TOKEN_TTL: %w", err)
		}
	}
	if cfg.RefreshTokenTTL != "" {
		if _, err := auth.ParseLifetime(cfg.RefreshTokenTTL); err != nil {
			return fmt.Errorf("REFRESH_TOKEN_TTL: %w", err)
		}
	}
	return nil
}
