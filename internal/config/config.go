// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minSessionSecretLength はセッショントークンの署名鍵に求める最小バイト数。
const minSessionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge time.Duration

	// Oracle
	GeminiAPIKey            string
	GeminiModel             string
	GeminiBaseURL           string
	OpenFoodFactsBaseURL    string
	OracleTextTimeout       time.Duration
	OracleVisionTimeout     time.Duration
	OracleWeightTimeout     time.Duration
	ProductLookupTimeout    time.Duration
	OracleAllowPrivateHosts bool

	// Rate Limit（req/min/session）
	RateLimitGeneral int
	RateLimitOracle  int

	// Upload
	MaxUploadSize int64

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（空の場合は別オリジンからの画像認識を許可しない）
	CORSAllowedOrigin string
}

// LoadDotEnv は .env ファイルがあれば環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Geminiの認証情報は任意で、未設定の場合は該当する推定のみが失敗する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if len(cfg.SessionSecret) < minSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "sqlite://nutrients.db")
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 365*24*time.Hour)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.GeminiBaseURL = getEnvString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.OpenFoodFactsBaseURL = getEnvString("OPENFOODFACTS_BASE_URL", "https://world.openfoodfacts.org")
	cfg.OracleTextTimeout = getEnvDuration("ORACLE_TEXT_TIMEOUT", 30*time.Second)
	cfg.OracleVisionTimeout = getEnvDuration("ORACLE_VISION_TIMEOUT", 60*time.Second)
	cfg.OracleWeightTimeout = getEnvDuration("ORACLE_WEIGHT_TIMEOUT", 15*time.Second)
	cfg.ProductLookupTimeout = getEnvDuration("PRODUCT_LOOKUP_TIMEOUT", 15*time.Second)
	cfg.OracleAllowPrivateHosts = getEnvBool("ORACLE_ALLOW_PRIVATE_HOSTS", false)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOracle = getEnvInt("RATE_LIMIT_ORACLE", 10)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 10<<20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvDuration は "30s" 形式のほか、秒数の整数も受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
