// Package config は環境変数と任意の.envファイルから設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// セッションストアの種類。
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Google（ClientIDが空の場合は外部IdPサインインを無効化する）
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`
	GoogleCertsURL     string `mapstructure:"GOOGLE_CERTS_URL"`
	GoogleIssuers      string `mapstructure:"GOOGLE_ISSUERS"` // カンマ区切り

	// Session
	SessionMaxAge          int           `mapstructure:"SESSION_MAX_AGE"` // 秒
	SessionStore           string        `mapstructure:"SESSION_STORE"`
	SessionCleanupInterval time.Duration `mapstructure:"SESSION_CLEANUP_INTERVAL"`
	RedisAddr              string        `mapstructure:"REDIS_ADDR"`
	RedisPassword          string        `mapstructure:"REDIS_PASSWORD"`

	// Password hashing
	ScryptN int `mapstructure:"SCRYPT_N"`
	ScryptR int `mapstructure:"SCRYPT_R"`
	ScryptP int `mapstructure:"SCRYPT_P"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `mapstructure:"RATE_LIMIT_GENERAL"`
	RateLimitLogin   int `mapstructure:"RATE_LIMIT_LOGIN"`

	// Entries
	EntryPageDefault int `mapstructure:"ENTRY_PAGE_DEFAULT"`
	EntryPageMax     int `mapstructure:"ENTRY_PAGE_MAX"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Server
	ServerPort string `mapstructure:"SERVER_PORT"`
	BaseURL    string `mapstructure:"BASE_URL"`

	// Cookie
	CookieSecure bool   `mapstructure:"-"`
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`
}

// defaults は任意項目のデフォルト値。viperは既知のキーしかUnmarshalしないため、必須項目も空文字列で登録する。
var defaults = map[string]interface{}{
	"DATABASE_URL":             "",
	"BASE_URL":                 "",
	"GOOGLE_CLIENT_ID":         "",
	"GOOGLE_CLIENT_SECRET":     "",
	"GOOGLE_REDIRECT_URL":      "",
	"GOOGLE_CERTS_URL":         "https://www.googleapis.com/oauth2/v1/certs",
	"GOOGLE_ISSUERS":           "accounts.google.com,https://accounts.google.com",
	"SESSION_MAX_AGE":          2592000,
	"SESSION_STORE":            SessionStorePostgres,
	"SESSION_CLEANUP_INTERVAL": "1h",
	"REDIS_ADDR":               "localhost:6379",
	"REDIS_PASSWORD":           "",
	"SCRYPT_N":                 16384,
	"SCRYPT_R":                 8,
	"SCRYPT_P":                 1,
	"RATE_LIMIT_GENERAL":       120,
	"RATE_LIMIT_LOGIN":         10,
	"ENTRY_PAGE_DEFAULT":       10,
	"ENTRY_PAGE_MAX":           100,
	"LOG_LEVEL":                "info",
	"SERVER_PORT":              "8080",
	"COOKIE_DOMAIN":            "",
	"CORS_ALLOWED_ORIGIN":      "http://localhost:3000",
}

// Load は.env（存在する場合）と環境変数からConfigを読み込む。環境変数が.envより優先される。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isConfigNotFound(err) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	return &cfg, nil
}

// validate は任意項目の値の範囲を検証する。
func (c *Config) validate() error {
	switch c.SessionStore {
	case SessionStorePostgres, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreRedis, c.SessionStore)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge)
	}
	if c.SessionCleanupInterval <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", c.SessionCleanupInterval)
	}
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("SCRYPT_N must be a power of two greater than 1, got %d", c.ScryptN)
	}
	if c.ScryptR <= 0 || c.ScryptP <= 0 {
		return fmt.Errorf("SCRYPT_R and SCRYPT_P must be positive, got r=%d p=%d", c.ScryptR, c.ScryptP)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		return fmt.Errorf("rate limits must be positive, got general=%d login=%d", c.RateLimitGeneral, c.RateLimitLogin)
	}
	if c.EntryPageDefault <= 0 || c.EntryPageMax < c.EntryPageDefault {
		return fmt.Errorf("ENTRY_PAGE_DEFAULT must be positive and not exceed ENTRY_PAGE_MAX, got %d/%d", c.EntryPageDefault, c.EntryPageMax)
	}
	return nil
}

// GoogleSignInEnabled はIDトークンによるサインインが構成されているかを返す。
func (c *Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != ""
}

// GoogleOAuthEnabled は認可コードフローに必要な設定が揃っているかを返す。
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// GoogleIssuerList はGOOGLE_ISSUERSをリストに分割して返す。
func (c *Config) GoogleIssuerList() []string {
	parts := strings.Split(c.GoogleIssuers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isConfigNotFound は.envファイルが存在しないことを表すエラーかを判定する。.envは任意。
func isConfigNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
