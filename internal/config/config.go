package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Logging
	LogLevel string

	// Docker環境で起動しているか（IS_DOCKER）
	IsDocker bool

	// Firebase
	FirebaseCredentialsFile string

	// Upload
	UploadDir       string
	UploadMaxBytes  int64
	UploadURLPrefix string
	ThumbnailWidth  int

	// Image import
	ImageImportTimeout time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral  int
	RateLimitPurchase int

	// CORS
	CORSEnabled       bool
	CORSAllowedOrigin string

	// Shop
	AdminUIDs            []string
	AllowRemovedPurchase bool
	SeedSampleProducts   bool

	// Cleanup worker
	OrphanUploadGrace time.Duration
	CleanupInterval   time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.IsDocker = getEnvBool("IS_DOCKER", false)

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.FirebaseCredentialsFile = getEnvString("FIREBASE_CREDENTIALS_FILE", defaultCredentialsFile(cfg.IsDocker))
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads/products")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 10*1024*1024)
	cfg.UploadURLPrefix = strings.TrimRight(getEnvString("UPLOAD_URL_PREFIX", "/uploads/products"), "/")
	cfg.ThumbnailWidth = getEnvInt("THUMBNAIL_WIDTH", 400)
	cfg.ImageImportTimeout = getEnvDuration("IMAGE_IMPORT_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPurchase = getEnvInt("RATE_LIMIT_PURCHASE", 30)
	// Docker環境ではリバースプロキシ側で同一オリジンになるためCORSを無効にする
	cfg.CORSEnabled = getEnvBool("CORS_ENABLED", !cfg.IsDocker)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.AdminUIDs = getEnvList("ADMIN_UIDS")
	cfg.AllowRemovedPurchase = getEnvBool("ALLOW_REMOVED_PURCHASE", true)
	cfg.SeedSampleProducts = getEnvBool("SEED_SAMPLE_PRODUCTS", true)
	cfg.OrphanUploadGrace = getEnvDuration("ORPHAN_UPLOAD_GRACE", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
}

func defaultCredentialsFile(isDocker bool) string {
	if isDocker {
		return "/app/firebase/serviceAccountKey.json"
	}
	return "firebase/serviceAccountKey.json"
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
	if err != nil {
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
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
