package app

import (
	"strings"
	"time"

	"github.com/yungbote/studyquiz-backend/internal/platform/envutil"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type Config struct {
	Env         string
	Version     string
	ServiceName string

	HTTPAddr        string
	MetricsAddr     string
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string

	DBDriver    string
	SQLitePath  string
	PostgresDSN string

	MediaWorkRoot string
	PdftoppmPath  string
	HeifConvert   string

	RedisAddr    string
	RedisChannel string

	PreviewCacheSize int
	PreviewCacheTTL  time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:         envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "studyquiz"),

		HTTPAddr:        envutil.String("HTTP_ADDR", ":8080"),
		MetricsAddr:     envutil.String("METRICS_ADDR", ""),
		AllowedOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		MaxUploadBytes:  int64(envutil.Int("MAX_UPLOAD_MB", 50)) << 20,
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		GeminiAPIKey: envutil.String("GEMINI_API_KEY", ""),
		GeminiModel:  envutil.String("GEMINI_MODEL", ""),

		DBDriver:    envutil.String("DB_DRIVER", "sqlite"),
		SQLitePath:  envutil.String("SQLITE_PATH", "studyquiz.db"),
		PostgresDSN: envutil.String("POSTGRES_DSN", ""),

		MediaWorkRoot: envutil.String("MEDIA_WORK_ROOT", ""),
		PdftoppmPath:  envutil.String("PDFTOPPM_PATH", ""),
		HeifConvert:   envutil.String("HEIF_CONVERT_PATH", ""),

		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", "studyquiz:library"),

		PreviewCacheSize: envutil.Int("PREVIEW_CACHE_SIZE", 256),
		PreviewCacheTTL:  envutil.Duration("PREVIEW_CACHE_TTL", 10*time.Minute),
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set; analysis and quiz generation will report missing credentials")
	}
	log.Info("config loaded",
		"env", cfg.Env,
		"http_addr", cfg.HTTPAddr,
		"db_driver", cfg.DBDriver,
		"redis_enabled", cfg.RedisAddr != "",
	)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envLogMode() string {
	return envutil.String("LOG_MODE", "development")
}
