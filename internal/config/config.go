package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	DataDir         string
	BaseURL         string
	VerifyBaseURL   string
	LogLevel        string
	LogFormat       string
	FontDirs        []string
	MagickPath      string
	PDFDensity      int
	MaxUploadBytes  int64
	DateLayout      string
	BootstrapAPIKey string

	BatchConcurrency int
	BatchWorkers     int
	BatchQueueSize   int
	RowTimeout       time.Duration
	BatchRetention   time.Duration
	CleanupInterval  time.Duration

	BackgroundCacheSize int
	DiskWarnYellowPct   float64
	DiskWarnRedPct      float64
	DiskBlockPct        float64

	VerifyRatePerSec float64
	VerifyBurst      int
	APIRatePerSec    float64
	APIBurst         int

	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	baseURL := strings.TrimRight(envOr("BASE_URL", "http://localhost:8080"), "/")
	return &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		DataDir:         envOr("DATA_DIR", "./data"),
		BaseURL:         baseURL,
		VerifyBaseURL:   strings.TrimRight(envOr("VERIFY_BASE_URL", baseURL+"/verify"), "/"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "text"),
		FontDirs:        envListOr("FONT_DIRS", []string{"/usr/share/fonts/truetype/liberation", "/usr/share/fonts/truetype/dejavu"}),
		MagickPath:      envOr("MAGICK_PATH", "magick"),
		PDFDensity:      envIntOr("PDF_DENSITY", 150),
		MaxUploadBytes:  envInt64Or("MAX_UPLOAD_BYTES", 20*1024*1024),
		DateLayout:      envOr("DATE_LAYOUT", "02/01/2006"),
		BootstrapAPIKey: os.Getenv("BOOTSTRAP_API_KEY"),

		BatchConcurrency: envIntOr("BATCH_CONCURRENCY", 4),
		BatchWorkers:     envIntOr("BATCH_WORKERS", 2),
		BatchQueueSize:   envIntOr("BATCH_QUEUE_SIZE", 16),
		RowTimeout:       envDurationOr("ROW_TIMEOUT", 30*time.Second),
		BatchRetention:   envDurationOr("BATCH_RETENTION", time.Hour),
		CleanupInterval:  envDurationOr("CLEANUP_INTERVAL", 10*time.Minute),

		BackgroundCacheSize: envIntOr("BACKGROUND_CACHE_SIZE", 16),
		DiskWarnYellowPct:   envFloatOr("DISK_WARN_YELLOW_PCT", 20),
		DiskWarnRedPct:      envFloatOr("DISK_WARN_RED_PCT", 10),
		DiskBlockPct:        envFloatOr("DISK_BLOCK_PCT", 2),

		VerifyRatePerSec: envFloatOr("VERIFY_RATE", 5),
		VerifyBurst:      envIntOr("VERIFY_BURST", 20),
		APIRatePerSec:    envFloatOr("API_RATE", 10),
		APIBurst:         envIntOr("API_BURST", 60),

		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
