package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Config holds application configuration.
type Config struct {
	Port             string
	CORSAllowOrigin  []string
	RateLimitEnabled bool
	Env              string
	DatabaseURL      string

	ObjectStoreType string
	LocalStoreDir   string

	RemoteStoreURL       string
	RemoteStoreBucket    string
	RemoteStoreKey       string
	RemoteStoreUpsert    bool
	RemoteStoreTimeout   time.Duration
	RemoteMaxObjectSize  string
	RemoteMaxObjectBytes int64

	AWSRegion   string
	S3Bucket    string
	S3Prefix    string
	SSEKMSKeyID string

	DownloadMode string
	SignedURLTTL time.Duration

	CacheBackend           string
	CacheAbsoluteTTL       time.Duration
	CacheSlidingTTL        time.Duration
	CacheInvalidateOnWrite bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int

	TemplateDir   string
	ChromePath    string
	RenderTimeout time.Duration
}

// Load reads configuration from an optional TOML file (CONFIG_FILE) and environment
// variables. Environment variables win over file values; both fall back to defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	env := normalizeEnv(getEnv("ENV", or(file.Env, "dev")))
	dbURL := getEnv("DATABASE_URL", file.Database.URL)
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	cfg := Config{
		Port:            getEnv("PORT", or(file.Server.Port, "8080")),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", or(strings.Join(file.Server.CORSAllowOrigins, ","), "http://localhost:5173"))),
		Env:             env,
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", or(file.Storage.Type, "local"))),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", or(file.Storage.LocalDir, "./data")),

		RemoteStoreURL:      getEnv("REMOTE_STORE_URL", file.Storage.Remote.URL),
		RemoteStoreBucket:   getEnv("REMOTE_STORE_BUCKET", or(file.Storage.Remote.Bucket, "documents")),
		RemoteStoreKey:      getEnv("REMOTE_STORE_KEY", file.Storage.Remote.ServiceKey),
		RemoteMaxObjectSize: getEnv("REMOTE_STORE_MAX_OBJECT_SIZE", or(file.Storage.Remote.MaxObjectSize, "25MB")),

		AWSRegion:   getEnv("AWS_REGION", file.Storage.S3.Region),
		S3Bucket:    getEnv("S3_BUCKET", file.Storage.S3.Bucket),
		S3Prefix:    getEnv("S3_PREFIX", file.Storage.S3.Prefix),
		SSEKMSKeyID: getEnv("SSE_KMS_KEY_ID", file.Storage.S3.KMSKeyID),

		DownloadMode: normalizeDownloadMode(getEnv("DOWNLOAD_MODE", or(file.Download.Mode, "stream"))),

		CacheBackend:  normalizeCacheBackend(getEnv("CACHE_BACKEND", or(file.Cache.Backend, "memory"))),
		RedisAddr:     getEnv("REDIS_ADDR", or(file.Cache.RedisAddr, "localhost:6379")),
		RedisPassword: getEnv("REDIS_PASSWORD", file.Cache.RedisPassword),

		TemplateDir: getEnv("TEMPLATE_DIR", file.Render.TemplateDir),
		ChromePath:  getEnv("CHROME_PATH", file.Render.ChromePath),
	}

	if cfg.RateLimitEnabled, err = getEnvBool("RATE_LIMIT_ENABLED", orBool(file.Server.RateLimit, true)); err != nil {
		return Config{}, err
	}
	if cfg.RemoteStoreUpsert, err = getEnvBool("REMOTE_STORE_UPSERT", orBool(file.Storage.Remote.Upsert, true)); err != nil {
		return Config{}, err
	}
	if cfg.CacheInvalidateOnWrite, err = getEnvBool("CACHE_INVALIDATE_ON_WRITE", orBool(file.Cache.InvalidateOnWrite, false)); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", file.Cache.RedisDB); err != nil {
		return Config{}, err
	}

	durations := []struct {
		key  string
		file string
		def  time.Duration
		dst  *time.Duration
	}{
		{"REMOTE_STORE_TIMEOUT", file.Storage.Remote.Timeout, 15 * time.Second, &cfg.RemoteStoreTimeout},
		{"SIGNED_URL_TTL", file.Download.SignedURLTTL, 60 * time.Second, &cfg.SignedURLTTL},
		{"CACHE_ABSOLUTE_TTL", file.Cache.AbsoluteTTL, 10 * time.Minute, &cfg.CacheAbsoluteTTL},
		{"CACHE_SLIDING_TTL", file.Cache.SlidingTTL, 2 * time.Minute, &cfg.CacheSlidingTTL},
		{"RENDER_TIMEOUT", file.Render.Timeout, 60 * time.Second, &cfg.RenderTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, d.file, d.def); err != nil {
			return Config{}, err
		}
	}

	size, err := units.FromHumanSize(cfg.RemoteMaxObjectSize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid REMOTE_STORE_MAX_OBJECT_SIZE %q: %w", cfg.RemoteMaxObjectSize, err)
	}
	if size <= 0 {
		return Config{}, fmt.Errorf("REMOTE_STORE_MAX_OBJECT_SIZE must be positive")
	}
	cfg.RemoteMaxObjectBytes = size

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvDuration(key, fileVal string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getEnv(key, fileVal))
	if raw == "" {
		return def, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func or(val, def string) string {
	if strings.TrimSpace(val) != "" {
		return val
	}
	return def
}

func orBool(val *bool, def bool) bool {
	if val != nil {
		return *val
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "remote", "supabase":
		return "remote"
	default:
		return "local"
	}
}

func normalizeDownloadMode(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "signed") {
		return "signed"
	}
	return "stream"
}

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	case "none", "off", "disabled":
		return "none"
	default:
		return "memory"
	}
}
