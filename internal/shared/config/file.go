package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the optional TOML configuration file. Every field is optional;
// zero values fall through to defaults.
type fileConfig struct {
	Env    string `toml:"env"`
	Server struct {
		Port             string   `toml:"port"`
		CORSAllowOrigins []string `toml:"cors_allow_origins"`
		RateLimit        *bool    `toml:"rate_limit"`
	} `toml:"server"`
	Database struct {
		URL string `toml:"url"`
	} `toml:"database"`
	Storage struct {
		Type     string `toml:"type"`
		LocalDir string `toml:"local_dir"`
		Remote   struct {
			URL           string `toml:"url"`
			Bucket        string `toml:"bucket"`
			ServiceKey    string `toml:"service_key"`
			Upsert        *bool  `toml:"upsert"`
			Timeout       string `toml:"timeout"`
			MaxObjectSize string `toml:"max_object_size"`
		} `toml:"remote"`
		S3 struct {
			Region   string `toml:"region"`
			Bucket   string `toml:"bucket"`
			Prefix   string `toml:"prefix"`
			KMSKeyID string `toml:"kms_key_id"`
		} `toml:"s3"`
	} `toml:"storage"`
	Download struct {
		Mode         string `toml:"mode"`
		SignedURLTTL string `toml:"signed_url_ttl"`
	} `toml:"download"`
	Cache struct {
		Backend           string `toml:"backend"`
		AbsoluteTTL       string `toml:"absolute_ttl"`
		SlidingTTL        string `toml:"sliding_ttl"`
		InvalidateOnWrite *bool  `toml:"invalidate_on_write"`
		RedisAddr         string `toml:"redis_addr"`
		RedisPassword     string `toml:"redis_password"`
		RedisDB           int    `toml:"redis_db"`
	} `toml:"cache"`
	Render struct {
		TemplateDir string `toml:"template_dir"`
		ChromePath  string `toml:"chrome_path"`
		Timeout     string `toml:"timeout"`
	} `toml:"render"`
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
