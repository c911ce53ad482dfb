package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// S3Config holds S3-compatible object storage settings for photos.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether enough is set to build a client.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// BackupConfig controls encrypted database snapshots. Snapshots go to the
// S3 bucket, so they also need S3 to be configured.
type BackupConfig struct {
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

// Config holds process settings. TrustedProxies lists the peers whose
// forwarding headers are believed; when it is empty every request is keyed
// on its direct peer address. Metrics are only served when MetricsAddr is
// set.
type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	LogFormat      string
	BaseURL        string
	CORSOrigins    []string
	TrustedProxies []netip.Prefix
	MetricsAddr    string
	SessionTTL     time.Duration
	MaxPhotoBytes  int64
	PostmarkToken  string
	FromEmail      string
	S3             S3Config
	Backup         BackupConfig
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:          getEnv("HEIRLOOM_PORT", "8080"),
		DBPath:        getEnv("HEIRLOOM_DB_PATH", "heirloom.db"),
		LogLevel:      getEnv("HEIRLOOM_LOG_LEVEL", "info"),
		LogFormat:     strings.ToLower(getEnv("HEIRLOOM_LOG_FORMAT", "text")),
		MetricsAddr:   os.Getenv("HEIRLOOM_METRICS_ADDR"),
		PostmarkToken: os.Getenv("HEIRLOOM_POSTMARK_TOKEN"),
		FromEmail:     os.Getenv("HEIRLOOM_FROM_EMAIL"),
		S3: S3Config{
			Endpoint:  os.Getenv("HEIRLOOM_S3_ENDPOINT"),
			Bucket:    os.Getenv("HEIRLOOM_S3_BUCKET"),
			Region:    getEnv("HEIRLOOM_S3_REGION", "auto"),
			AccessKey: os.Getenv("HEIRLOOM_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HEIRLOOM_S3_SECRET_KEY"),
		},
	}
	cfg.BaseURL = strings.TrimRight(getEnv("HEIRLOOM_BASE_URL", "http://localhost:"+cfg.Port), "/")

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid HEIRLOOM_LOG_FORMAT %q: must be text or json", cfg.LogFormat)
	}

	for _, origin := range strings.Split(os.Getenv("HEIRLOOM_CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	proxies, err := parsePrefixes("HEIRLOOM_TRUSTED_PROXIES")
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	ttl, err := positiveDuration("HEIRLOOM_SESSION_TTL", "720h")
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = ttl

	maxPhoto, err := strconv.ParseInt(getEnv("HEIRLOOM_MAX_PHOTO_BYTES", "10485760"), 10, 64)
	if err != nil || maxPhoto <= 0 {
		return nil, fmt.Errorf("invalid HEIRLOOM_MAX_PHOTO_BYTES: must be a positive integer")
	}
	cfg.MaxPhotoBytes = maxPhoto

	cfg.Backup.Passphrase = os.Getenv("HEIRLOOM_BACKUP_PASSPHRASE")
	if cfg.Backup.Interval, err = positiveDuration("HEIRLOOM_BACKUP_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.Backup.Retention, err = positiveDuration("HEIRLOOM_BACKUP_RETENTION", "720h"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func positiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

// parsePrefixes reads a comma-separated list of CIDR ranges or bare
// addresses. A bare address is treated as a single-host range.
func parsePrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(os.Getenv(key), ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q: %w", key, item, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, item, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
