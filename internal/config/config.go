package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Sources  SourcesConfig
	Upstream UpstreamConfig
	Safety   SafetyConfig
	Location LocationConfig
	Stream   StreamConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimitRPS   int
	TrustedProxies []string // empty means client IPs come from the socket only
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// SourcesConfig drives the background feed ingestion.
type SourcesConfig struct {
	USGSEnabled       bool
	USGSURL           string
	USGSPollInterval  time.Duration
	GDACSEnabled      bool
	GDACSURL          string
	GDACSPollInterval time.Duration
	Retention         time.Duration
}

// UpstreamConfig drives the per-request data collaborators.
type UpstreamConfig struct {
	QuakeSource  string // "usgs" queries FDSN per request, "store" reads ingested events
	USGSQueryURL string
	OverpassURL  string
	Timeout      time.Duration
	RPS          float64
}

type SafetyConfig struct {
	SearchRadiusKm float64
	MinMagnitude   float64
	Lookback       time.Duration
	TopN           int
}

type LocationConfig struct {
	IPInfoEnabled bool
	IPInfoURL     string
	DefaultLat    *float64
	DefaultLon    *float64
}

type StreamConfig struct {
	MinMagnitude float64
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

const (
	QuakeSourceUSGS  = "usgs"
	QuakeSourceStore = "store"
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
			TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			USGSEnabled:       getEnvBool("USGS_ENABLED", true),
			USGSURL:           getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_day.geojson"),
			USGSPollInterval:  getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
			GDACSEnabled:      getEnvBool("GDACS_ENABLED", false),
			GDACSURL:          getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			GDACSPollInterval: getEnvDuration("GDACS_POLL_INTERVAL", 10*time.Minute),
			Retention:         getEnvDuration("RETENTION", 72*time.Hour),
		},
		Upstream: UpstreamConfig{
			QuakeSource:  getEnv("QUAKE_SOURCE", QuakeSourceUSGS),
			USGSQueryURL: getEnv("USGS_QUERY_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			OverpassURL:  getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			Timeout:      getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
			RPS:          getEnvFloat("UPSTREAM_RPS", 2),
		},
		Safety: SafetyConfig{
			SearchRadiusKm: getEnvFloat("SEARCH_RADIUS_KM", 100),
			MinMagnitude:   getEnvFloat("MIN_MAGNITUDE", 3),
			Lookback:       getEnvDuration("LOOKBACK", 24*time.Hour),
			TopN:           getEnvInt("TOP_N", 5),
		},
		Location: LocationConfig{
			IPInfoEnabled: getEnvBool("IPINFO_ENABLED", true),
			IPInfoURL:     getEnv("IPINFO_URL", "https://ipinfo.io/json"),
			DefaultLat:    getEnvFloatPtr("DEFAULT_LAT"),
			DefaultLon:    getEnvFloatPtr("DEFAULT_LON"),
		},
		Stream: StreamConfig{
			MinMagnitude: getEnvFloat("STREAM_MIN_MAGNITUDE", 4.5),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/quake-safety.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sources.USGSPollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}
	if c.Sources.GDACSPollInterval < time.Minute {
		return fmt.Errorf("GDACS poll interval must be at least 1 minute")
	}

	switch c.Upstream.QuakeSource {
	case QuakeSourceUSGS, QuakeSourceStore:
	default:
		return fmt.Errorf("invalid quake source: %s", c.Upstream.QuakeSource)
	}
	if c.Upstream.QuakeSource == QuakeSourceStore && !c.Sources.USGSEnabled && !c.Sources.GDACSEnabled {
		return fmt.Errorf("quake source %q needs at least one ingestion feed enabled", QuakeSourceStore)
	}
	if c.Upstream.RPS <= 0 {
		return fmt.Errorf("upstream rate must be positive")
	}

	if !(c.Safety.SearchRadiusKm > 0) {
		return fmt.Errorf("search radius must be positive: %v", c.Safety.SearchRadiusKm)
	}
	if c.Safety.MinMagnitude < 0 || math.IsNaN(c.Safety.MinMagnitude) {
		return fmt.Errorf("invalid minimum magnitude: %v", c.Safety.MinMagnitude)
	}
	if c.Safety.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive")
	}
	if c.Safety.TopN < 1 {
		return fmt.Errorf("top N must be at least 1: %d", c.Safety.TopN)
	}

	if (c.Location.DefaultLat == nil) != (c.Location.DefaultLon == nil) {
		return fmt.Errorf("DEFAULT_LAT and DEFAULT_LON must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvFloatPtr(key string) *float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
	}
	return nil
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
