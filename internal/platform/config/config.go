package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "zahori/pkg/platform/strings"
)

// Store drivers accepted by StoreDriver.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Server captures process level configuration.
type Server struct {
	Addr           string   `yaml:"addr"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	// ProviderURLs overrides adapter base URLs, keyed by adapter name.
	ProviderURLs map[string]string `yaml:"provider_urls"`
	// DefaultCredentials are server-side keys used when a request carries none.
	DefaultCredentials map[string]string `yaml:"default_credentials"`

	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	Redis    RedisConfig   `yaml:"redis"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	// RateLimit caps provider-backed requests per client IP per RateWindow.
	// Zero disables throttling.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// RedisConfig configures the optional Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultAllowedOrigins are the browser origins of the investigation UI.
var DefaultAllowedOrigins = []string{
	"https://zahori-osint-0yb6.onrender.com",
	"http://localhost:5173",
	"http://localhost:3000",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Server {
	return Server{
		Addr:               ":3001",
		LogLevel:           "info",
		LogFormat:          "json",
		AllowedOrigins:     append([]string(nil), DefaultAllowedOrigins...),
		ProviderTimeout:    5 * time.Second,
		ProviderURLs:       map[string]string{},
		DefaultCredentials: map[string]string{},
		StoreDriver:        StoreMemory,
		SQLitePath:         "zahori.db",
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		CacheTTL:   10 * time.Minute,
		LockTTL:    30 * time.Second,
		KafkaTopic: "zahori.graph",
		RateLimit:  60,
		RateWindow: time.Minute,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Defaults()
	applyEnv(&cfg, os.Getenv)
	return cfg
}

// Load reads the YAML file named by ZAHORI_CONFIG, if any, then applies the
// environment on top. Environment always wins over the file.
func Load() (Server, error) {
	cfg := Defaults()
	if path := os.Getenv("ZAHORI_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Server{}, fmt.Errorf("read config file: %w", err)
		}
		if err := overlayYAML(&cfg, raw); err != nil {
			return Server{}, err
		}
	}
	applyEnv(&cfg, os.Getenv)
	return cfg, cfg.Validate()
}

func overlayYAML(cfg *Server, raw []byte) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate rejects combinations the server cannot start with.
func (s Server) Validate() error {
	switch s.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("store driver %q requires DATABASE_URL", s.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", s.StoreDriver)
	}
	if s.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if s.RateLimit < 0 || (s.RateLimit > 0 && s.RateWindow <= 0) {
		return fmt.Errorf("rate limit needs a non-negative limit and a positive window")
	}
	return nil
}

// credentialEnv maps provider credential keys to the variables that carry
// server-side defaults.
var credentialEnv = map[string]string{
	"shodan":    "SHODAN_API_KEY",
	"abuseipdb": "ABUSEIPDB_API_KEY",
	"hunter":    "HUNTER_API_KEY",
	"numverify": "NUMVERIFY_API_KEY",
}

func applyEnv(cfg *Server, getenv func(string) string) {
	setString(&cfg.Addr, getenv("ZAHORI_ADDR"))
	if port := getenv("PORT"); port != "" && getenv("ZAHORI_ADDR") == "" {
		cfg.Addr = ":" + port
	}
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.LogFormat, getenv("LOG_FORMAT"))
	if v := splitList(getenv("ALLOWED_ORIGINS")); len(v) > 0 {
		cfg.AllowedOrigins = v
	}
	setDuration(&cfg.ProviderTimeout, getenv("PROVIDER_TIMEOUT"))

	setString(&cfg.StoreDriver, getenv("STORE_DRIVER"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.SQLitePath, getenv("SQLITE_PATH"))
	if cfg.DatabaseURL != "" && getenv("STORE_DRIVER") == "" && cfg.StoreDriver == StoreMemory {
		cfg.StoreDriver = StorePostgres
	}

	setString(&cfg.Redis.URL, getenv("REDIS_URL"))
	setInt(&cfg.Redis.PoolSize, getenv("REDIS_POOL_SIZE"))
	setDuration(&cfg.CacheTTL, getenv("CACHE_TTL"))
	setDuration(&cfg.LockTTL, getenv("LOCK_TTL"))

	if v := splitList(getenv("KAFKA_BROKERS")); len(v) > 0 {
		cfg.KafkaBrokers = v
	}
	setString(&cfg.KafkaTopic, getenv("KAFKA_TOPIC"))
	if n, err := strconv.Atoi(strings.TrimSpace(getenv("RATE_LIMIT"))); err == nil && n >= 0 {
		cfg.RateLimit = n
	}
	setDuration(&cfg.RateWindow, getenv("RATE_WINDOW"))

	if cfg.DefaultCredentials == nil {
		cfg.DefaultCredentials = map[string]string{}
	}
	for key, env := range credentialEnv {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			cfg.DefaultCredentials[key] = v
		}
	}
	if cfg.ProviderURLs == nil {
		cfg.ProviderURLs = map[string]string{}
	}
	for _, name := range []string{"shodan", "abuseipdb", "ipapi", "rdap", "hunter", "numverify"} {
		if v := getenv(strings.ToUpper(name) + "_BASE_URL"); v != "" {
			cfg.ProviderURLs[name] = v
		}
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
		*dst = n
	}
}

func setDuration(dst *time.Duration, v string) {
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
		*dst = d
	}
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
