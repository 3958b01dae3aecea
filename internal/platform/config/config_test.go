package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv(t *testing.T) {
	cfg := Defaults()
	applyEnv(&cfg, envFrom(map[string]string{
		"PORT":             "4000",
		"ALLOWED_ORIGINS":  "http://a.test, http://b.test,",
		"PROVIDER_TIMEOUT": "2s",
		"DATABASE_URL":     "postgres://localhost/zahori",
		"SHODAN_API_KEY":   " sk ",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
		"RDAP_BASE_URL":    "http://rdap.test",
		"CACHE_TTL":        "not-a-duration",
		"REDIS_POOL_SIZE":  "-3",
	}))

	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, StorePostgres, cfg.StoreDriver, "a database URL selects postgres unless a driver is named")
	assert.Equal(t, "sk", cfg.DefaultCredentials["shodan"])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://rdap.test", cfg.ProviderURLs["rdap"])
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL, "invalid values keep the default")
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 60, cfg.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestRateLimitCanBeDisabled(t *testing.T) {
	cfg := Defaults()
	applyEnv(&cfg, envFrom(map[string]string{"RATE_LIMIT": "0", "RATE_WINDOW": "30s"}))
	assert.Equal(t, 0, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
	require.NoError(t, cfg.Validate())
}

func TestExplicitAddrWinsOverPort(t *testing.T) {
	cfg := Defaults()
	applyEnv(&cfg, envFrom(map[string]string{"PORT": "4000", "ZAHORI_ADDR": "127.0.0.1:9000"}))
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zahori.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7000"
store_driver: sqlite
sqlite_path: /tmp/cases.db
cache_ttl: 90s
redis:
  url: redis://localhost:6379/0
default_credentials:
  hunter: from-file
`), 0o600))
	t.Setenv("ZAHORI_CONFIG", path)
	t.Setenv("HUNTER_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/cases.db", cfg.SQLitePath)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 3*time.Second, cfg.Redis.ReadTimeout, "unset nested fields keep defaults")
	assert.Equal(t, "from-env", cfg.DefaultCredentials["hunter"])
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.StoreDriver = StorePostgres
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.StoreDriver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.ProviderTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.RateLimit = -1
	assert.Error(t, cfg.Validate())
}
