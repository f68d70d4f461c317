package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stamps        StampsConfig
	Idempotency   IdempotencyConfig
	Cron          CronConfig
	Offline       OfflineConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stamps.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOffline reads only the client-side sections so stampctl can run without
// server credentials.
func LoadOffline() (*OfflineConfig, error) {
	var cfg struct {
		Offline OfflineConfig
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing offline config: %w", err)
	}
	return &cfg.Offline, nil
}

type AppConfig struct {
	Env          string `envconfig:"STAMPBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"STAMPBOOK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STAMPBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STAMPBOOK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STAMPBOOK_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STAMPBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"STAMPBOOK_DB_DSN"`

	LegacyHost     string `envconfig:"STAMPBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"STAMPBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STAMPBOOK_DB_USER"`
	LegacyPassword string `envconfig:"STAMPBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"STAMPBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"STAMPBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STAMPBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STAMPBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STAMPBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STAMPBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STAMPBOOK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STAMPBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"STAMPBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"STAMPBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STAMPBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STAMPBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STAMPBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STAMPBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STAMPBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STAMPBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STAMPBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STAMPBOOK_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STAMPBOOK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STAMPBOOK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STAMPBOOK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STAMPBOOK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STAMPBOOK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"STAMPBOOK_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STAMPBOOK_AUTO_MIGRATE" default:"false"`
}

// StampsConfig holds the abuse-prevention and validity windows for stamp
// issuance and reward redemption.
type StampsConfig struct {
	RateLimitStrategy string        `envconfig:"STAMPBOOK_STAMPS_RATE_LIMIT_STRATEGY" default:"ledger"`
	RateLimitWindow   time.Duration `envconfig:"STAMPBOOK_STAMPS_RATE_LIMIT_WINDOW" default:"60m"`
	MerchantLimit     int           `envconfig:"STAMPBOOK_STAMPS_MERCHANT_LIMIT" default:"100"`
	PairLimit         int           `envconfig:"STAMPBOOK_STAMPS_PAIR_LIMIT" default:"20"`
	ReplayWindow      time.Duration `envconfig:"STAMPBOOK_STAMPS_REPLAY_WINDOW" default:"5m"`
	RewardValidity    time.Duration `envconfig:"STAMPBOOK_REWARD_VALIDITY" default:"24h"`
	MinQRExpiryHours  int           `envconfig:"STAMPBOOK_QR_MIN_EXPIRY_HOURS" default:"1"`
	MaxQRExpiryHours  int           `envconfig:"STAMPBOOK_QR_MAX_EXPIRY_HOURS" default:"72"`
	QRRetention       time.Duration `envconfig:"STAMPBOOK_QR_RETENTION" default:"720h"`
}

func (s StampsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.RateLimitStrategy)) {
	case RateLimitStrategyLedger, RateLimitStrategyRedis:
	default:
		return fmt.Errorf("unsupported rate limit strategy %q", s.RateLimitStrategy)
	}
	if s.MinQRExpiryHours <= 0 || s.MaxQRExpiryHours < s.MinQRExpiryHours {
		return fmt.Errorf("invalid qr expiry bounds [%d,%d]", s.MinQRExpiryHours, s.MaxQRExpiryHours)
	}
	return nil
}

// Strategy returns the normalized rate limit strategy.
func (s StampsConfig) Strategy() string {
	return strings.ToLower(strings.TrimSpace(s.RateLimitStrategy))
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STAMPBOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STAMPBOOK_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STAMPBOOK_CRON_LOCK_TTL" default:"10m"`
}

// OfflineConfig configures the client-side offline operation queue.
type OfflineConfig struct {
	APIBaseURL     string        `envconfig:"STAMPBOOK_API_BASE_URL" default:"http://localhost:8080"`
	APIToken       string        `envconfig:"STAMPBOOK_API_TOKEN"`
	DBPath         string        `envconfig:"STAMPBOOK_OFFLINE_DB_PATH" default:"stampbook-offline.db"`
	MaxAttempts    int           `envconfig:"STAMPBOOK_OFFLINE_MAX_ATTEMPTS" default:"10"`
	BaseBackoff    time.Duration `envconfig:"STAMPBOOK_OFFLINE_BASE_BACKOFF" default:"2s"`
	MaxBackoff     time.Duration `envconfig:"STAMPBOOK_OFFLINE_MAX_BACKOFF" default:"5m"`
	LeaseTTL       time.Duration `envconfig:"STAMPBOOK_OFFLINE_LEASE_TTL" default:"2m"`
	ProbeInterval  time.Duration `envconfig:"STAMPBOOK_OFFLINE_PROBE_INTERVAL" default:"10s"`
	RequestTimeout time.Duration `envconfig:"STAMPBOOK_OFFLINE_REQUEST_TIMEOUT" default:"10s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
