package config

// EnvPrefix is passed to envconfig; every field carries an explicit key so the
// prefix only matters for untagged fields.
const EnvPrefix = "STAMPBOOK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	RateLimitStrategyLedger = "ledger"
	RateLimitStrategyRedis  = "redis"
)

const (
	EnvAppEnv      = "STAMPBOOK_APP_ENV"
	EnvPort        = "STAMPBOOK_APP_PORT"
	EnvDBDSN       = "STAMPBOOK_DB_DSN"
	EnvDBHost      = "STAMPBOOK_DB_HOST"
	EnvDBUser      = "STAMPBOOK_DB_USER"
	EnvDBName      = "STAMPBOOK_DB_NAME"
	EnvRedisURL    = "STAMPBOOK_REDIS_URL"
	EnvJWTSecret   = "STAMPBOOK_JWT_SECRET"
	EnvJWTIssuer   = "STAMPBOOK_JWT_ISSUER"
	EnvJWTExpMins  = "STAMPBOOK_JWT_EXPIRATION_MINUTES"
	EnvRLStrategy  = "STAMPBOOK_STAMPS_RATE_LIMIT_STRATEGY"
	EnvOfflineDB   = "STAMPBOOK_OFFLINE_DB_PATH"
	EnvAPIBaseURL  = "STAMPBOOK_API_BASE_URL"
	EnvQRMaxExpiry = "STAMPBOOK_QR_MAX_EXPIRY_HOURS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
