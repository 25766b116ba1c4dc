package config

const (
	EnvPrefix = "AGENCYHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:agencyhub.db?cache=shared"
)

const (
	EnvAppEnv   = "AGENCYHUB_APP_ENV"
	EnvPort     = "AGENCYHUB_APP_PORT"
	EnvLogLevel = "AGENCYHUB_LOG_LEVEL"

	EnvDBDSN    = "AGENCYHUB_DB_DSN"
	EnvDBDriver = "AGENCYHUB_DB_DRIVER"
	EnvDBHost   = "AGENCYHUB_DB_HOST"
	EnvDBUser   = "AGENCYHUB_DB_USER"
	EnvDBName   = "AGENCYHUB_DB_NAME"

	EnvRedisURL = "AGENCYHUB_REDIS_URL"

	EnvJWTSecret  = "AGENCYHUB_JWT_SECRET"
	EnvJWTIssuer  = "AGENCYHUB_JWT_ISSUER"
	EnvJWTExpMins = "AGENCYHUB_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "AGENCYHUB_USE_SQLITE"

	EnvGCPProjectID = "AGENCYHUB_GCP_PROJECT_ID"

	EnvPubSubContractsTopic  = "AGENCYHUB_PUBSUB_CONTRACTS_TOPIC"
	EnvPubSubNotificationSub = "AGENCYHUB_PUBSUB_NOTIFICATIONS_SUBSCRIPTION"

	EnvContractsDefaultPageLimit = "AGENCYHUB_CONTRACTS_DEFAULT_PAGE_LIMIT"
	EnvContractsMaxPageLimit     = "AGENCYHUB_CONTRACTS_MAX_PAGE_LIMIT"
	EnvContractsExpiringSoonDays = "AGENCYHUB_CONTRACTS_EXPIRING_SOON_DAYS"
	EnvContractsDefaultCurrency  = "AGENCYHUB_CONTRACTS_DEFAULT_CURRENCY"

	EnvCORSAllowedOrigins = "AGENCYHUB_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
