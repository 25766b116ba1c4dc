package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Contracts    ContractsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Contracts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGENCYHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"AGENCYHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGENCYHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGENCYHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AGENCYHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AGENCYHUB_DB_DSN"`
	Driver string `envconfig:"AGENCYHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AGENCYHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"AGENCYHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AGENCYHUB_DB_USER"`
	LegacyPassword string `envconfig:"AGENCYHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"AGENCYHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"AGENCYHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGENCYHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGENCYHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGENCYHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGENCYHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"AGENCYHUB_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver was selected explicitly.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"AGENCYHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AGENCYHUB_REDIS_ADDR"`
	Password     string        `envconfig:"AGENCYHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGENCYHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGENCYHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGENCYHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGENCYHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGENCYHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGENCYHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AGENCYHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGENCYHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGENCYHUB_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AGENCYHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AGENCYHUB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"AGENCYHUB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AGENCYHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"AGENCYHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AGENCYHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ContractsTopic            string `envconfig:"AGENCYHUB_PUBSUB_CONTRACTS_TOPIC" default:"ah-contract-events"`
	NotificationsSubscription string `envconfig:"AGENCYHUB_PUBSUB_NOTIFICATIONS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"AGENCYHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"AGENCYHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"AGENCYHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int    `envconfig:"AGENCYHUB_OUTBOX_RETENTION_DAYS" default:"30"`
	MetricsAddr    string `envconfig:"AGENCYHUB_OUTBOX_METRICS_ADDR"`
}

type ContractsConfig struct {
	DefaultPageLimit int    `envconfig:"AGENCYHUB_CONTRACTS_DEFAULT_PAGE_LIMIT" default:"20"`
	MaxPageLimit     int    `envconfig:"AGENCYHUB_CONTRACTS_MAX_PAGE_LIMIT" default:"100"`
	ExpiringSoonDays int    `envconfig:"AGENCYHUB_CONTRACTS_EXPIRING_SOON_DAYS" default:"30"`
	NumberPrefix     string `envconfig:"AGENCYHUB_CONTRACTS_NUMBER_PREFIX" default:"CTR"`
	DefaultCurrency  string `envconfig:"AGENCYHUB_CONTRACTS_DEFAULT_CURRENCY" default:"EUR"`
}

func (c ContractsConfig) validate() error {
	if c.DefaultPageLimit <= 0 || c.MaxPageLimit <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvContractsDefaultPageLimit, EnvContractsMaxPageLimit)
	}
	if c.DefaultPageLimit > c.MaxPageLimit {
		return fmt.Errorf("%s must not exceed %s", EnvContractsDefaultPageLimit, EnvContractsMaxPageLimit)
	}
	if c.ExpiringSoonDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvContractsExpiringSoonDays)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("%s must be a 3-letter ISO 4217 code", EnvContractsDefaultCurrency)
	}
	return nil
}

type RateLimitConfig struct {
	Window    time.Duration `envconfig:"AGENCYHUB_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit int           `envconfig:"AGENCYHUB_RATE_LIMIT_USER_LIMIT" default:"120"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"AGENCYHUB_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"AGENCYHUB_CRON_INTERVAL" default:"24h"`
	MetricsAddr string        `envconfig:"AGENCYHUB_CRON_METRICS_ADDR"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite || db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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
