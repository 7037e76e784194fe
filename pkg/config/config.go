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
	Square       SquareConfig
	Charges      ChargesConfig
	Webhooks     WebhooksConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TIDYOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"TIDYOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TIDYOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TIDYOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TIDYOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TIDYOPS_DB_DSN"`
	Driver string `envconfig:"TIDYOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIDYOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"TIDYOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIDYOPS_DB_USER"`
	LegacyPassword string `envconfig:"TIDYOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIDYOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIDYOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIDYOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIDYOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIDYOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIDYOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIDYOPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TIDYOPS_REDIS_ADDR"`
	Password     string        `envconfig:"TIDYOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIDYOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIDYOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIDYOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIDYOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIDYOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIDYOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"TIDYOPS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"TIDYOPS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"TIDYOPS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"TIDYOPS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type SquareConfig struct {
	AccessToken  string `envconfig:"TIDYOPS_SQUARE_ACCESS_TOKEN"`
	LocationID   string `envconfig:"TIDYOPS_SQUARE_LOCATION_ID"`
	Env          string `envconfig:"TIDYOPS_SQUARE_ENV" default:"sandbox"`
	SignatureKey string `envconfig:"TIDYOPS_SQUARE_WEBHOOK_SIGNATURE_KEY"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type ChargesConfig struct {
	GatewayTimeout time.Duration `envconfig:"TIDYOPS_CHARGE_GATEWAY_TIMEOUT" default:"30s"`
	Currency       string        `envconfig:"TIDYOPS_CHARGE_CURRENCY" default:"USD"`
}

type WebhooksConfig struct {
	NotificationURL string        `envconfig:"TIDYOPS_WEBHOOK_NOTIFICATION_URL"`
	DedupeTTL       time.Duration `envconfig:"TIDYOPS_WEBHOOK_DEDUPE_TTL" default:"72h"`
	RateLimitWindow time.Duration `envconfig:"TIDYOPS_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"TIDYOPS_WEBHOOK_RATE_LIMIT_PER_IP" default:"120"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TIDYOPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TIDYOPS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TIDYOPS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TIDYOPS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TIDYOPS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TIDYOPS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic        string `envconfig:"TIDYOPS_PUBSUB_BOOKING_TOPIC" required:"true"`
	BookingSubscription string `envconfig:"TIDYOPS_PUBSUB_BOOKING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TIDYOPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TIDYOPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TIDYOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
