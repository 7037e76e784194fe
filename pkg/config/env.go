package config

// EnvPrefix is passed to envconfig; explicit tags on every field keep the
// variable names greppable, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv           = "TIDYOPS_APP_ENV"
	EnvPort             = "TIDYOPS_APP_PORT"
	EnvDBDSN            = "TIDYOPS_DB_DSN"
	EnvDBHost           = "TIDYOPS_DB_HOST"
	EnvDBUser           = "TIDYOPS_DB_USER"
	EnvDBName           = "TIDYOPS_DB_NAME"
	EnvRedisURL         = "TIDYOPS_REDIS_URL"
	EnvJWTSecret        = "TIDYOPS_JWT_SECRET"
	EnvJWTIssuer        = "TIDYOPS_JWT_ISSUER"
	EnvJWTExpMins       = "TIDYOPS_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID     = "TIDYOPS_GCP_PROJECT_ID"
	EnvPubSubTopic      = "TIDYOPS_PUBSUB_BOOKING_TOPIC"
	EnvPubSubSub        = "TIDYOPS_PUBSUB_BOOKING_SUBSCRIPTION"
	EnvSquareToken      = "TIDYOPS_SQUARE_ACCESS_TOKEN"
	EnvSquareLocation   = "TIDYOPS_SQUARE_LOCATION_ID"
	EnvSquareSigKey     = "TIDYOPS_SQUARE_WEBHOOK_SIGNATURE_KEY"
	EnvChargeGWTimeout  = "TIDYOPS_CHARGE_GATEWAY_TIMEOUT"
	EnvWebhookDedupeTTL = "TIDYOPS_WEBHOOK_DEDUPE_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
