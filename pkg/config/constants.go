package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "LIBRARY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "LIBRARY_APP_ENV"
	EnvPort      = "LIBRARY_APP_PORT"
	EnvLogLevel  = "LIBRARY_LOG_LEVEL"
	EnvLogFormat = "LIBRARY_LOG_FORMAT"

	EnvDBDSN    = "LIBRARY_DB_DSN"
	EnvDBDriver = "LIBRARY_DB_DRIVER"
	EnvDBHost   = "LIBRARY_DB_HOST"
	EnvDBUser   = "LIBRARY_DB_USER"
	EnvDBName   = "LIBRARY_DB_NAME"

	EnvRedisURL  = "LIBRARY_REDIS_URL"
	EnvRedisAddr = "LIBRARY_REDIS_ADDR"

	EnvJWTSecret  = "LIBRARY_JWT_SECRET"
	EnvJWTIssuer  = "LIBRARY_JWT_ISSUER"
	EnvJWTExpMins = "LIBRARY_JWT_EXPIRATION_MINUTES"

	EnvLoanPeriod     = "LIBRARY_LOAN_PERIOD"
	EnvFinePerDay     = "LIBRARY_FINE_PER_DAY"
	EnvMaxActiveLoans = "LIBRARY_MAX_ACTIVE_LOANS"
	EnvMaxRenewals    = "LIBRARY_MAX_RENEWALS"
	EnvHoldDuration   = "LIBRARY_HOLD_DURATION"

	EnvCacheEnabled         = "LIBRARY_CACHE_ENABLED"
	EnvCacheAvailabilityTTL = "LIBRARY_CACHE_AVAILABILITY_TTL"

	EnvRateLimitRequests = "LIBRARY_RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "LIBRARY_RATE_LIMIT_WINDOW"

	EnvEventsTransport    = "LIBRARY_EVENTS_TRANSPORT"
	EnvEventsAMQPURL      = "LIBRARY_EVENTS_AMQP_URL"
	EnvEventsGCPProjectID = "LIBRARY_EVENTS_GCP_PROJECT_ID"
	EnvEventsPubSubTopic  = "LIBRARY_EVENTS_PUBSUB_TOPIC"
)

const (
	EventsTransportNone   = "none"
	EventsTransportAMQP   = "amqp"
	EventsTransportPubSub = "pubsub"
)

// legacyDBEnvVars must all be present when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
