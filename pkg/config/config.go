package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Circulation  CirculationConfig
	Cron         CronConfig
	Events       EventsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every invalid setting at once.
func (c *Config) validate() error {
	return multierr.Combine(
		c.DB.ensureDSN(),
		c.Redis.validate(),
		c.App.validate(),
		c.Circulation.validate(),
		c.Events.validate(),
	)
}

type AppConfig struct {
	Env          string `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LIBRARY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) validate() error {
	switch strings.ToLower(a.LogFormat) {
	case "json", "console":
		return nil
	}
	return fmt.Errorf("%s must be json or console", EnvLogFormat)
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARY_DB_DSN"`
	Driver string `envconfig:"LIBRARY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LIBRARY_DB_HOST"`
	LegacyPort     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LIBRARY_DB_USER"`
	LegacyPassword string `envconfig:"LIBRARY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LIBRARY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LIBRARY_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if r.URL == "" && r.Address == "" {
		return fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

// JWTConfig describes the tokens issued by the external identity service.
type JWTConfig struct {
	Secret            string        `envconfig:"LIBRARY_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"LIBRARY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"LIBRARY_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"LIBRARY_JWT_LEEWAY" default:"30s"`
}

type RateLimitConfig struct {
	Requests int           `envconfig:"LIBRARY_RATE_LIMIT_REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"LIBRARY_RATE_LIMIT_WINDOW" default:"1m"`
}

// Enabled reports whether API rate limiting should be installed.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && r.Window > 0
}

type CacheConfig struct {
	Enabled         bool          `envconfig:"LIBRARY_CACHE_ENABLED" default:"true"`
	AvailabilityTTL time.Duration `envconfig:"LIBRARY_CACHE_AVAILABILITY_TTL" default:"15s"`
}

// CirculationConfig carries the lending policy constants.
type CirculationConfig struct {
	LoanPeriod     time.Duration   `envconfig:"LIBRARY_LOAN_PERIOD" default:"336h"`
	FinePerDay     decimal.Decimal `envconfig:"LIBRARY_FINE_PER_DAY" default:"2.00"`
	MaxActiveLoans int             `envconfig:"LIBRARY_MAX_ACTIVE_LOANS" default:"3"`
	MaxRenewals    int             `envconfig:"LIBRARY_MAX_RENEWALS" default:"1"`
	HoldDuration   time.Duration   `envconfig:"LIBRARY_HOLD_DURATION" default:"24h"`
}

func (c CirculationConfig) validate() error {
	switch {
	case c.LoanPeriod <= 0:
		return fmt.Errorf("%s must be positive", EnvLoanPeriod)
	case c.FinePerDay.IsNegative():
		return fmt.Errorf("%s must not be negative", EnvFinePerDay)
	case c.MaxActiveLoans <= 0:
		return fmt.Errorf("%s must be positive", EnvMaxActiveLoans)
	case c.MaxRenewals < 0:
		return fmt.Errorf("%s must not be negative", EnvMaxRenewals)
	case c.HoldDuration <= 0:
		return fmt.Errorf("%s must be positive", EnvHoldDuration)
	}
	return nil
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"LIBRARY_CRON_INTERVAL" default:"15m"`
	LockTTL    time.Duration `envconfig:"LIBRARY_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"LIBRARY_CRON_JOB_TIMEOUT" default:"5m"`
}

// EventsConfig selects where circulation events go. An empty Transport
// picks AMQP when a broker URL is set, Pub/Sub when a GCP project is set and
// disables publishing otherwise.
type EventsConfig struct {
	Transport    string `envconfig:"LIBRARY_EVENTS_TRANSPORT"`
	AMQPURL      string `envconfig:"LIBRARY_EVENTS_AMQP_URL"`
	Exchange     string `envconfig:"LIBRARY_EVENTS_EXCHANGE" default:"library.circulation"`
	GCPProjectID string `envconfig:"LIBRARY_EVENTS_GCP_PROJECT_ID"`
	PubSubTopic  string `envconfig:"LIBRARY_EVENTS_PUBSUB_TOPIC" default:"library-circulation"`
}

// Backend resolves the transport actually used for events.
func (e EventsConfig) Backend() string {
	if t := strings.ToLower(strings.TrimSpace(e.Transport)); t != "" {
		return t
	}
	switch {
	case e.AMQPURL != "":
		return EventsTransportAMQP
	case e.GCPProjectID != "":
		return EventsTransportPubSub
	default:
		return EventsTransportNone
	}
}

func (e EventsConfig) validate() error {
	switch e.Backend() {
	case EventsTransportNone:
		return nil
	case EventsTransportAMQP:
		if e.AMQPURL == "" {
			return fmt.Errorf("%s is required for the amqp transport", EnvEventsAMQPURL)
		}
		return nil
	case EventsTransportPubSub:
		if strings.TrimSpace(e.GCPProjectID) == "" {
			return fmt.Errorf("%s is required for the pubsub transport", EnvEventsGCPProjectID)
		}
		if strings.TrimSpace(e.PubSubTopic) == "" {
			return fmt.Errorf("%s is required for the pubsub transport", EnvEventsPubSubTopic)
		}
		return nil
	default:
		return fmt.Errorf("%s must be one of amqp, pubsub, none", EnvEventsTransport)
	}
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
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
