package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "FRESHFOLD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "FRESHFOLD_DB_DSN"
	EnvDBHost = "FRESHFOLD_DB_HOST"
	EnvDBUser = "FRESHFOLD_DB_USER"
	EnvDBName = "FRESHFOLD_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Invoice      InvoiceConfig
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
	Env          string `envconfig:"FRESHFOLD_APP_ENV" required:"true"`
	Port         string `envconfig:"FRESHFOLD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRESHFOLD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRESHFOLD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FRESHFOLD_DB_DSN"`
	Driver string `envconfig:"FRESHFOLD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRESHFOLD_DB_HOST"`
	LegacyPort     int    `envconfig:"FRESHFOLD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRESHFOLD_DB_USER"`
	LegacyPassword string `envconfig:"FRESHFOLD_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRESHFOLD_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRESHFOLD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRESHFOLD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRESHFOLD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRESHFOLD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRESHFOLD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRESHFOLD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FRESHFOLD_REDIS_ADDR"`
	Password     string        `envconfig:"FRESHFOLD_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRESHFOLD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRESHFOLD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRESHFOLD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRESHFOLD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRESHFOLD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRESHFOLD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FRESHFOLD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FRESHFOLD_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FRESHFOLD_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FRESHFOLD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FRESHFOLD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"FRESHFOLD_GCS_BUCKET_NAME" required:"true"`
	// Invoice PDFs live under this prefix inside the bucket.
	InvoicePrefix string `envconfig:"FRESHFOLD_GCS_INVOICE_PREFIX" default:"invoices"`
}

type PubSubConfig struct {
	OrdersTopic  string `envconfig:"FRESHFOLD_PUBSUB_ORDERS_TOPIC" required:"true"`
	BillingTopic string `envconfig:"FRESHFOLD_PUBSUB_BILLING_TOPIC" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FRESHFOLD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FRESHFOLD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FRESHFOLD_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type InvoiceConfig struct {
	// Flat tax applied by callers before handing the amount to the totals
	// calculator, expressed in basis points of the subtotal.
	TaxBasisPoints int    `envconfig:"FRESHFOLD_INVOICE_TAX_BASIS_POINTS" default:"0"`
	Currency       string `envconfig:"FRESHFOLD_INVOICE_CURRENCY" default:"USD"`
	BusinessName   string `envconfig:"FRESHFOLD_INVOICE_BUSINESS_NAME" default:"FreshFold Laundry"`
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
