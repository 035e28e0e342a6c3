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
	Session       SessionConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Permissions   PermissionsConfig
	Assistant     AssistantConfig
	Automation    AutomationConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Eventing      EventingConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Sales         SalesConfig
	Dispatch      DispatchConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.RefreshTokenTTL() <= c.JWT.AccessTokenTTL() {
		return fmt.Errorf("%s must exceed %s", EnvRefreshTokenTTLMinutes, EnvJWTExpMins)
	}
	if c.Assistant.MaxContextProducts <= 0 {
		return fmt.Errorf("%s must be positive", EnvAssistantMaxProducts)
	}
	if c.Assistant.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvAssistantMaxRetries)
	}
	if c.Sales.TaxRate < 0 || c.Sales.TaxRate >= 1 {
		return fmt.Errorf("%s must be in [0,1)", EnvSalesTaxRate)
	}
	if c.Sales.CommissionRate < 0 || c.Sales.CommissionRate >= 1 {
		return fmt.Errorf("%s must be in [0,1)", EnvSalesCommissionRate)
	}
	if _, err := c.Sales.Location(); err != nil {
		return fmt.Errorf("%s: %w", EnvSalesTimezone, err)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDFARMA_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDFARMA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDFARMA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDFARMA_LOG_WARN_STACK" default:"false"`
	Version      string `envconfig:"MEDFARMA_APP_VERSION" default:"1.0.0"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"MEDFARMA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"MEDFARMA_DB_DSN"`

	Host     string `envconfig:"MEDFARMA_DB_HOST"`
	Port     int    `envconfig:"MEDFARMA_DB_PORT" default:"5432"`
	User     string `envconfig:"MEDFARMA_DB_USER"`
	Password string `envconfig:"MEDFARMA_DB_PASSWORD"`
	Name     string `envconfig:"MEDFARMA_DB_NAME"`
	SSLMode  string `envconfig:"MEDFARMA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDFARMA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDFARMA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDFARMA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDFARMA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDFARMA_REDIS_URL"`
	Address      string        `envconfig:"MEDFARMA_REDIS_ADDR"`
	Password     string        `envconfig:"MEDFARMA_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDFARMA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDFARMA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDFARMA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDFARMA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDFARMA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDFARMA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MEDFARMA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MEDFARMA_JWT_ISSUER" default:"medfarma"`
	ExpirationMinutes      int    `envconfig:"MEDFARMA_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"MEDFARMA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MEDFARMA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MEDFARMA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MEDFARMA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MEDFARMA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MEDFARMA_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"MEDFARMA_PASSWORD_MIN_LENGTH" default:"8"`
}

// SessionConfig controls the browser-facing cookies and short-lived tokens.
type SessionConfig struct {
	CookieName       string        `envconfig:"MEDFARMA_SESSION_COOKIE" default:"mf_session"`
	CookieSecure     bool          `envconfig:"MEDFARMA_SESSION_COOKIE_SECURE" default:"true"`
	RefreshCookie    string        `envconfig:"MEDFARMA_REFRESH_COOKIE" default:"mf_refresh"`
	CartCookieName   string        `envconfig:"MEDFARMA_CART_COOKIE" default:"mf_cart"`
	CartTTL          time.Duration `envconfig:"MEDFARMA_CART_TTL" default:"720h"`
	PasswordResetTTL time.Duration `envconfig:"MEDFARMA_PASSWORD_RESET_TTL" default:"1h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MEDFARMA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEDFARMA_AUTO_MIGRATE" default:"false"`
}

type PermissionsConfig struct {
	CacheTTL time.Duration `envconfig:"MEDFARMA_PERMISSIONS_CACHE_TTL" default:"5m"`
}

// AssistantConfig configures the sales assistant and its generation backend.
type AssistantConfig struct {
	APIKey             string        `envconfig:"MEDFARMA_GEMINI_API_KEY"`
	Model              string        `envconfig:"MEDFARMA_GEMINI_MODEL" default:"gemini-1.5-pro-latest"`
	BaseURL            string        `envconfig:"MEDFARMA_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout            time.Duration `envconfig:"MEDFARMA_ASSISTANT_TIMEOUT" default:"30s"`
	MaxRetries         int           `envconfig:"MEDFARMA_ASSISTANT_MAX_RETRIES" default:"1"`
	MaxContextProducts int           `envconfig:"MEDFARMA_ASSISTANT_MAX_CONTEXT_PRODUCTS" default:"50"`
	MaxContextClients  int           `envconfig:"MEDFARMA_ASSISTANT_MAX_CONTEXT_CLIENTS" default:"20"`
	Temperature        float64       `envconfig:"MEDFARMA_ASSISTANT_TEMPERATURE" default:"0.7"`
	MaxOutputTokens    int           `envconfig:"MEDFARMA_ASSISTANT_MAX_OUTPUT_TOKENS" default:"2048"`
}

// AutomationConfig points at the workflow engine receiving back-office events.
type AutomationConfig struct {
	WebhookBaseURL string        `envconfig:"MEDFARMA_AUTOMATION_WEBHOOK_URL"`
	Timeout        time.Duration `envconfig:"MEDFARMA_AUTOMATION_TIMEOUT" default:"10s"`
	Source         string        `envconfig:"MEDFARMA_AUTOMATION_SOURCE" default:"medfarma-backend"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MEDFARMA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MEDFARMA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MEDFARMA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName      string        `envconfig:"MEDFARMA_GCS_BUCKET_NAME"`
	UploadURLExpiry time.Duration `envconfig:"MEDFARMA_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	ImagePrefix     string        `envconfig:"MEDFARMA_GCS_IMAGE_PREFIX" default:"productos"`
}

type PubSubConfig struct {
	AutomationTopic        string `envconfig:"MEDFARMA_PUBSUB_AUTOMATION_TOPIC" default:"mf-backoffice-events"`
	AutomationSubscription string `envconfig:"MEDFARMA_PUBSUB_AUTOMATION_SUBSCRIPTION" default:"mf-backoffice-events-automation"`
	AnalyticsSubscription  string `envconfig:"MEDFARMA_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"mf-backoffice-events-analytics"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"MEDFARMA_BIGQUERY_DATASET" default:"medfarma"`
	EventsTable string `envconfig:"MEDFARMA_BIGQUERY_EVENTS_TABLE" default:"backoffice_events"`
	// MaxBytesBilled caps each analytics query; 0 disables the cap.
	MaxBytesBilled int64 `envconfig:"MEDFARMA_BIGQUERY_MAX_BYTES_BILLED" default:"1073741824"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MEDFARMA_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEDFARMA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEDFARMA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEDFARMA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Tick                   time.Duration `envconfig:"MEDFARMA_CRON_TICK" default:"1m"`
	JobTimeout             time.Duration `envconfig:"MEDFARMA_CRON_JOB_TIMEOUT" default:"10m"`
	LowStockEvery          time.Duration `envconfig:"MEDFARMA_CRON_LOW_STOCK_EVERY" default:"1h"`
	OutboxRetentionEvery   time.Duration `envconfig:"MEDFARMA_CRON_OUTBOX_RETENTION_EVERY" default:"24h"`
	OutboxRetentionDays    int           `envconfig:"MEDFARMA_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxDLQRetentionDays int           `envconfig:"MEDFARMA_CRON_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	InvoiceAuditEvery      time.Duration `envconfig:"MEDFARMA_CRON_INVOICE_AUDIT_EVERY" default:"10m"`
}

// SalesConfig holds the commercial constants applied at checkout and
// invoicing. Timezone decides where "today" and "this month" start.
type SalesConfig struct {
	TaxRate        float64 `envconfig:"MEDFARMA_SALES_TAX_RATE" default:"0.21"`
	CommissionRate float64 `envconfig:"MEDFARMA_SALES_COMMISSION_RATE" default:"0.03"`
	Timezone       string  `envconfig:"MEDFARMA_SALES_TIMEZONE" default:"America/Argentina/Buenos_Aires"`
}

func (s SalesConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(s.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type DispatchConfig struct {
	InvoiceWindow time.Duration `envconfig:"MEDFARMA_DISPATCH_INVOICE_WINDOW" default:"2h"`
	ProofPrefix   string        `envconfig:"MEDFARMA_DISPATCH_PROOF_PREFIX" default:"comprobantes_despacho"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for env, value := range map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(sortStrings(missing), ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}

func sortStrings(values []string) []string {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	return values
}
