package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Password PasswordConfig
	Hooks    HooksConfig
	Media    MediaConfig
	Print    PrintConfig
	Reaper   ReaperConfig
	Session  SessionConfig
	Site     SiteConfig
	GCP      GCPConfig
	GCS      GCSConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
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
	Env          string `envconfig:"ARTKEY_APP_ENV" required:"true"`
	Port         string `envconfig:"ARTKEY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ARTKEY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARTKEY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ARTKEY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ARTKEY_DB_DSN"`
	Driver string `envconfig:"ARTKEY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ARTKEY_DB_HOST"`
	LegacyPort     int    `envconfig:"ARTKEY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ARTKEY_DB_USER"`
	LegacyPassword string `envconfig:"ARTKEY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ARTKEY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ARTKEY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARTKEY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARTKEY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARTKEY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARTKEY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"ARTKEY_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARTKEY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ARTKEY_REDIS_ADDR"`
	Password     string        `envconfig:"ARTKEY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARTKEY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARTKEY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARTKEY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARTKEY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARTKEY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARTKEY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret               string `envconfig:"ARTKEY_JWT_SECRET" required:"true"`
	Issuer               string `envconfig:"ARTKEY_JWT_ISSUER" required:"true"`
	ExpirationMinutes    int    `envconfig:"ARTKEY_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLHours int    `envconfig:"ARTKEY_JWT_REFRESH_TTL_HOURS" default:"720"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh session lifetime.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenTTLHours) * time.Hour
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"ARTKEY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"ARTKEY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"ARTKEY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"ARTKEY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"ARTKEY_ARGON_KEY_LEN" default:"32"`
}

// HooksConfig guards the commerce webhook surface with a shared secret.
type HooksConfig struct {
	SharedSecret string `envconfig:"ARTKEY_HOOKS_SHARED_SECRET" required:"true"`
}

type MediaConfig struct {
	MaxUploadMB int `envconfig:"ARTKEY_MEDIA_MAX_UPLOAD_MB" default:"30"`
}

// MaxUploadBytes returns the upload cap in bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	return int64(m.MaxUploadMB) * 1024 * 1024
}

type PrintConfig struct {
	QRSizePx       int           `envconfig:"ARTKEY_PRINT_QR_SIZE_PX" default:"600"`
	ComposeTimeout time.Duration `envconfig:"ARTKEY_PRINT_COMPOSE_TIMEOUT" default:"30s"`
}

type ReaperConfig struct {
	RetentionDays int `envconfig:"ARTKEY_REAPER_RETENTION_DAYS" default:"3"`
	BatchSize     int `envconfig:"ARTKEY_REAPER_BATCH_SIZE" default:"50"`
}

type SessionConfig struct {
	TTL time.Duration `envconfig:"ARTKEY_SESSION_TTL" default:"168h"`
}

// SiteConfig locates the public host that renders Art Key pages and the editor.
type SiteConfig struct {
	PublicBaseURL string   `envconfig:"ARTKEY_SITE_PUBLIC_BASE_URL" required:"true"`
	EditorPath    string   `envconfig:"ARTKEY_SITE_EDITOR_PATH" default:"/artkey-editor"`
	CORSOrigins   []string `envconfig:"ARTKEY_SITE_CORS_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ARTKEY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ARTKEY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ARTKEY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"ARTKEY_GCS_BUCKET_NAME" required:"true"`
}

type PubSubConfig struct {
	ArtKeyTopic string `envconfig:"ARTKEY_PUBSUB_ARTKEY_TOPIC" default:"artkey-lifecycle-events"`
	PrintTopic  string `envconfig:"ARTKEY_PUBSUB_PRINT_TOPIC" default:"artkey-print-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ARTKEY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ARTKEY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ARTKEY_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
