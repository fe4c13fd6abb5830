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
	FeatureFlags FeatureFlagsConfig
	Cache        CacheConfig
	Dashboard    DashboardConfig
	Lifecycle    LifecycleConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ALUMNET_APP_ENV" required:"true"`
	Port         string `envconfig:"ALUMNET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ALUMNET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ALUMNET_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"ALUMNET_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ALUMNET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ALUMNET_DB_DSN"`
	Driver string `envconfig:"ALUMNET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ALUMNET_DB_HOST"`
	LegacyPort     int    `envconfig:"ALUMNET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ALUMNET_DB_USER"`
	LegacyPassword string `envconfig:"ALUMNET_DB_PASSWORD"`
	LegacyName     string `envconfig:"ALUMNET_DB_NAME"`
	LegacySSLMode  string `envconfig:"ALUMNET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALUMNET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALUMNET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALUMNET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALUMNET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the threshold above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"ALUMNET_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ALUMNET_REDIS_URL"`
	Address      string        `envconfig:"ALUMNET_REDIS_ADDR"`
	Password     string        `envconfig:"ALUMNET_REDIS_PASSWORD"`
	DB           int           `envconfig:"ALUMNET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ALUMNET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALUMNET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALUMNET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALUMNET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ALUMNET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether enough settings exist to dial Redis.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ALUMNET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ALUMNET_AUTO_MIGRATE" default:"false"`
}

type CacheConfig struct {
	SweepInterval time.Duration `envconfig:"ALUMNET_CACHE_SWEEP_INTERVAL" default:"5m"`
	SweepBatch    int           `envconfig:"ALUMNET_CACHE_SWEEP_BATCH" default:"256"`
}

type DashboardConfig struct {
	MetricsTTL        time.Duration `envconfig:"ALUMNET_DASHBOARD_METRICS_TTL" default:"300s"`
	ActivitiesTTL     time.Duration `envconfig:"ALUMNET_DASHBOARD_ACTIVITIES_TTL" default:"120s"`
	QueryTimeout      time.Duration `envconfig:"ALUMNET_DASHBOARD_QUERY_TIMEOUT" default:"10s"`
	BreakdownMonths   int           `envconfig:"ALUMNET_DASHBOARD_BREAKDOWN_MONTHS" default:"6"`
	DefaultActivities int           `envconfig:"ALUMNET_DASHBOARD_DEFAULT_ACTIVITIES" default:"10"`
}

type LifecycleConfig struct {
	DefaultEventCapacity int64         `envconfig:"ALUMNET_DEFAULT_EVENT_CAPACITY" default:"100"`
	DefaultMaxMentees    int64         `envconfig:"ALUMNET_DEFAULT_MAX_MENTEES" default:"3"`
	TransitionTimeout    time.Duration `envconfig:"ALUMNET_TRANSITION_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ALUMNET_CRON_INTERVAL" default:"1h"`
	LockTTL           time.Duration `envconfig:"ALUMNET_CRON_LOCK_TTL" default:"55m"`
	JobTimeout        time.Duration `envconfig:"ALUMNET_CRON_JOB_TIMEOUT" default:"50m"`
	ReconcileDryRun   bool          `envconfig:"ALUMNET_CRON_RECONCILE_DRY_RUN" default:"false"`
	ReconcileBatchMax int           `envconfig:"ALUMNET_CRON_RECONCILE_BATCH_MAX" default:"500"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = DefaultSQLiteDSN
		}
		return nil
	}
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
