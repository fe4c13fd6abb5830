package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the
// prefix only matters for untagged fields.
const EnvPrefix = "ALUMNET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultSQLiteDSN = "file:alumnet.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv   = "ALUMNET_APP_ENV"
	EnvPort     = "ALUMNET_APP_PORT"
	EnvLogLevel = "ALUMNET_LOG_LEVEL"

	EnvDBDSN  = "ALUMNET_DB_DSN"
	EnvDBHost = "ALUMNET_DB_HOST"
	EnvDBUser = "ALUMNET_DB_USER"
	EnvDBName = "ALUMNET_DB_NAME"

	EnvRedisURL  = "ALUMNET_REDIS_URL"
	EnvUseSQLite = "ALUMNET_USE_SQLITE"

	EnvDashboardMetricsTTL    = "ALUMNET_DASHBOARD_METRICS_TTL"
	EnvDashboardActivitiesTTL = "ALUMNET_DASHBOARD_ACTIVITIES_TTL"
	EnvCacheSweepInterval     = "ALUMNET_CACHE_SWEEP_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
