package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Browser origins allowed by the CORS layer for the plain HTTP surface.
	// The websocket gateway keeps its own, stricter origin policy.
	CORSAllowedOrigins []string

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
//
// The HTTP write timeout is zero by default: long-lived websocket sessions
// share this server, and a positive WriteTimeout would sever them.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("TIENDA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("TIENDA_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("TIENDA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TIENDA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TIENDA_HTTP_WRITE_TIMEOUT", 0),
		IdleTimeout:       EnvDuration("TIENDA_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TIENDA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TIENDA_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("TIENDA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TIENDA_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("TIENDA_DB_SCHEMA", "tienda"),

		ReadinessRequireDB: EnvBool("TIENDA_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins: EnvCSV("TIENDA_CORS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),

		MetricsEnabled: EnvBool("TIENDA_METRICS_ENABLED", true),
	}
}
