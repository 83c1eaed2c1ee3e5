package config

import (
	"fmt"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	ServerHost string
	ServerPort string

	DBDriver        string
	DBPath          string
	DBHost          string
	DBPort          int
	DBName          string
	DBUser          string
	DBPassword      string
	DBSSLMode       string
	DBMaxConns      int
	DBBusyTimeoutMS int

	SyncToken  Secret
	AdminToken Secret

	EnableBind       bool
	EnableBindUpdate bool
	EnableSync       bool
	SyncEncryption   bool

	APIRateLimitRequests   int
	APIRateLimitWindowMins int
	APICORSOrigins         []string
	TrustProxyHeaders      bool

	EnableMetrics bool
	StaleAfter    time.Duration

	LogLevel int
}

// LoadServer builds the server configuration from path and the environment.
func LoadServer(path string) (*ServerConfig, error) {
	if err := loadFile(path); err != nil {
		return nil, err
	}

	r := &reader{}
	cfg := &ServerConfig{
		ServerHost: getEnvString("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnvString("SERVER_PORT", "2333"),

		DBDriver:        getEnvString("DB_DRIVER", DriverSQLite),
		DBPath:          getEnvString("DB_PATH", "natsume.db"),
		DBHost:          getEnvString("DB_HOST", "localhost"),
		DBPort:          r.int("DB_PORT", 5432),
		DBName:          getEnvString("DB_NAME", "natsume"),
		DBUser:          getEnvString("DB_USER", "postgres"),
		DBPassword:      getEnvString("DB_PASSWORD", ""),
		DBSSLMode:       getEnvString("DB_SSL_MODE", "disable"),
		DBMaxConns:      r.int("DB_MAX_CONNS", 8),
		DBBusyTimeoutMS: r.int("DB_BUSY_TIMEOUT_MS", 5000),

		SyncToken:  r.secret("SYNC_TOKEN"),
		AdminToken: r.secret("ADMIN_TOKEN"),

		EnableBind:       r.bool("ENABLE_BIND", false),
		EnableBindUpdate: r.bool("ENABLE_BIND_UPDATE", false),
		EnableSync:       r.bool("ENABLE_SYNC", false),
		SyncEncryption:   r.bool("SYNC_ENCRYPTION", false),

		APIRateLimitRequests:   r.int("API_RATE_LIMIT_REQUESTS", 600),
		APIRateLimitWindowMins: r.int("API_RATE_LIMIT_WINDOW_MINUTES", 1),
		APICORSOrigins:         getEnvStringSlice("API_CORS_ORIGINS", nil),
		TrustProxyHeaders:      r.bool("TRUST_PROXY_HEADERS", false),

		EnableMetrics: r.bool("ENABLE_METRICS", true),
		StaleAfter:    r.duration("STALE_AFTER", 5*time.Minute),

		LogLevel: r.int("LOG_LEVEL", 0),
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return invalid("DB_PATH", "must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBName == "" {
			return invalid("DB_NAME", "must be set for the postgres driver")
		}
	default:
		return invalid("DB_DRIVER", "unsupported driver %q", c.DBDriver)
	}
	if c.DBMaxConns <= 0 {
		return invalid("DB_MAX_CONNS", "must be positive")
	}
	if c.DBBusyTimeoutMS < 0 {
		return invalid("DB_BUSY_TIMEOUT_MS", "must not be negative")
	}
	if c.SyncToken.Digest == c.AdminToken.Digest {
		return invalid("ADMIN_TOKEN", "must differ from SYNC_TOKEN")
	}
	if c.APIRateLimitRequests < 0 || c.APIRateLimitWindowMins <= 0 {
		return invalid("API_RATE_LIMIT_REQUESTS", "requests must be >= 0 and window > 0")
	}
	return nil
}

func (c *ServerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// PostgresDSN renders the lib/pq connection string.
func (c *ServerConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
