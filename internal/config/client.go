package config

import (
	"net/url"
	"strings"
	"time"
)

type ClientConfig struct {
	ServerAddress      string
	SkipTopologyCheck  bool
	SyncToken          Secret
	SyncEncryption     bool
	InsecureSkipVerify bool
	HTTPTimeout        time.Duration

	ReverseProxyConfigPath     string
	ReverseProxyService        string
	ReverseProxyListen         string
	LoginPath                  string
	UpstreamApplicationAddress string

	PlayerUser          string
	PlayerUserPassword  string
	LoginManagerConfig  string
	LoginManagerService string

	MonitorInterval time.Duration
	CommandTimeout  time.Duration

	LogLevel int
}

// LoadClient builds the agent configuration from path and the environment.
func LoadClient(path string) (*ClientConfig, error) {
	if err := loadFile(path); err != nil {
		return nil, err
	}

	r := &reader{}
	cfg := &ClientConfig{
		ServerAddress:      strings.TrimRight(getEnvString("SERVER_ADDRESS", ""), "/"),
		SkipTopologyCheck:  r.bool("SKIP_TOPOLOGY_CHECK", false),
		SyncToken:          r.optionalSecret("SYNC_TOKEN"),
		SyncEncryption:     r.bool("SYNC_ENCRYPTION", false),
		InsecureSkipVerify: r.bool("INSECURE_SKIP_VERIFY", false),
		HTTPTimeout:        r.duration("HTTP_TIMEOUT", 15*time.Second),

		ReverseProxyConfigPath:     getEnvString("REVERSE_PROXY_CONFIG_PATH", "/etc/caddy/Caddyfile"),
		ReverseProxyService:        getEnvString("REVERSE_PROXY_SERVICE", "caddy"),
		ReverseProxyListen:         getEnvString("REVERSE_PROXY_LISTEN", ":80"),
		LoginPath:                  getEnvString("LOGIN_PATH", "/login"),
		UpstreamApplicationAddress: strings.TrimRight(getEnvString("UPSTREAM_APPLICATION_ADDRESS", ""), "/"),

		PlayerUser:          getEnvString("PLAYER_USER", ""),
		PlayerUserPassword:  getEnvString("PLAYER_USER_PASSWORD", ""),
		LoginManagerConfig:  getEnvString("LOGIN_MANAGER_CONFIG", "/etc/gdm3/custom.conf"),
		LoginManagerService: getEnvString("LOGIN_MANAGER_SERVICE", "gdm"),

		MonitorInterval: r.duration("MONITOR_INTERVAL", 60*time.Second),
		CommandTimeout:  r.duration("COMMAND_TIMEOUT", 30*time.Second),

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

// Validate checks the format of every key that is set. Keys only some
// commands need are enforced by the Require methods.
func (c *ClientConfig) Validate() error {
	if c.ServerAddress != "" {
		u, err := url.Parse(c.ServerAddress)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("SERVER_ADDRESS", "must be an http(s) URL, got %q", c.ServerAddress)
		}
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return invalid("LOGIN_PATH", "must start with /")
	}
	return nil
}

// ServerHost is the host part of SERVER_ADDRESS, without port.
func (c *ClientConfig) ServerHost() string {
	u, err := url.Parse(c.ServerAddress)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RequireServer checks the keys every command talking to the server needs.
func (c *ClientConfig) RequireServer() error {
	if c.ServerAddress == "" {
		return invalid("SERVER_ADDRESS", "must be set to reach the server")
	}
	if !c.SyncToken.IsSet() {
		return invalid("SYNC_TOKEN", "must be set to reach the server")
	}
	return nil
}

// RequireSync checks the keys only the sync flow needs.
func (c *ClientConfig) RequireSync() error {
	if err := c.RequireServer(); err != nil {
		return err
	}
	if c.UpstreamApplicationAddress == "" {
		return invalid("UPSTREAM_APPLICATION_ADDRESS", "must be set to sync credentials")
	}
	if c.ReverseProxyConfigPath == "" {
		return invalid("REVERSE_PROXY_CONFIG_PATH", "must be set to sync credentials")
	}
	return nil
}

// RequireSession checks the keys only the session manager needs.
func (c *ClientConfig) RequireSession() error {
	if c.PlayerUser == "" {
		return invalid("PLAYER_USER", "must be set to manage sessions")
	}
	if c.PlayerUser == "root" {
		return invalid("PLAYER_USER", "must not be root")
	}
	return nil
}
