package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"natsume/internal/crypto"
)

const DefaultPath = "/etc/natsume/natsume.env"

// ErrInvalid marks every configuration problem detected at load time.
var ErrInvalid = errors.New("invalid configuration")

func invalid(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}

// loadFile reads path into the environment without overriding variables
// that are already set. A missing file is fine as long as the environment
// carries the required keys.
func loadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// Secret is a shared secret reduced to its digest at load time. The plaintext
// is kept only because the optional payload encryption derives its key from it.
type Secret struct {
	Digest    string
	plaintext string
}

func newSecret(key string) (Secret, error) {
	value := os.Getenv(key)
	if value == "" {
		return Secret{}, invalid(key, "must be set")
	}
	return SecretOf(value), nil
}

// SecretOf wraps a literal secret value.
func SecretOf(value string) Secret {
	return Secret{Digest: crypto.TokenDigest(value), plaintext: value}
}

func (s Secret) IsSet() bool {
	return s.Digest != ""
}

func (s Secret) Plaintext() string {
	return s.plaintext
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, invalid(key, "not an integer: %q", value)
	}
	return intValue, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, invalid(key, "not a boolean: %q", value)
	}
	return boolValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, invalid(key, "not a duration: %q", value)
	}
	if d <= 0 {
		return 0, invalid(key, "must be positive")
	}
	return d, nil
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return defaultValue
}

// reader collects the first parse error so Load functions can read every key
// in one flat block the way the plain getEnv helpers allow.
type reader struct {
	err error
}

func (r *reader) int(key string, def int) int {
	v, err := getEnvInt(key, def)
	r.keep(err)
	return v
}

func (r *reader) bool(key string, def bool) bool {
	v, err := getEnvBool(key, def)
	r.keep(err)
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, err := getEnvDuration(key, def)
	r.keep(err)
	return v
}

func (r *reader) secret(key string) Secret {
	s, err := newSecret(key)
	r.keep(err)
	return s
}

// optionalSecret leaves the Secret empty when key is unset.
func (r *reader) optionalSecret(key string) Secret {
	if os.Getenv(key) == "" {
		return Secret{}
	}
	return r.secret(key)
}

func (r *reader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}
