package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qcom/phoneverify/internal/models"
)

const DefaultAPIBaseURL = "https://eu.api.tru.id"

type Config struct {
	Server     ServerConfig
	Platform   PlatformConfig
	TokenCache TokenCacheConfig
	Redis      RedisConfig
	Callback   CallbackConfig
	BasicAuth  BasicAuthConfig
	CORS       CORSConfig
	Debug      bool
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TrustProxy   bool
}

// PlatformConfig describes the verification platform and the credentials
// used against it. Credentials[0] is the active pair.
type PlatformConfig struct {
	APIBaseURL     string
	Credentials    []models.Credential
	RequestTimeout time.Duration
	JWKSPath       string
	// JWKSMinRefreshInterval bounds how often an unknown key id may force a
	// re-fetch of the key set.
	JWKSMinRefreshInterval time.Duration
}

type TokenCacheConfig struct {
	// Backend is one of "memory", "redis" or "none".
	Backend string
	Leeway  time.Duration
}

type RedisConfig struct {
	Endpoint  string
	Password  string
	DB        int
	KeyPrefix string
}

type CallbackConfig struct {
	ClockSkew     time.Duration
	RequireDigest bool
}

type BasicAuthConfig struct {
	Username string
	Password string
}

// Enabled reports whether the basic-auth gate should be installed.
func (c BasicAuthConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

type CORSConfig struct {
	AllowedOrigins []string
}

// credentialsFile is the on-disk shape of CONFIG_PATH.
type credentialsFile struct {
	Credentials []models.Credential `json:"credentials"`
}

// ActiveCredential returns the credential pair used for token exchange.
func (c *Config) ActiveCredential() models.Credential {
	return c.Platform.Credentials[0]
}

// JWKSURL returns the absolute URL of the platform's published key set.
func (c *Config) JWKSURL() string {
	return c.Platform.APIBaseURL + c.Platform.JWKSPath
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "4040"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			TrustProxy:   getEnvAsBool("TRUST_PROXY", true),
		},
		Platform: PlatformConfig{
			APIBaseURL:             strings.TrimRight(getEnv("API_BASE_URL", DefaultAPIBaseURL), "/"),
			RequestTimeout:         getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),
			JWKSPath:               getEnv("JWKS_PATH", "/.well-known/jwks.json"),
			JWKSMinRefreshInterval: getEnvAsDuration("JWKS_MIN_REFRESH_INTERVAL", time.Minute),
		},
		TokenCache: TokenCacheConfig{
			Backend: strings.ToLower(getEnv("TOKEN_CACHE", "memory")),
			Leeway:  getEnvAsDuration("TOKEN_CACHE_LEEWAY", 30*time.Second),
		},
		Redis: RedisConfig{
			Endpoint:  getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "phoneverify:token:"),
		},
		Callback: CallbackConfig{
			ClockSkew:     getEnvAsDuration("CALLBACK_CLOCK_SKEW", 5*time.Minute),
			RequireDigest: getEnvAsBool("CALLBACK_REQUIRE_DIGEST", true),
		},
		BasicAuth: BasicAuthConfig{
			Username: getEnv("BASIC_AUTH_USERNAME", ""),
			Password: getEnv("BASIC_AUTH_PASSWORD", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Debug: getEnvAsBool("DEBUG", false),
	}

	creds, err := loadCredentials(getEnv("CONFIG_PATH", "tru.json"))
	if err != nil {
		return nil, err
	}
	if id, secret := os.Getenv("CLIENT_ID"), os.Getenv("CLIENT_SECRET"); id != "" && secret != "" {
		creds = append([]models.Credential{{ClientID: id, ClientSecret: secret}}, creds...)
	}
	cfg.Platform.Credentials = creds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if len(c.Platform.Credentials) == 0 {
		return fmt.Errorf("at least one platform credential is required (CLIENT_ID/CLIENT_SECRET or CONFIG_PATH)")
	}
	for i, cred := range c.Platform.Credentials {
		if cred.ClientID == "" || cred.ClientSecret == "" {
			return fmt.Errorf("credential %d is missing client_id or client_secret", i)
		}
	}

	u, err := url.Parse(c.Platform.APIBaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.Platform.APIBaseURL)
	}

	if !strings.HasPrefix(c.Platform.JWKSPath, "/") {
		return fmt.Errorf("JWKS_PATH must start with '/'")
	}

	switch c.TokenCache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("TOKEN_CACHE must be one of memory, redis, none; got %q", c.TokenCache.Backend)
	}

	if c.Platform.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	return nil
}

// loadCredentials reads the credentials file. A missing file is not an
// error; credentials may come from the environment instead.
func loadCredentials(path string) ([]models.Credential, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return file.Credentials, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
