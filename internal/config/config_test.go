package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tru.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeCredentials(t, `{"credentials":[{"client_id":"first","client_secret":"s1"},{"client_id":"second","client_secret":"s2"}]}`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "first", cfg.ActiveCredential().ClientID)
	assert.Len(t, cfg.Platform.Credentials, 2)
	assert.Equal(t, DefaultAPIBaseURL, cfg.Platform.APIBaseURL)
	assert.Equal(t, DefaultAPIBaseURL+"/.well-known/jwks.json", cfg.JWKSURL())
	assert.Equal(t, 5*time.Second, cfg.Platform.RequestTimeout)
	assert.Equal(t, "memory", cfg.TokenCache.Backend)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.Callback.RequireDigest)
}

func TestLoad_EnvCredentialBecomesActive(t *testing.T) {
	path := writeCredentials(t, `{"credentials":[{"client_id":"file","client_secret":"s1"}]}`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CLIENT_ID", "env")
	t.Setenv("CLIENT_SECRET", "env-secret")
	t.Setenv("API_BASE_URL", "https://us.api.example.com/")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env", cfg.ActiveCredential().ClientID)
	assert.Equal(t, "https://us.api.example.com", cfg.Platform.APIBaseURL)
	assert.True(t, cfg.Debug)
}

func TestLoad_RequiresCredential(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeCredentials(t, `{"credentials":`))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeCredentials(t, `{"credentials":[{"client_id":"a","client_secret":"b"}]}`)
	t.Setenv("CONFIG_PATH", path)

	t.Run("relative base url", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "eu.api.tru.id")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown cache backend", func(t *testing.T) {
		t.Setenv("TOKEN_CACHE", "memcached")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("empty secret", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", writeCredentials(t, `{"credentials":[{"client_id":"a","client_secret":""}]}`))
		_, err := Load()
		require.Error(t, err)
	})
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvAsList("CORS_ALLOWED_ORIGINS", nil))

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	assert.Equal(t, []string{"*"}, getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}))
}
