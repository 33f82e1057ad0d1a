package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment:    "production",
		JWTSecret:      "this-is-a-very-secure-secret-with-32-plus-characters",
		AllowedOrigins: "https://app.example.com",
		Cassandra:      CassandraConfig{Hosts: []string{"10.0.0.1"}},
		StoreTimeout:   3 * time.Second,
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.expected, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"empty", "", true},
		{"production", "production", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.expected, cfg.IsDevelopment())
		})
	}
}

func TestConfig_Validate_Production(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:          "empty_secret",
			mutate:        func(c *Config) { c.JWTSecret = "" },
			errorContains: "JWT_SECRET must be set",
		},
		{
			name:          "default_secret",
			mutate:        func(c *Config) { c.JWTSecret = "change-this-in-production" },
			errorContains: "JWT_SECRET must be set",
		},
		{
			name:          "short_secret",
			mutate:        func(c *Config) { c.JWTSecret = "too-short" },
			errorContains: "at least 32 characters",
		},
		{
			name:          "wildcard_origin",
			mutate:        func(c *Config) { c.AllowedOrigins = "*" },
			errorContains: "wildcard",
		},
		{
			name:          "no_cassandra_hosts",
			mutate:        func(c *Config) { c.Cassandra.Hosts = nil },
			errorContains: "CASSANDRA_HOSTS",
		},
		{
			name:          "zero_store_timeout",
			mutate:        func(c *Config) { c.StoreTimeout = 0 },
			errorContains: "STORE_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestConfig_Validate_DevelopmentDefaultsSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "development"
	cfg.JWTSecret = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dev-secret-not-for-production", cfg.JWTSecret)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("CASSANDRA_HOSTS", "10.0.0.1, 10.0.0.2,")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STORE_TIMEOUT", "1500ms")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "galileo", cfg.Cassandra.Keyspace)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 1500*time.Millisecond, cfg.StoreTimeout)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("STORE_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
}
