package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Security.TokenHashSecret = strings.Repeat("s", 32)
	cfg.JWT.SecretKey = "owner-jwt-secret"
	cfg.Database.DSN = "file::memory:"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.RateLimit.PasswordMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.PasswordWindow)
	assert.Equal(t, 6, cfg.Guard.FailureThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Guard.BlockDuration)
	assert.Equal(t, 7*24*time.Hour, cfg.Guard.HashProbeBlock)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "db", cfg.RateLimit.Backend)
	assert.Equal(t, 7, cfg.Links.TemporaryMaxDays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing hash secret",
			mutate:  func(c *Config) { c.Security.TokenHashSecret = "" },
			wantErr: true,
		},
		{
			name:    "short hash secret",
			mutate:  func(c *Config) { c.Security.TokenHashSecret = "too-short" },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: true,
		},
		{
			name:    "redis backend without redis",
			mutate:  func(c *Config) { c.RateLimit.Backend = "redis" },
			wantErr: true,
		},
		{
			name: "redis backend with redis",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "redis"
				c.Redis.Addr = "localhost:6379"
			},
		},
		{
			name:    "zero session ttl",
			mutate:  func(c *Config) { c.Session.TTL = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_MissingSecretIsSentinel(t *testing.T) {
	cfg := validConfig()
	cfg.Security.TokenHashSecret = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingHashSecret)
}
