package utils

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)
}

func TestTokenHasher(t *testing.T) {
	h := NewTokenHasher(strings.Repeat("k", 32))
	other := NewTokenHasher(strings.Repeat("x", 32))

	digest := h.Hash("raw-token")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, h.Hash("raw-token"))
	assert.NotEqual(t, digest, h.Hash("raw-token2"))
	assert.NotEqual(t, digest, other.Hash("raw-token"))
	assert.NotContains(t, digest, "raw-token")
}

func TestNormalizeIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.9":          "203.0.113.9",
		" 203.0.113.9 ":        "203.0.113.9",
		"203.0.113.9:51234":    "203.0.113.9",
		"[2001:db8::1]:443":    "2001:db8::1",
		"fe80::1%eth0":         "fe80::1",
		"::ffff:198.51.100.7":  "198.51.100.7",
		"not-an-ip":            "not-an-ip",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeIP(in), in)
	}
}

func TestTruncateUserAgent(t *testing.T) {
	assert.Equal(t, "curl/8.0", TruncateUserAgent(" curl/8.0 "))

	long := strings.Repeat("界", 300)
	got := TruncateUserAgent(long)
	assert.LessOrEqual(t, len(got), maxUserAgentLen)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestOwnerToken(t *testing.T) {
	token, err := GenerateOwnerToken(42, "alice", "secret", "gallery-access", time.Hour)
	require.NoError(t, err)

	claims, err := ParseOwnerToken(token, "secret", "gallery-access")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = ParseOwnerToken(token, "other-secret", "gallery-access")
	assert.Error(t, err)

	_, err = ParseOwnerToken(token, "secret", "someone-else")
	assert.Error(t, err)

	expired, err := GenerateOwnerToken(42, "alice", "secret", "gallery-access", -time.Minute)
	require.NoError(t, err)
	_, err = ParseOwnerToken(expired, "secret", "gallery-access")
	assert.Error(t, err)
}
