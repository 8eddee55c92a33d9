package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPList(t *testing.T) {
	list, err := ParseIPList([]string{"10.0.0.0/8", "203.0.113.7", "2001:db8::/32"})
	require.NoError(t, err)

	assert.True(t, list.Contains("10.1.2.3"))
	assert.True(t, list.Contains("203.0.113.7"))
	assert.False(t, list.Contains("203.0.113.8"))
	assert.True(t, list.Contains("2001:db8::42"))
	assert.False(t, list.Contains("2001:db9::1"))
	assert.False(t, list.Contains("garbage"))
	assert.Equal(t, []string{"10.0.0.0/8", "203.0.113.7/32", "2001:db8::/32"}, list.Strings())
}

func TestIPList_EmptyAllowsAll(t *testing.T) {
	list, err := ParseIPList(nil)
	require.NoError(t, err)
	assert.True(t, list.Empty())
	assert.True(t, list.Contains("198.51.100.1"))
}

func TestParseIPList_Invalid(t *testing.T) {
	_, err := ParseIPList([]string{"10.0.0.0/33"})
	assert.ErrorIs(t, err, ErrInvalidIP)

	_, err = ParseIPList([]string{"example.com"})
	assert.ErrorIs(t, err, ErrInvalidIP)

	_, err = ParseIPList([]string{" "})
	assert.ErrorIs(t, err, ErrEmptyEntry)
}

func TestDomainList(t *testing.T) {
	list, err := ParseDomainList([]string{"ACME.com", "@studio.example.org"})
	require.NoError(t, err)

	assert.True(t, list.Matches("jane@acme.com"))
	assert.True(t, list.Matches("Jane@Mail.ACME.com"))
	assert.True(t, list.Matches("bob@studio.example.org"))
	assert.False(t, list.Matches("jane@other.com"))
	assert.False(t, list.Matches("jane@notacme.com"))
	assert.False(t, list.Matches("acme.com"))
	assert.False(t, list.Matches(""))
	assert.Equal(t, []string{"acme.com", "studio.example.org"}, list.Strings())
}

func TestParseDomainList_Invalid(t *testing.T) {
	for _, entry := range []string{"localhost", "-bad.com", "bad..com", "spa ce.com"} {
		_, err := ParseDomainList([]string{entry})
		assert.ErrorIs(t, err, ErrInvalidDomain, entry)
	}
}
