package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	sig := Sign(7, 1700000000000, "deadbeef")

	assert.Len(t, sig, 64) // 256-bit hex digest
	assert.Equal(t, strings.ToLower(sig), sig)
	assert.True(t, Verify(sig, 7, 1700000000000, "deadbeef"))
}

func TestVerifyTamperSensitivity(t *testing.T) {
	const (
		pid    = int64(7)
		ts     = int64(1700000000000)
		secret = "deadbeef"
	)
	sig := Sign(pid, ts, secret)

	t.Run("changed pid", func(t *testing.T) {
		assert.False(t, Verify(sig, pid+1, ts, secret))
	})
	t.Run("changed ts", func(t *testing.T) {
		assert.False(t, Verify(sig, pid, ts+1, secret))
	})
	t.Run("changed secret", func(t *testing.T) {
		assert.False(t, Verify(sig, pid, ts, "deadbeee"))
	})
	t.Run("one hex char flipped", func(t *testing.T) {
		flipped := []byte(sig)
		if flipped[0] == 'a' {
			flipped[0] = 'b'
		} else {
			flipped[0] = 'a'
		}
		assert.False(t, Verify(string(flipped), pid, ts, secret))
	})
	t.Run("length mismatch returns false", func(t *testing.T) {
		assert.False(t, Verify(sig[:10], pid, ts, secret))
		assert.False(t, Verify("", pid, ts, secret))
	})
}

func TestCanonicalPayload(t *testing.T) {
	assert.Equal(t, "7|1700000000000", CanonicalPayload(7, 1700000000000))
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64) // 32 bytes hex
	assert.NotEqual(t, a, b)
}
