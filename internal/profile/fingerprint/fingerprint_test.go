package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	require.NoError(t, Check())
}

func TestGenerate(t *testing.T) {
	t.Run("matches sha-256 over the delimited triple", func(t *testing.T) {
		sum := sha256.Sum256([]byte("a@x.com:PAN1:Ann"))
		expected := base64.StdEncoding.EncodeToString(sum[:])

		assert.Equal(t, expected, Generate("a@x.com", "PAN1", "Ann"))
	})

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, Generate("a@x.com", "PAN1", "Ann"), Generate("a@x.com", "PAN1", "Ann"))
	})

	t.Run("differs when any field differs", func(t *testing.T) {
		base := Generate("a@x.com", "PAN1", "Ann")
		assert.NotEqual(t, base, Generate("b@x.com", "PAN1", "Ann"))
		assert.NotEqual(t, base, Generate("a@x.com", "PAN2", "Ann"))
		assert.NotEqual(t, base, Generate("a@x.com", "PAN1", "Bob"))
	})

	t.Run("is printable", func(t *testing.T) {
		key := Generate("", "", "")
		_, err := base64.StdEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, key, 44)
	})
}
