package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	t.Run("hash verifies against its plaintext", func(t *testing.T) {
		hashed, err := Hash("password123", bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotEqual(t, "password123", hashed)
		assert.True(t, Verify("password123", hashed))
		assert.False(t, Verify("password124", hashed))
	})

	t.Run("same plaintext hashes differently each time", func(t *testing.T) {
		a, err := Hash("password123", bcrypt.MinCost)
		require.NoError(t, err)
		b, err := Hash("password123", bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		_, err := Hash("", bcrypt.MinCost)
		assert.ErrorIs(t, err, ErrEmptyPassword)
	})

	t.Run("cost out of range is rejected", func(t *testing.T) {
		_, err := Hash("password123", bcrypt.MaxCost+1)
		assert.Error(t, err)
	})

	t.Run("garbage hash never verifies", func(t *testing.T) {
		assert.False(t, Verify("password123", "not-a-bcrypt-hash"))
	})
}
