package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPlainSecret(t *testing.T) {
	s := PlainSecret("abc12")
	assert.True(t, s.Verify("abc12"))
	assert.False(t, s.Verify("wrong"))
	assert.False(t, s.Verify("abc12 "))
	assert.False(t, s.Verify(""))
}

func TestBcryptSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("abc12"), bcrypt.MinCost)
	require.NoError(t, err)

	s := BcryptSecret(hash)
	assert.True(t, s.Verify("abc12"))
	assert.False(t, s.Verify("wrong"))
}
