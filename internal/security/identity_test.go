package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminIdentity_Verify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	id, err := NewAdminIdentity("admin", "", string(hash))
	require.NoError(t, err)

	assert.True(t, id.Verify("admin", "s3cret"))

	cases := map[string][2]string{
		"wrong password": {"admin", "nope"},
		"wrong username": {"root", "s3cret"},
		"empty username": {"", "s3cret"},
		"empty password": {"admin", ""},
		"both empty":     {"", ""},
		"case mismatch":  {"Admin", "s3cret"},
	}
	for name, tc := range cases {
		assert.False(t, id.Verify(tc[0], tc[1]), name)
	}
}

func TestNewAdminIdentity_HashesPlainPassword(t *testing.T) {
	id, err := NewAdminIdentity("admin", "plain", "")
	require.NoError(t, err)
	assert.True(t, id.Verify("admin", "plain"))
}

func TestNewAdminIdentity_RejectsBadInput(t *testing.T) {
	_, err := NewAdminIdentity("", "pw", "")
	assert.Error(t, err)

	_, err = NewAdminIdentity("admin", "", "")
	assert.Error(t, err)

	_, err = NewAdminIdentity("admin", "", "not-a-bcrypt-hash")
	assert.Error(t, err)
}
