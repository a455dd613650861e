package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateKnownUser(t *testing.T) {
	a := NewMemoryAuthenticator(false)
	a.AddUser("u1", map[string]string{
		"user_name":  "alice",
		"age":        "30",
		"gender":     "f",
		"membership": "normal",
		"token":      "secret",
	})

	session, err := a.Authenticate(context.Background(), "u1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "alice", session.UserName)
	assert.Equal(t, "30", session.Age)
	assert.Equal(t, "f", session.Gender)
}

func TestAuthenticateWrongToken(t *testing.T) {
	a := NewMemoryAuthenticator(false)
	a.AddUser("u1", map[string]string{"user_name": "alice", "token": "secret"})

	_, err := a.Authenticate(context.Background(), "u1", "guess")
	assert.ErrorIs(t, err, ErrWrongToken)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	a := NewMemoryAuthenticator(false)

	_, err := a.Authenticate(context.Background(), "nobody", "secret")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestAllowAllFabricatesSession(t *testing.T) {
	a := NewMemoryAuthenticator(true)

	session, err := a.Authenticate(context.Background(), "anyone", "whatever")
	require.NoError(t, err)
	assert.Equal(t, "anyone", session.UserID)
	assert.Equal(t, "anyone", session.UserName)
}

func TestAllowAllStillChecksRegisteredTokens(t *testing.T) {
	a := NewMemoryAuthenticator(true)
	a.AddUser("u1", map[string]string{"user_name": "alice", "token": "secret"})

	_, err := a.Authenticate(context.Background(), "u1", "guess")
	assert.ErrorIs(t, err, ErrWrongToken)
}
