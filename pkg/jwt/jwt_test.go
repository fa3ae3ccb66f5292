package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GenerateAndValidate(t *testing.T) {
	m, err := NewManager(time.Hour, "stage")
	require.NoError(t, err)

	token, exp, err := m.Generate("op-1", "operator")
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, "operator", claims.Role)
	assert.Equal(t, "stage", claims.Issuer)
}

func TestManager_Expiry(t *testing.T) {
	m, err := NewManager(time.Minute, "stage")
	require.NoError(t, err)

	start := time.Now()
	m.now = func() time.Time { return start }
	token, _, err := m.Generate("op-1", "output")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_RevokeAll(t *testing.T) {
	m, err := NewManager(time.Hour, "stage")
	require.NoError(t, err)

	old, _, err := m.Generate("op-1", "operator")
	require.NoError(t, err)
	m.RevokeAll()

	_, err = m.ValidateToken(old)
	assert.ErrorIs(t, err, ErrRevokedToken)

	fresh, _, err := m.Generate("op-2", "operator")
	require.NoError(t, err)
	_, err = m.ValidateToken(fresh)
	assert.NoError(t, err)
}

func TestManager_ForeignKeyRejected(t *testing.T) {
	a, err := NewManager(time.Hour, "stage")
	require.NoError(t, err)
	b, err := NewManager(time.Hour, "stage")
	require.NoError(t, err)

	token, _, err := a.Generate("op-1", "operator")
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
