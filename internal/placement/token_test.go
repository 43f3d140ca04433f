package placement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := NewTokenManager()

	jt, err := tm.GenerateToken("journal-server", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, jt.Token)

	clusterType, err := tm.ValidateToken(jt.Token)
	require.NoError(t, err)
	assert.Equal(t, "journal-server", clusterType)
}

func TestTokenManager_ValidateUnknownToken(t *testing.T) {
	tm := NewTokenManager()
	_, err := tm.ValidateToken("does-not-exist")
	assert.Error(t, err)
}

func TestTokenManager_ValidateExpiredToken(t *testing.T) {
	tm := NewTokenManager()
	jt, err := tm.GenerateToken("mqtt-broker", -time.Second)
	require.NoError(t, err)

	_, err = tm.ValidateToken(jt.Token)
	assert.Error(t, err)
}

func TestTokenManager_RevokeToken(t *testing.T) {
	tm := NewTokenManager()
	jt, err := tm.GenerateToken("mqtt-broker", time.Hour)
	require.NoError(t, err)

	tm.RevokeToken(jt.Token)
	_, err = tm.ValidateToken(jt.Token)
	assert.Error(t, err)
}

func TestTokenManager_CleanupExpired(t *testing.T) {
	tm := NewTokenManager()
	expired, err := tm.GenerateToken("mqtt-broker", -time.Second)
	require.NoError(t, err)
	live, err := tm.GenerateToken("mqtt-broker", time.Hour)
	require.NoError(t, err)

	tm.CleanupExpired()

	_, err = tm.ValidateToken(expired.Token)
	assert.Error(t, err)
	_, err = tm.ValidateToken(live.Token)
	assert.NoError(t, err)
}
