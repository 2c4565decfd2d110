package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd-lab/director/dao/model"
)

func TestTokenSecretsAreSeparate(t *testing.T) {
	tm := newTokenManager("access-secret", "refresh-secret", 1, 24)
	msg := &JWTMessage{
		UserID:      7,
		Username:    "dana",
		Role:        model.RoleAdmin,
		ReviewRole:  model.ReviewRoleCMO,
		CanOverride: true,
	}

	access, refresh, err := tm.CreateTokens(msg)
	require.NoError(t, err)
	require.NotEqual(t, access, refresh)

	got, err := tm.CheckToken(access)
	require.NoError(t, err)
	assert.Equal(t, *msg, got)

	got, err = tm.CheckRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, *msg, got)

	// A refresh token must not pass access-token verification, and the
	// other way around.
	_, err = tm.CheckToken(refresh)
	assert.Error(t, err)
	_, err = tm.CheckRefreshToken(access)
	assert.Error(t, err)
}
