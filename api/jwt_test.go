package api

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carhut/models"
)

func testAuthConfig() AuthConfig {
	return AuthConfig{
		Secret:         "test-secret",
		Issuer:         "carhut-backend",
		Audience:       "carhut-users",
		ExpireDuration: time.Hour,
	}
}

func TestJWT_SignAndValidate(t *testing.T) {
	config := testAuthConfig()
	userID := uuid.New()

	tokenString, err := SignJWT(config, userID, "alice", models.RoleUser)
	require.NoError(t, err)

	claims, err := ParseAndValidateJWT(tokenString, config)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, config.Issuer, claims.Issuer)

	parsedID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsedID)
}

func TestJWT_RejectsInvalidTokens(t *testing.T) {
	config := testAuthConfig()
	userID := uuid.New()

	t.Run("簽章金鑰不符", func(t *testing.T) {
		tokenString, err := SignJWT(config, userID, "alice", models.RoleUser)
		require.NoError(t, err)

		wrongSecret := config
		wrongSecret.Secret = "another-secret"
		_, err = ParseAndValidateJWT(tokenString, wrongSecret)
		assert.Error(t, err)
	})

	t.Run("簽發者不符", func(t *testing.T) {
		other := config
		other.Issuer = "someone-else"
		tokenString, err := SignJWT(other, userID, "alice", models.RoleUser)
		require.NoError(t, err)

		_, err = ParseAndValidateJWT(tokenString, config)
		assert.Error(t, err)
	})

	t.Run("受眾不符", func(t *testing.T) {
		other := config
		other.Audience = "someone-else"
		tokenString, err := SignJWT(other, userID, "alice", models.RoleUser)
		require.NoError(t, err)

		_, err = ParseAndValidateJWT(tokenString, config)
		assert.Error(t, err)
	})

	t.Run("token已過期", func(t *testing.T) {
		expired := config
		expired.ExpireDuration = -time.Hour
		tokenString, err := SignJWT(expired, userID, "alice", models.RoleUser)
		require.NoError(t, err)

		_, err = ParseAndValidateJWT(tokenString, config)
		assert.Error(t, err)
	})

	t.Run("不是token的字串", func(t *testing.T) {
		_, err := ParseAndValidateJWT("not-a-token", config)
		assert.Error(t, err)
	})
}

func TestJWT_AdminRoleRoundTrip(t *testing.T) {
	config := testAuthConfig()

	tokenString, err := SignJWT(config, uuid.New(), "root", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := ParseAndValidateJWT(tokenString, config)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}
