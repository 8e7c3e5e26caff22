package auth

import (
	"testing"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestJWTService() *JWTService {
	return NewJWTService(testSecret, 15*time.Minute)
}

func TestJWTService_GenerateAccessToken_Success(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateAccessToken(actor.Customer{UserID: "asha@example.com"})

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
	assert.Equal(t, 15*time.Minute, service.AccessTokenExpiry())
}

func TestJWTService_RoundTripPrincipals(t *testing.T) {
	service := newTestJWTService()

	for _, p := range []actor.Principal{
		actor.Customer{UserID: "asha@example.com"},
		actor.Seller{UserID: "meena", StoreID: "spice-bazaar"},
		actor.Admin{UserID: "root"},
		actor.System{Name: "courier"},
	} {
		t.Run(p.Role(), func(t *testing.T) {
			token, _, err := service.GenerateAccessToken(p)
			require.NoError(t, err)

			claims, err := service.ValidateAccessToken(token)
			require.NoError(t, err)
			got, err := claims.Principal()
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestJWTService_ValidateAccessToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	claims, err := service.ValidateAccessToken("invalid.token.string")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_WrongSecret(t *testing.T) {
	token, _, err := NewJWTService("another-secret-key-of-enough-length", time.Minute).
		GenerateAccessToken(actor.Admin{UserID: "root"})
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	service := NewJWTService(testSecret, -time.Minute)
	token, _, err := service.GenerateAccessToken(actor.Customer{UserID: "asha@example.com"})
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_ValidateAccessToken_WrongAlgorithm(t *testing.T) {
	claims := Claims{
		UserID: "root",
		Role:   actor.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_Principal_SellerWithoutStore(t *testing.T) {
	c := &Claims{UserID: "meena", Role: actor.RoleSeller}

	_, err := c.Principal()

	assert.Error(t, err)
}
