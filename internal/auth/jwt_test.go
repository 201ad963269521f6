package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evroute/evroute/internal/auth"
)

func newService(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: key, Issuer: issuer, Audience: audience})
}

func TestJWTService_GenerateAndValidateSessionToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", "https://api.evroute.app", "evroute-api")

	token, expiresAt, err := svc.GenerateSessionToken("trp_123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultSessionTokenExpiry), expiresAt, 5*time.Second)

	claims, err := svc.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "trp_123", claims.TripID)
	assert.Equal(t, "trp_123", claims.Subject)
	assert.Equal(t, "https://api.evroute.app", claims.Issuer)
}

func TestJWTService_Authorize(t *testing.T) {
	svc := newService("k", "iss", "aud")
	token, _, err := svc.GenerateSessionToken("trp_a")
	require.NoError(t, err)

	_, err = svc.Authorize(token, "trp_a")
	require.NoError(t, err)

	_, err = svc.Authorize(token, "trp_b")
	assert.ErrorIs(t, err, auth.ErrTripMismatch)
}

func TestJWTService_EmptyTripID(t *testing.T) {
	_, _, err := newService("k", "iss", "aud").GenerateSessionToken("")
	assert.Error(t, err)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", "iss", "aud")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateSessionToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidSessionToken)
		})
	}
}

func TestJWTService_Mismatches(t *testing.T) {
	token, _, err := newService("key-one", "iss", "aud").GenerateSessionToken("trp_1")
	require.NoError(t, err)

	tests := []struct {
		name string
		svc  *auth.JWTService
	}{
		{"wrong signing key", newService("key-two", "iss", "aud")},
		{"wrong issuer", newService("key-one", "other-iss", "aud")},
		{"wrong audience", newService("key-one", "iss", "other-aud")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.ValidateSessionToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidSessionToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	past := time.Now().Add(-3 * time.Hour)
	claims := auth.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "iss",
			Subject:   "trp_1",
			Audience:  jwt.ClaimStrings{"aud"},
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		TripID: "trp_1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = newService("k", "iss", "aud").ValidateSessionToken(token)
	assert.ErrorIs(t, err, auth.ErrSessionTokenExpired)
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	claims := auth.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "iss",
			Subject:   "trp_1",
			Audience:  jwt.ClaimStrings{"aud"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TripID: "trp_1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService("k", "iss", "aud").ValidateSessionToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidSessionToken)
}
