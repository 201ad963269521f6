// Package auth issues and checks the bearer tokens that bind a client to one
// trip planning session.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session tokens are HS256 JWTs whose subject is the trip ID. A token is
// only accepted on routes for that trip, and it lives as long as an idle
// session is kept, so a client holding an expired token has also lost the
// session it pointed to.

// DefaultSessionTokenExpiry matches the default idle TTL of trip sessions.
const DefaultSessionTokenExpiry = 2 * time.Hour

// Token errors.
var (
	ErrInvalidSessionToken = errors.New("invalid session token")
	ErrSessionTokenExpired = errors.New("session token has expired")
	ErrTripMismatch        = errors.New("session token is not valid for this trip")
)

// SessionClaims are the claims of a trip session token.
type SessionClaims struct {
	jwt.RegisteredClaims

	// TripID is the session the bearer may act on.
	TripID string `json:"tid"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim (e.g. "https://api.evroute.app").
	Issuer string

	// Audience is the audience claim (e.g. "evroute-api").
	Audience string

	// Expiry defaults to DefaultSessionTokenExpiry.
	Expiry time.Duration
}

// JWTService signs and validates session tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultSessionTokenExpiry
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        time.Now,
	}
}

// GenerateSessionToken signs a token for tripID.
func (s *JWTService) GenerateSessionToken(tripID string) (string, time.Time, error) {
	if tripID == "" {
		return "", time.Time{}, errors.New("trip id is required")
	}
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   tripID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		TripID: tripID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateSessionToken checks the signature and standard claims.
func (s *JWTService) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidSessionToken, err.Error())
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.TripID == "" || claims.TripID != claims.Subject {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}

// Authorize validates tokenString and checks that it was issued for tripID.
func (s *JWTService) Authorize(tokenString, tripID string) (*SessionClaims, error) {
	claims, err := s.ValidateSessionToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TripID != tripID {
		return nil, ErrTripMismatch
	}
	return claims, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
