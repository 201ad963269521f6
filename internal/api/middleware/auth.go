package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evroute/evroute/internal/api/models"
	"github.com/evroute/evroute/internal/auth"
)

// TripIDParam is the route parameter that names the trip session.
const TripIDParam = "tripId"

// tripIDKey is the context key for the authorized trip ID.
type tripIDKey struct{}

// SessionAuth validates the bearer token and checks that it was issued for
// the trip named in the route. It must be mounted below a route that
// declares {tripId}.
func SessionAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, detail := bearerToken(r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			tripID := chi.URLParam(r, TripIDParam)
			claims, err := jwtService.Authorize(tokenString, tripID)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrSessionTokenExpired):
					writeUnauthorized(w, r, "session token has expired")
				case errors.Is(err, auth.ErrTripMismatch):
					writeForbidden(w, r, "session token is not valid for this trip")
				case errors.Is(err, auth.ErrInvalidSessionToken):
					writeUnauthorized(w, r, "invalid session token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), tripIDKey{}, claims.TripID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. A non-empty
// detail describes why the header was rejected.
func bearerToken(r *http.Request) (token, detail string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	// Case-insensitive scheme
	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	token = authHeader[len(bearerPrefix):]
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewForbidden(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetTripID retrieves the authorized trip ID from the context.
// Returns an empty string if the request was not authorized.
func GetTripID(ctx context.Context) string {
	if id, ok := ctx.Value(tripIDKey{}).(string); ok {
		return id
	}
	return ""
}
