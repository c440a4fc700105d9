package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"provchain/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	// IdentityKey carries the authenticated caller identity.
	IdentityKey contextKey = "caller_identity"
)

// AuthMiddleware validates bearer tokens and extracts the caller identity
// from the subject claim. The registry trusts the identity verbatim; role
// membership is decided against live state, never from token claims.
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug("Invalid authorization header format")
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					respondWithError(w, http.StatusUnauthorized, "token expired")
				} else {
					respondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}

			if !token.Valid {
				logger.Debug("Invalid token")
				respondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || strings.TrimSpace(subject) == "" {
				logger.Error("Missing subject in token claims", zap.Error(err))
				respondWithError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			identity := domain.Identity(subject)
			ctx := context.WithValue(r.Context(), IdentityKey, identity)

			logger.Debug("Caller authenticated",
				zap.String("identity", identity.String()),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the caller identity from the request context.
func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}
