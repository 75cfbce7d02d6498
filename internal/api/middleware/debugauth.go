package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// operatorContextKey is the context key for the authenticated operator.
type operatorContextKey string

const operatorIDKey operatorContextKey = "operator"

// debugTokenTTL is the lifetime of a debug API bearer token.
const debugTokenTTL = 12 * time.Hour

// DebugClaims holds the JWT claims issued to an operator of the stats/debug API.
type DebugClaims struct {
	Operator string `json:"op"`
	jwt.RegisteredClaims
}

// GenerateDebugToken creates a signed JWT for an operator who has proven
// possession of the configured JWT secret.
func GenerateDebugToken(secret []byte, operator string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(debugTokenTTL)

	claims := DebugClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "neteqd",
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireDebugAuth returns middleware that validates JWT bearer tokens for
// the stats/debug API. On success it stores the operator name in context.
func RequireDebugAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeDebugAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeDebugAuthError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &DebugClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("debug auth: invalid jwt", "error", err)
				writeDebugAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.Operator == "" {
				writeDebugAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), operatorIDKey, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves the authenticated operator name from the
// request context. Returns "" if not set.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorIDKey).(string)
	return op
}

type debugAuthEnvelope struct {
	Error string `json:"error,omitempty"`
}

func writeDebugAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(debugAuthEnvelope{Error: msg}) //nolint:errcheck
}
