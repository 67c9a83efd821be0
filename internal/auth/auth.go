package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/sven3270350/Home-Entergy-Test/pkg/errors"
)

// ErrInvalidToken is the only failure Verify reports. Signature problems,
// malformed claim sets, missing subjects and expired tokens are deliberately
// indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the decoded claim set of an access token. The subject is the
// account email; UserID and FullName are optional extras carried by the
// issuing service.
type Claims struct {
	UserID   int64  `json:"user_id,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Verify checks the token's HMAC signature and expiry against the shared
// signing secret. It performs no I/O and never calls back to the issuer, so a
// token stays valid until its expiry even if the issuing account is gone.
func Verify(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKeyType struct{}

var claimsKey claimsKeyType

// Middleware authenticates every request with Verify and stores the claims in
// the request context. Requests without a valid bearer token never reach the
// wrapped handler.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractToken(r)
			if tokenStr == "" {
				apperrors.WriteError(w, apperrors.Unauthorized("missing token"))
				return
			}
			claims, err := Verify(secret, tokenStr)
			if err != nil {
				apperrors.WriteError(w, apperrors.Unauthorized("could not validate credentials"))
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	// Try Authorization header first
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}

	// Try query parameter for WebSocket connections
	return r.URL.Query().Get("token")
}

// GetClaims returns the claims stored by Middleware, or nil when the request
// was not authenticated.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}
