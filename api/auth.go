package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
)

// tokenCacheTTL bounds how long a validated token is trusted without re-parsing it.
const tokenCacheTTL = time.Minute

// Auth authenticates users with HS256 JWTs whose subject is the user id, and alert
// authors with a shared service token.
type Auth struct {
	authenticator auth.Authenticator
	secret        []byte
	serviceToken  string
}

// NewAuth sets up the bearer strategy over secret. An empty serviceToken disables the
// service routes.
func NewAuth(secret, serviceToken string) *Auth {
	a := &Auth{
		secret:       []byte(secret),
		serviceToken: serviceToken,
	}
	cache := store.NewFIFO(context.Background(), tokenCacheTTL)
	a.authenticator = auth.New()
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, bearer.New(a.validateToken, cache))
	return a
}

// IssueToken signs a token for userID valid for ttl.
func (a *Auth) IssueToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) validateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token, %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return auth.NewDefaultUser(claims.Subject, claims.Subject, nil, nil), nil
}

// Middleware rejects requests without a valid user token and stores the user id in the
// request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized", "url", r.URL, "error", err)
			unauthorized(w)
			return
		}
		zap.S().Debugw("user authenticated", "user_id", user.ID())
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID())))
	})
}

// ServiceMiddleware only lets through requests carrying the service token.
func (a *Auth) ServiceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if a.serviceToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.serviceToken)) != 1 {
			zap.S().Errorw("unauthorized service call", "url", r.URL)
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
}
