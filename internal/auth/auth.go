// Package auth turns HS256 bearer tokens into a domain.Actor stored on the
// request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/respond"
)

const RoleAdmin = "admin"

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return actor, ok
}

// NewToken signs a token for the actor that expires after ttl.
func NewToken(secret []byte, actor domain.Actor, ttl time.Duration) (string, error) {
	role := ""
	if actor.IsAdmin {
		role = RoleAdmin
	}
	now := time.Now()
	claims := Claims{
		UserID: actor.UserID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse validates a signed token and returns the actor it names.
func Parse(secret []byte, token string) (domain.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, err
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return domain.Actor{}, errors.New("token has no user id")
	}

	return domain.Actor{UserID: userID, IsAdmin: claims.Role == RoleAdmin}, nil
}

// Middleware rejects requests without a valid bearer token.
func Middleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logging.FromContext(r.Context(), logger)

			token, err := bearerToken(r)
			if err != nil {
				respond.Message(w, log, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			actor, err := Parse(secret, token)
			if err != nil {
				log.Info("rejected bearer token", zap.Error(err))
				respond.Message(w, log, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := ContextWithActor(r.Context(), actor)
			ctx = logging.ContextWithLogger(ctx, log.With(zap.String("user_id", actor.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !actor.IsAdmin {
				respond.Error(w, logging.FromContext(r.Context(), logger), domain.Errorf(domain.KindForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("authorization header must be %q", "Bearer <token>")
	}
	return strings.TrimSpace(token), nil
}
