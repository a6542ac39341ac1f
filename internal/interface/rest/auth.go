package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sustainflow-service/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims are the JWT claims issued by the SustainFlow auth service
type Claims struct {
	jwt.RegisteredClaims
	Role entity.Role `json:"role"`
}

// JWTValidator verifies HS256 bearer tokens
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses tokenStr and returns the actor it identifies
func (v *JWTValidator) Validate(tokenStr string) (entity.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Actor{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return entity.Actor{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return entity.Actor{}, fmt.Errorf("token subject is required")
	}
	if !claims.Role.Valid() {
		return entity.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return entity.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Sign issues a token for actor. Used by tooling and tests.
func (v *JWTValidator) Sign(actor entity.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: actor.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token and stores the actor in the context
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized(w, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
			return
		}

		actor, err := v.Validate(parts[1])
		if err != nil {
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns a copy of ctx carrying actor
func WithActor(ctx context.Context, actor entity.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the authenticated actor of the request
func ActorFromContext(ctx context.Context) (entity.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(entity.Actor)
	return actor, ok
}
