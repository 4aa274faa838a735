package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/examgen/internal/model"
)

const tokenIssuer = "examgen"

// DefaultTokenTTL is the lifetime of issued tokens when none is given.
const DefaultTokenTTL = 8 * time.Hour

// Claims are the JWT claims identifying an actor. The subject is the
// actor ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and verifies HS256 actor tokens.
type Auth struct {
	hmac []byte
	now  func() time.Time
}

// NewAuth returns an Auth signing with secret.
func NewAuth(secret string) (*Auth, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Auth{hmac: []byte(secret), now: time.Now}, nil
}

// IssueToken signs a token for the actor valid for ttl.
func (a *Auth) IssueToken(actor model.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", errors.New("actor ID is required")
	}
	now := a.now()
	claims := &Claims{
		Email: strings.ToLower(strings.TrimSpace(actor.Email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

// Parse verifies a token and returns the actor it names.
func (a *Auth) Parse(tokenStr string) (model.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return model.Actor{}, err
	}
	if !token.Valid {
		return model.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return model.Actor{}, fmt.Errorf("token has no subject")
	}
	return model.Actor{ID: claims.Subject, Email: claims.Email}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// actor in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized", "")
			return
		}
		actor, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			slog.Debug("rejected token", "error", err)
			writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized", "")
			return
		}
		ctx := model.ContextWithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
