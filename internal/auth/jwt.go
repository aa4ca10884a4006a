package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no token provided")

// Claims carries the user identity. Tokens issued by the account service
// put the user id in "sub"; older ones use "id".
type Claims struct {
	jwt.RegisteredClaims
	LegacyID string `json:"id,omitempty"`
}

func (c Claims) UserID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.LegacyID
}

func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 token and returns the user id it carries.
func ParseToken(secret, token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.UserID() == "" {
		return "", errors.New("token has no user id")
	}
	return claims.UserID(), nil
}

// FromRequest extracts a bearer token, falling back to the "token" query
// parameter used by browser websocket clients.
func FromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || tok == "" {
			return "", ErrNoToken
		}
		return tok, nil
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}

type ctxKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Authenticate resolves the user of r using secret.
func Authenticate(secret string) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		tok, err := FromRequest(r)
		if err != nil {
			return "", err
		}
		return ParseToken(secret, tok)
	}
}

// Middleware rejects requests without a valid token and stores the user id
// in the request context.
func Middleware(secret string, onError func(w http.ResponseWriter, status int, msg string)) func(http.Handler) http.Handler {
	authenticate := Authenticate(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(r)
			switch {
			case errors.Is(err, ErrNoToken):
				onError(w, http.StatusUnauthorized, "Access denied. No token provided.")
				return
			case errors.Is(err, jwt.ErrTokenExpired):
				onError(w, http.StatusUnauthorized, "Token has expired.")
				return
			case err != nil:
				onError(w, http.StatusUnauthorized, "Invalid token.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
