package security

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"galileo-chat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the access-token claims minted by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// subject prefers the explicit user_id claim over sub.
func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// TokenValidator checks HS256 access tokens signed with a secret shared with
// the identity service. It implements domain.IdentityResolver.
type TokenValidator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Validate parses and verifies a token.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.subject() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve maps a token to an identity. Any failure yields the anonymous
// identity.
func (v *TokenValidator) Resolve(_ context.Context, token string) domain.Identity {
	if token == "" {
		return domain.Identity{}
	}
	claims, err := v.Validate(token)
	if err != nil {
		return domain.Identity{}
	}
	return domain.Identity{
		UserID:   claims.subject(),
		Email:    claims.Email,
		Username: claims.Username,
	}
}

// Sign mints a token for the identity. The chat server never issues tokens
// itself; this exists for tooling and tests that stand in for the identity
// service.
func (v *TokenValidator) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   id.UserID,
		Email:    id.Email,
		Username: id.Username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest reads the access token from the token query parameter or,
// failing that, a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return BearerToken(r)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
