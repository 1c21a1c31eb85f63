// Package auth resolves the caller of a request to a user id and role.
//
// Token issuance belongs to the identity service; this package only verifies
// HS256 bearer tokens minted with the shared secret.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

type Role string

const (
	RolePlayer    Role = "player"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var (
	ErrUnauthenticated = apperr.New(apperr.KindUnauthenticated, "UNAUTHENTICATED", "missing or invalid token")
	ErrForbidden       = apperr.Forbidden("FORBIDDEN", "caller lacks the required role")
)

type Caller struct {
	UserID string
	Role   Role
}

// CanModerate reports whether the caller may review results.
func (c Caller) CanModerate() bool { return c.Role == RoleModerator || c.Role == RoleAdmin }

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier { return &Verifier{secret: []byte(secret)} }

func (v *Verifier) Verify(token string) (Caller, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Caller{}, ErrUnauthenticated
	}
	cl, ok := tok.Claims.(*claims)
	if !ok || cl.Subject == "" {
		return Caller{}, ErrUnauthenticated
	}
	role := Role(cl.Role)
	switch role {
	case RolePlayer, RoleModerator, RoleAdmin:
	case "":
		role = RolePlayer
	default:
		return Caller{}, ErrUnauthenticated
	}
	return Caller{UserID: cl.Subject, Role: role}, nil
}

// Issue mints a token. Used by tests and local tooling.
func (v *Verifier) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(v.secret)
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// TokenFromRequest reads the bearer token, falling back to the "token" query
// parameter because browsers cannot set headers on websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
