package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrAdminTokenInvalid signals that the admin bearer token failed validation.
	ErrAdminTokenInvalid = errors.New("auth: admin token invalid")
	// ErrAdminRoleRequired signals that the token is valid but lacks the admin role.
	ErrAdminRoleRequired = errors.New("auth: admin role required")
)

// AdminClaims carries the payload of HMAC-signed staff tokens.
type AdminClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AdminGuard issues and verifies HMAC-signed staff tokens for back-office routes.
type AdminGuard struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// AdminGuardOption customises AdminGuard behaviour.
type AdminGuardOption func(*AdminGuard)

// WithAdminTokenTTL overrides the issued token lifetime.
func WithAdminTokenTTL(ttl time.Duration) AdminGuardOption {
	return func(g *AdminGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithAdminClock overrides the time source, primarily for tests.
func WithAdminClock(now func() time.Time) AdminGuardOption {
	return func(g *AdminGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewAdminGuard constructs an AdminGuard from the shared signing secret.
func NewAdminGuard(secret string, opts ...AdminGuardOption) (*AdminGuard, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: admin jwt secret is required")
	}
	guard := &AdminGuard{
		secret: []byte(secret),
		ttl:    time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(guard)
		}
	}
	return guard, nil
}

// IssueToken mints a signed staff token for the given subject.
func (g *AdminGuard) IssueToken(uid, email string) (string, error) {
	if g == nil {
		return "", errors.New("auth: admin guard not initialised")
	}
	now := g.now()
	claims := AdminClaims{
		Email: strings.TrimSpace(email),
		Role:  RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(uid),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign admin token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and role on the supplied token string.
func (g *AdminGuard) VerifyToken(tokenStr string) (*AdminClaims, error) {
	if g == nil {
		return nil, ErrAdminTokenInvalid
	}

	// Claims validation is done by hand below so the guard's clock applies.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &AdminClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdminTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrAdminTokenInvalid
	}
	now := g.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, fmt.Errorf("%w: token expired", ErrAdminTokenInvalid)
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrAdminTokenInvalid)
	}
	if !strings.EqualFold(claims.Role, RoleAdmin) {
		return nil, ErrAdminRoleRequired
	}
	return claims, nil
}

// RequireAdmin guards back-office routes behind a valid staff token.
func (g *AdminGuard) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			claims, err := g.VerifyToken(tokenStr)
			if err != nil {
				if errors.Is(err, ErrAdminRoleRequired) {
					respondAuthError(w, http.StatusForbidden, "forbidden", "admin role required")
					return
				}
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "admin token verification failed")
				return
			}

			identity := &Identity{
				UID:   claims.Subject,
				Email: claims.Email,
				Roles: []string{RoleAdmin},
			}
			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
