package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// AppMetadata is the provider-controlled part of the token.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// Claims describes the JWT payload minted by the hosted auth provider.
type Claims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// RoleClaim prefers app_metadata.role over the top-level role claim.
func (c *Claims) RoleClaim() string {
	if role := strings.TrimSpace(c.AppMetadata.Role); role != "" {
		return role
	}
	return strings.TrimSpace(c.Role)
}

// TokenVerifier validates provider tokens and, for tests and tooling, signs new ones.
type TokenVerifier struct {
	secret    []byte
	issuer    string
	adminRole string
	ttl       time.Duration
}

// NewTokenVerifier builds a verifier. An empty issuer disables the issuer check.
func NewTokenVerifier(secret, issuer, adminRole string, ttlMinutes int) *TokenVerifier {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	if adminRole == "" {
		adminRole = string(domain.RoleAdmin)
	}
	return &TokenVerifier{
		secret:    []byte(secret),
		issuer:    issuer,
		adminRole: adminRole,
		ttl:       time.Duration(ttlMinutes) * time.Minute,
	}
}

// Issue signs a token with the same claim shape the provider uses.
func (v *TokenVerifier) Issue(subject, email string, role domain.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(v.ttl)

	var meta AppMetadata
	if role == domain.RoleAdmin {
		meta.Role = v.adminRole
	} else if role != "" {
		meta.Role = string(role)
	}

	claims := &Claims{
		Email:       email,
		Role:        "authenticated",
		AppMetadata: meta,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates signature, expiry and issuer and returns the claims.
func (v *TokenVerifier) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// ResolveRole maps the role claim onto an application role. It returns "" when the
// claim does not name one, so the caller can fall back to the stored profile.
func (v *TokenVerifier) ResolveRole(claims *Claims) domain.Role {
	switch claim := claims.RoleClaim(); {
	case strings.EqualFold(claim, v.adminRole):
		return domain.RoleAdmin
	case strings.EqualFold(claim, string(domain.RoleUser)):
		return domain.RoleUser
	default:
		return ""
	}
}
