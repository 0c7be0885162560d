package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const (
	principalKey = "auth_principal"

	// AccessTokenCookie is read when no Authorization header is sent.
	AccessTokenCookie = "access_token"
)

// AuthMiddleware validates provider tokens and attaches the caller's Principal.
type AuthMiddleware struct {
	tokens   *TokenVerifier
	profiles repository.ProfileRepository
}

// NewAuthMiddleware constructs middleware. profiles may be nil, in which case callers
// without a role claim are treated as regular users.
func NewAuthMiddleware(tokens *TokenVerifier, profiles repository.ProfileRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, profiles: profiles}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &domain.Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   m.tokens.ResolveRole(claims),
	}

	if m.profiles != nil {
		profile := &domain.Profile{ID: principal.UserID, Email: principal.Email, Role: principal.Role}
		if profile.Role == "" {
			profile.Role = domain.RoleUser
		}
		if err := m.profiles.Upsert(c.UserContext(), profile); err != nil {
			return apperrors.MapError(err)
		}
		if principal.Role == "" {
			principal.Role = profile.Role
		}
	}
	if principal.Role == "" {
		principal.Role = domain.RoleUser
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if cookie := c.Cookies(AccessTokenCookie); cookie != "" {
			return cookie, nil
		}
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}
