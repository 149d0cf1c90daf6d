package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// Context keys set by RequireAuth.
const (
	KeyUID     = "uid"
	KeyEmail   = "email"
	KeyName    = "name"
	KeyPicture = "picture"
	KeyRole    = "role"
)

// TokenVerifier is the part of the Firebase auth client used here.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier   TokenVerifier
	ownerEmail string
}

func NewAuthMiddleware(verifier TokenVerifier, ownerEmail string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, ownerEmail: strings.ToLower(strings.TrimSpace(ownerEmail))}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := bearer(c.Request())
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		email := claim(token, "email")
		c.Set(KeyUID, token.UID)
		c.Set(KeyEmail, email)
		c.Set(KeyName, claim(token, "name"))
		c.Set(KeyPicture, claim(token, "picture"))
		c.Set(KeyRole, m.roleFor(email))
		return next(c)
	}
}

func (m *AuthMiddleware) roleFor(email string) model.Role {
	if m.ownerEmail != "" && strings.EqualFold(email, m.ownerEmail) {
		return model.RoleOwner
	}
	return model.RoleCustomer
}

// bearer reads the Authorization header; websocket upgrades from browsers
// cannot set headers, so a token query parameter is accepted there.
func bearer(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func claim(t *auth.Token, key string) string {
	v, _ := t.Claims[key].(string)
	return v
}
