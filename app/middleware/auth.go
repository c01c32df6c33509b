package middleware

import (
	"context"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-user/app/dto/http"
	"github.com/vibast-solutions/ms-go-user/app/entity"
	"github.com/vibast-solutions/ms-go-user/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type accessTokenVerifier interface {
	VerifyAccessToken(tokenString string) (*service.AccessClaims, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
}

type AuthMiddleware struct {
	tokens accessTokenVerifier
	users  userLoader
}

func NewAuthMiddleware(tokens accessTokenVerifier, users userLoader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// RequireAuth resolves the caller from the access token, taken from the
// Authorization header or the accessToken cookie, and puts the loaded user
// on the request context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			logrus.Debug("Missing access token")
			return unauthorized(c, "unauthorized request")
		}

		claims, err := m.tokens.VerifyAccessToken(tokenString)
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return unauthorized(c, "invalid access token")
		}

		user, err := m.users.FindByID(c.Request().Context(), claims.UserID)
		if err != nil {
			logrus.WithError(err).Error("Failed to load user for access token")
			return c.JSON(http.StatusInternalServerError, httpdto.Err(http.StatusInternalServerError, "internal server error"))
		}
		if user == nil {
			logrus.WithField("user_id", claims.UserID).Debug("Access token references unknown user")
			return unauthorized(c, "invalid access token")
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)

		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, httpdto.Err(http.StatusUnauthorized, message))
}
