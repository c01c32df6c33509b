package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-user/app/apperr"
	httpdto "github.com/vibast-solutions/ms-go-user/app/dto/http"
	"github.com/vibast-solutions/ms-go-user/app/entity"
	"github.com/vibast-solutions/ms-go-user/app/service"
	"github.com/vibast-solutions/ms-go-user/config"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type UserController struct {
	sessions *service.SessionService
	profiles *service.ProfileService
	cfg      *config.Config
}

func NewUserController(sessions *service.SessionService, profiles *service.ProfileService, cfg *config.Config) *UserController {
	return &UserController{sessions: sessions, profiles: profiles, cfg: cfg}
}

func (c *UserController) Register(ctx echo.Context) error {
	in := service.RegisterInput{
		FullName: ctx.FormValue("fullName"),
		Email:    ctx.FormValue("email"),
		Username: ctx.FormValue("username"),
		Password: ctx.FormValue("password"),
	}

	avatar, closeAvatar, err := formMediaFile(ctx, "avatar")
	if err != nil {
		return respondError(ctx, apperr.Validation("avatar file is required"))
	}
	if closeAvatar != nil {
		defer closeAvatar()
	}
	in.Avatar = avatar

	cover, closeCover, err := formMediaFile(ctx, "coverImage")
	if err == nil && closeCover != nil {
		defer closeCover()
		in.CoverImage = cover
	}

	logrus.WithField("username", in.Username).Info("Register request received")
	user, err := c.sessions.Register(ctx.Request().Context(), in)
	if err != nil {
		return respondError(ctx, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")
	return ctx.JSON(http.StatusCreated, httpdto.OK(http.StatusCreated, httpdto.NewUserResponse(user), "user registered successfully"))
}

func (c *UserController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, apperr.Validation("invalid request body"))
	}

	logrus.WithField("username", req.Username).Info("Login request received")
	result, err := c.sessions.Login(ctx.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return respondError(ctx, err)
	}

	c.setAuthCookies(ctx, result.TokenPair)

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.LoginResponse{
		User:         httpdto.NewUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, "user logged in successfully"))
}

// RefreshToken accepts the refresh token from the cookie or from an
// equivalent body field.
func (c *UserController) RefreshToken(ctx echo.Context) error {
	presented := ""
	if cookie, err := ctx.Cookie(refreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req httpdto.RefreshTokenRequest
		if err := ctx.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	pair, err := c.sessions.Refresh(ctx.Request().Context(), presented)
	if err != nil {
		return respondError(ctx, err)
	}

	c.setAuthCookies(ctx, *pair)

	logrus.Info("Refresh token rotated")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed"))
}

func (c *UserController) Logout(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	if err := c.sessions.Logout(ctx.Request().Context(), user.ID); err != nil {
		return respondError(ctx, err)
	}

	c.clearAuthCookies(ctx)

	logrus.WithField("user_id", user.ID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "user logged out successfully"))
}

func (c *UserController) ChangePassword(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	var req httpdto.ChangePasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, apperr.Validation("invalid request body"))
	}

	if err := c.sessions.ChangePassword(ctx.Request().Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", user.ID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, nil, "password changed successfully"))
}

func (c *UserController) CurrentUser(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewUserResponse(user), "current user fetched successfully"))
}

func (c *UserController) UpdateDetails(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	var req httpdto.UpdateDetailsRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, apperr.Validation("invalid request body"))
	}

	updated, err := c.profiles.UpdateDetails(ctx.Request().Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", user.ID).Info("Account details updated")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewUserResponse(updated), "account details updated successfully"))
}

func (c *UserController) UpdateAvatar(ctx echo.Context) error {
	return c.updateMedia(ctx, "avatar", c.profiles.UpdateAvatar, "avatar updated successfully")
}

func (c *UserController) UpdateCoverImage(ctx echo.Context) error {
	return c.updateMedia(ctx, "coverImage", c.profiles.UpdateCoverImage, "cover image updated successfully")
}

func (c *UserController) ChannelProfile(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	profile, err := c.profiles.GetChannelProfile(ctx.Request().Context(), ctx.Param("username"), user.ID)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewChannelProfileResponse(profile), "channel profile fetched successfully"))
}

func (c *UserController) updateMedia(ctx echo.Context, field string, update func(ctx context.Context, userID uint64, file *service.MediaFile) (*entity.User, error), message string) error {
	user, err := currentUser(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	file, closeFile, err := formMediaFile(ctx, field)
	if err != nil {
		return respondError(ctx, apperr.Validation(field+" file is required"))
	}
	defer closeFile()

	updated, err := update(ctx.Request().Context(), user.ID, file)
	if err != nil {
		return respondError(ctx, err)
	}

	logrus.WithField("user_id", user.ID).Info("Media updated")
	return ctx.JSON(http.StatusOK, httpdto.OK(http.StatusOK, httpdto.NewUserResponse(updated), message))
}

func currentUser(ctx echo.Context) (*entity.User, error) {
	user, ok := ctx.Get("user").(*entity.User)
	if !ok || user == nil {
		return nil, apperr.Auth("unauthorized request")
	}
	return user, nil
}

// formMediaFile opens the named multipart file. The returned close func is
// nil when the part is absent.
func formMediaFile(ctx echo.Context, field string) (*service.MediaFile, func(), error) {
	header, err := ctx.FormFile(field)
	if err != nil {
		return nil, nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}

	return &service.MediaFile{Reader: file, Filename: header.Filename}, func() { _ = file.Close() }, nil
}

// respondError is the boundary adapter: it maps the error taxonomy onto the
// uniform failure envelope and keeps internal detail out of the response.
func respondError(ctx echo.Context, err error) error {
	status := apperr.StatusOf(err)
	message := apperr.MessageOf(err)

	entry := logrus.WithFields(logrus.Fields{
		"status": status,
		"path":   ctx.Path(),
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.Warn(message)
	}

	return ctx.JSON(status, httpdto.Err(status, message))
}

func (c *UserController) setAuthCookies(ctx echo.Context, pair service.TokenPair) {
	ctx.SetCookie(c.sessionCookie(accessTokenCookie, pair.AccessToken, c.cfg.AccessTokenTTL))
	ctx.SetCookie(c.sessionCookie(refreshTokenCookie, pair.RefreshToken, c.cfg.RefreshTokenTTL))
}

func (c *UserController) clearAuthCookies(ctx echo.Context) {
	ctx.SetCookie(c.sessionCookie(accessTokenCookie, "", -time.Hour))
	ctx.SetCookie(c.sessionCookie(refreshTokenCookie, "", -time.Hour))
}

func (c *UserController) sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
