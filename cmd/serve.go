package cmd

import (
	"context"
	"database/sql"
	"net"

	"github.com/vibast-solutions/ms-go-user/app/controller"
	"github.com/vibast-solutions/ms-go-user/app/middleware"
	"github.com/vibast-solutions/ms-go-user/app/repository"
	"github.com/vibast-solutions/ms-go-user/app/service"
	"github.com/vibast-solutions/ms-go-user/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server for the user account service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	uploader, err := service.NewS3MediaUploader(context.Background(), cfg.Media)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure media uploader")
	}

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	tokenService := service.NewTokenService(cfg)
	sessionService := service.NewSessionService(userRepo, tokenService, uploader)
	profileService := service.NewProfileService(userRepo, subRepo, uploader)

	startHTTPServer(cfg, userRepo, tokenService, sessionService, profileService)
}

func startHTTPServer(
	cfg *config.Config,
	userRepo *repository.UserRepository,
	tokenService *service.TokenService,
	sessionService *service.SessionService,
	profileService *service.ProfileService,
) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	userController := controller.NewUserController(sessionService, profileService, cfg)
	authMiddleware := middleware.NewAuthMiddleware(tokenService, userRepo)

	users := e.Group("/api/v1/users")
	users.POST("/register", userController.Register)
	users.POST("/login", userController.Login)
	users.POST("/refresh-token", userController.RefreshToken)

	usersProtected := users.Group("")
	usersProtected.Use(authMiddleware.RequireAuth)
	usersProtected.POST("/logout", userController.Logout)
	usersProtected.POST("/change-password", userController.ChangePassword)
	usersProtected.GET("/me", userController.CurrentUser)
	usersProtected.PATCH("/update-details", userController.UpdateDetails)
	usersProtected.PATCH("/avatar", userController.UpdateAvatar)
	usersProtected.PATCH("/cover-image", userController.UpdateCoverImage)
	usersProtected.GET("/channel/:username", userController.ChannelProfile)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
