package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/account"
	"github.com/computer-anything/blog-backend/internal/alert"
	"github.com/computer-anything/blog-backend/internal/auth"
	"github.com/computer-anything/blog-backend/internal/blog"
	"github.com/computer-anything/blog-backend/internal/challenge"
	"github.com/computer-anything/blog-backend/internal/config"
	"github.com/computer-anything/blog-backend/internal/db"
	"github.com/computer-anything/blog-backend/internal/http/api/front"
	"github.com/computer-anything/blog-backend/internal/logging"
	"github.com/computer-anything/blog-backend/internal/logindetails"
	"github.com/computer-anything/blog-backend/internal/mail"
	"github.com/computer-anything/blog-backend/internal/ratelimit"
	"github.com/computer-anything/blog-backend/internal/security"
)

const (
	defaultPort     = 8318
	shutdownTimeout = 10 * time.Second
)

// ConfigExists reports whether the config file exists.
func ConfigExists(configPath string) bool {
	info, err := os.Stat(configPath)
	return err == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the blog API and serves until ctx is cancelled.
// A positive port overrides the configured one.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(settings.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	var redisClient *redis.Client
	if settings.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		if errPing := redisClient.Ping(pingCtx).Err(); errPing != nil {
			log.WithError(errPing).Warn("redis unreachable at startup, falling back to in-process state until it recovers")
		}
		cancelPing()
	} else {
		log.Warn("redis not configured, rate limits and alert markers are per process")
	}

	tokens, err := security.NewTokenAuthority(jwtConfig.Secret, jwtConfig.Expiry, jwtConfig.Issuer, nil)
	if err != nil {
		return err
	}
	sender, err := mail.NewSender(settings.Mail)
	if err != nil {
		return err
	}
	if smtpSender, ok := sender.(*mail.SMTPSender); ok {
		defer smtpSender.Close()
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		return err
	}
	mailer := mail.NewMailer(sender, renderer, settings.FrontendURL, settings.Mail.SendTimeout)

	locator, err := logindetails.NewLocator(settings.GeoIP.DatabasePath)
	if err != nil {
		return fmt.Errorf("open geoip database: %w", err)
	}
	defer func() { _ = locator.Close() }()

	var markers alert.MarkerStore
	if redisClient != nil {
		markers = alert.NewRedisMarkerStore(redisClient, settings.Redis.Prefix)
	} else {
		markers = alert.NewMemoryMarkerStore(nil)
	}
	dispatcher := alert.NewMailDispatcher(mailer, settings.Mail.AdminEmail)
	if !dispatcher.Configured() {
		log.Warn("admin email not configured, security alerts are disabled")
	}
	notifier := alert.NewNotifier(markers, dispatcher, alert.NewGormRecorder(conn), dispatcher.Configured(), nil)

	accounts := account.NewStore(conn)
	authService := auth.NewService(auth.Deps{
		Accounts:  accounts,
		Tokens:    tokens,
		Mailer:    mailer,
		Locator:   locator,
		Challenge: challenge.NewTurnstile(settings.Challenge, nil),
		Notifier:  notifier,
	})
	limiter := ratelimit.NewManager(ratelimit.LoadSettingsConfig(settings), redisClient, nil)

	if !strings.EqualFold(settings.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if errProxies := engine.SetTrustedProxies(settings.TrustedProxies); errProxies != nil {
		return fmt.Errorf("trusted proxies: %w", errProxies)
	}
	engine.Use(gin.Recovery())
	engine.Use(cors.New(corsConfig(settings)))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:       conn,
		Auth:     authService,
		Blog:     blog.NewService(conn),
		Accounts: accounts,
		Limiter:  limiter,
		Notifier: notifier,
		Cookie:   settings.Cookie,
	})

	NewResetTokenSweeper(accounts, defaultSweepInterval, nil).Start(ctx)

	if port <= 0 {
		port = settings.Port
	}
	if port <= 0 {
		port = defaultPort
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, server)
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("blog api listening on %s", server.Addr)
		if errListen := server.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	select {
	case errListen := <-errCh:
		return errListen
	case <-ctx.Done():
	}
	log.Info("shutting down blog api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

func corsConfig(settings config.Settings) cors.Config {
	origins := settings.CORSOrigins
	if len(origins) == 0 {
		origins = []string{config.DefaultSettings().FrontendURL}
		if settings.FrontendURL != "" {
			origins = []string{settings.FrontendURL}
		}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}
