package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusmart/backend/config"
	"github.com/campusmart/backend/controllers"
	"github.com/campusmart/backend/database"
	"github.com/campusmart/backend/logger"
	"github.com/campusmart/backend/mailer"
	"github.com/campusmart/backend/middleware"
	"github.com/campusmart/backend/router"
	"github.com/campusmart/backend/services"
	"github.com/campusmart/backend/store"
	"github.com/campusmart/backend/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log, err := logger.Setup(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger setup failed:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg); err != nil {
		zap.L().Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	users, closeStore, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	var revocations store.RevocationStore = store.NoopRevocationStore{}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		revocations = store.NewRedisRevocationStore(rdb)
	} else {
		zap.L().Warn("REDIS_ADDR not set: logout revocation disabled, rate limits are per process")
	}

	mail, closeMail := openMailer(ctx, cfg)
	defer closeMail()

	hasher := utils.NewPasswordHasher(cfg.BcryptCost)
	tokens := utils.NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	if cfg.AdminEmail != "" {
		if err := utils.SeedAdminUser(ctx, users, hasher, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	auth := services.NewAuthService(users, revocations, hasher, tokens, mail, services.Options{
		ResetTokenTTL: cfg.ResetTokenTTL,
		FrontendURL:   cfg.FrontendURL,
		VerifySubject: cfg.RefreshVerifySubject,
	})
	cookies := utils.NewCookieManager(cfg.CookieSecure, cfg.CookieDomain, cfg.RefreshTokenTTL)

	r := router.NewRouter(router.Deps{
		Config:  &cfg,
		Auth:    controllers.NewAuthController(auth, cookies, cfg.RequestTimeout),
		Tokens:  tokens,
		Limiter: middleware.NewRateLimiter(cfg.Rate, rdb),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("Server starting", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openUserStore(ctx context.Context, cfg config.Config) (store.UserStore, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		zap.L().Warn("Using in-memory user store, data is lost on restart")
		return store.NewMemoryUserStore(), func() {}, nil
	}

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }

	users := store.NewMongoUserStore(client.Database(cfg.DatabaseName))
	if err := users.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ensure user indexes: %w", err)
	}
	return users, closeFn, nil
}

func openMailer(ctx context.Context, cfg config.Config) (mailer.Mailer, func()) {
	smtp := func() mailer.Mailer {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
		})
	}

	switch cfg.Mail.Transport {
	case config.MailSMTP:
		return smtp(), func() {}
	case config.MailQueue:
		q := mailer.NewQueueMailer(cfg.Mail.AMQPURL, cfg.Mail.Queue)
		if cfg.Mail.ConsumerEnabled {
			consumer := mailer.NewConsumer(cfg.Mail.AMQPURL, cfg.Mail.Queue, smtp())
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zap.L().Error("Mail consumer stopped", zap.Error(err))
				}
			}()
		}
		return q, func() { _ = q.Close() }
	default:
		return mailer.NewLogMailer(), func() {}
	}
}
