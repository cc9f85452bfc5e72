package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbrodhuber/Submit-and-Review/internal/metrics"
	"github.com/mbrodhuber/Submit-and-Review/internal/ratelimit"
	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/app"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/config"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	presignTTL, err := config.ParsePresignTTL(cfg.PresignTTL)
	if err != nil {
		log.Fatalf("failed to parse presign TTL: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	verifyKeys, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse jwt verify keys: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	m := metrics.New()

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		RedisAddr:           cfg.RedisAddr,
		RedisPassword:       cfg.RedisPassword,
		SessionTTL:          sessionTTL,
		JWTPrivateKeyPath:   cfg.JWTPrivateKeyPath,
		JWTKeyID:            cfg.JWTKeyID,
		JWTVerifyPublicKeys: verifyKeys,
		JWTIssuer:           cfg.JWTIssuer,
		JWTAudience:         cfg.JWTAudience,
		JWTLeeway:           jwtLeeway,
		MinioEndpoint:       cfg.MinioEndpoint,
		MinioAccessKey:      cfg.MinioAccessKey,
		MinioSecretKey:      cfg.MinioSecretKey,
		MinioBucket:         cfg.MinioBucket,
		MinioUseSSL:         cfg.MinioUseSSL,
		StorageDir:          cfg.StorageDir,
		PresignTTL:          presignTTL,
		Metrics:             m,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	if cfg.BootstrapAdminEmail != "" {
		if err := appCore.EnsureAdmin(cfg.BootstrapAdminEmail); err != nil {
			logger.Warn("bootstrap admin not applied", "email", cfg.BootstrapAdminEmail, "err", err)
		} else {
			logger.Info("bootstrap admin ensured", "email", cfg.BootstrapAdminEmail)
		}
	}

	loginLimiter := newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute)
	signupLimiter := newLimiter(cfg, "signup", cfg.SignupRateLimitPerMinute)
	defer loginLimiter.Close()
	defer signupLimiter.Close()

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Metrics:        m,
		LoginLimiter:   loginLimiter,
		SignupLimiter:  signupLimiter,
		TrustedProxies: cfg.TrustedProxies,
		CORSOrigins:    cfg.CORSOrigins,
		CookieSecure:   cfg.CookieSecure,
		SessionTTL:     sessionTTL,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("portal server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLimiter returns nil when limit is 0, which disables limiting for that flow.
func newLimiter(cfg config.FileConfig, name string, limit int) *ratelimit.FixedWindowLimiter {
	if limit <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", limit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init %s limiter: %v", name, err)
	}
	return limiter
}
