package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"sidehustlers/internal/auth"
	"sidehustlers/internal/config"
	"sidehustlers/internal/database"
	"sidehustlers/internal/handlers"
	"sidehustlers/internal/identity"
	"sidehustlers/internal/jobs"
	"sidehustlers/internal/logger"
	"sidehustlers/internal/metrics"
	"sidehustlers/internal/middleware"
	"sidehustlers/internal/profile"
	"sidehustlers/internal/session"
)

func main() {
	config.Load()
	cfg := config.AppEnv

	log := logger.New(logger.ForEnvironment(cfg.AppEnv, cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal("mongo connection failed", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.DBName)
	log.Info("mongo connected", zap.String("database", db.Name()))

	if err := database.EnsureIndexes(db, log.Named("indexes")); err != nil {
		log.Warn("index setup incomplete", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(registry)

	// profiles
	var profileStore profile.Store = profile.NewMongoStore(db)
	var authOpts []auth.Option
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer rdb.Close()

		cached := profile.NewCachedStore(profileStore, rdb, cfg.ProfileCacheTTL, log.Named("profile-cache"))
		profileStore = cached
		authOpts = append(authOpts, auth.WithProfileCache(cached))
		log.Info("profile cache enabled", zap.String("addr", cfg.RedisAddr))
	}
	profiles := profile.NewService(profileStore, log.Named("profile"))

	// identity
	var (
		provider identity.Provider
		verifier identity.TokenVerifier
	)
	switch cfg.IdentityProvider {
	case config.IdentityProviderLocal:
		local := identity.LocalConfig{
			Secret:          cfg.JWTSecret,
			IDTokenTTL:      cfg.IDTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		}
		if cfg.GoogleEnabled() {
			local.GoogleVerifier = identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
		}
		lp := identity.NewLocalProvider(identity.NewMongoCredentialStore(db), local, log.Named("identity"))
		provider, verifier = lp, lp
	default:
		provider = identity.NewFirebaseProvider(identity.FirebaseConfig{
			APIKey:     cfg.FirebaseAPIKey,
			RequestURI: cfg.GoogleRedirectURL,
		}, log.Named("identity"))
		verifier = identity.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
	}
	log.Info("identity provider ready", zap.String("provider", cfg.IdentityProvider))

	cachingVerifier, err := identity.NewCachingVerifier(verifier, int64(cfg.VerifiedTokenCache))
	if err != nil {
		log.Fatal("token cache setup failed", zap.Error(err))
	}
	defer cachingVerifier.Close()

	authOpts = append(authOpts, auth.WithMetrics(rec))
	if cfg.GoogleEnabled() {
		authOpts = append(authOpts, auth.WithGoogleRedirect(identity.NewGoogleOAuth(ctx, identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})))
	}
	authService := auth.NewService(provider, profiles, log.Named("auth"), authOpts...)

	sessions := session.NewRegistry(provider, authService, profiles, log.Named("session"), session.RegistryConfig{
		IdleTTL:         cfg.SessionIdleTTL,
		RefreshInterval: cfg.TokenRefreshInterval,
		Metrics:         rec,
	})
	defer sessions.Close()

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer limiter.Stop()

	r := handlers.NewRouter(handlers.Dependencies{
		Registry: sessions,
		Auth:     authService,
		Profiles: profiles,
		Jobs:     jobs.NewService(jobs.NewMongoStore(db), log.Named("jobs")),
		Verifier: cachingVerifier,
		Cookie: handlers.CookieConfig{
			MaxAge: cfg.SessionCookieMaxAge,
			Secure: cfg.IsProduction(),
		},
		RateLimiter:    limiter,
		Metrics:        rec,
		MetricsHandler: metrics.Handler(registry),
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
