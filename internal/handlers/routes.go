package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/jobs"
	"sidehustlers/internal/logger"
	"sidehustlers/internal/metrics"
	"sidehustlers/internal/middleware"
	"sidehustlers/internal/models"
	"sidehustlers/internal/session"
)

type Dependencies struct {
	Registry    *session.Registry
	Auth        Authenticator
	Profiles    ProfileService
	Jobs        *jobs.Service
	Verifier    identity.TokenVerifier
	Cookie      CookieConfig
	RateLimiter *middleware.RateLimiter
	Metrics     metrics.Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// NewRouter builds the engine with every route of the service.
func NewRouter(d Dependencies) *gin.Engine {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	log := d.Logger

	r := gin.New()
	r.Use(logger.Recovery(log), logger.GinMiddleware(log), middleware.Metrics(d.Metrics))
	r.Use(middleware.RouteGuard(middleware.DefaultGuardConfig(), d.Metrics))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	bridgeLog := log.Named("cookie-bridge")
	bridge := NewCookieBridge(d.Cookie, bridgeLog, d.Metrics)
	authLog := log.Named("auth")
	// Only sign-in actions may create a session; they sit behind the limiter.
	withSession := SessionMiddleware(d.Registry, bridge, d.Cookie, log.Named("session"))
	knownSession := KnownSession(d.Registry, bridge)

	limit := func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.Middleware(authLog)
	}

	r.POST("/api/auth/set-token", SetToken(bridge, bridgeLog))
	r.POST("/api/session", SetToken(bridge, bridgeLog))
	r.POST("/api/auth/remove-token", RemoveToken(bridge))

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", limit, withSession, Login(bridge, authLog))
		authGroup.POST("/register", limit, withSession, Register(bridge, authLog))
		authGroup.POST("/google", limit, withSession, LoginWithGoogle(bridge, authLog))
		authGroup.GET("/google/redirect", GoogleRedirect(d.Auth, d.Cookie, authLog))
		authGroup.GET("/google/callback", limit, withSession, GoogleCallback(bridge, d.Cookie, authLog))
		authGroup.POST("/logout", knownSession, Logout(bridge))
		authGroup.POST("/password-reset", limit, knownSession, PasswordReset(d.Auth, authLog))
		authGroup.POST("/refresh-profile", knownSession, RefreshProfile(bridge, authLog))
		authGroup.POST("/clear-error", knownSession, ClearError())
		authGroup.GET("/state", knownSession, SessionState(authLog))
	}

	pageLog := log.Named("pages")
	r.GET("/complete-profile", knownSession, CompleteProfilePage(pageLog))
	r.GET("/dashboard/customer", knownSession, DashboardPage(models.AccountTypeCustomer, pageLog))
	r.GET("/dashboard/provider", knownSession, DashboardPage(models.AccountTypeProvider, pageLog))

	verified := middleware.VerifiedAuth(d.Verifier, log.Named("verified-auth"))
	profileLog := log.Named("profile")
	profileGroup := r.Group("/api/profile", verified)
	{
		profileGroup.GET("", GetProfile(d.Profiles, profileLog))
		profileGroup.PATCH("", UpdateProfile(d.Profiles, d.Registry, profileLog))
		profileGroup.POST("/complete/customer", CompleteCustomerProfile(d.Profiles, d.Registry, profileLog))
		profileGroup.POST("/complete/provider", CompleteProviderProfile(d.Profiles, d.Registry, profileLog))
	}

	jobsLog := log.Named("jobs")
	provider := r.Group("/api/provider", verified, RequireProvider(d.Profiles, jobsLog))
	{
		provider.GET("/jobs", ListProviderJobs(d.Jobs, jobsLog))
		provider.PATCH("/jobs/:id/status", UpdateJobStatus(d.Jobs, jobsLog))
	}

	return r
}
