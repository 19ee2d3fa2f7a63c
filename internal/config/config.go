package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

const (
	IdentityProviderFirebase = "firebase"
	IdentityProviderLocal    = "local"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	MongoURI string
	DBName   string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ProfileCacheTTL time.Duration

	IdentityProvider  string
	FirebaseAPIKey    string
	FirebaseProjectID string
	JWTSecret         string
	IDTokenTTL        time.Duration
	RefreshTokenTTL   time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SessionCookieMaxAge  time.Duration
	TokenRefreshInterval time.Duration
	SessionIdleTTL       time.Duration
	VerifiedTokenCache   int
}

// Load reads .env (when present) and the process environment into AppEnv.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

func FromEnv() Config {
	return Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		AppEnv:   strings.ToLower(getEnvOrDefault("APP_ENV", "development")),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		MongoURI: getEnvOrDefault("MONGO_URI", ""),
		DBName:   getEnvOrDefault("DB_NAME", "sidehustlers"),

		RedisAddr:       getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:   getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		ProfileCacheTTL: getDurationEnv("PROFILE_CACHE_TTL", 10, time.Minute),

		IdentityProvider:  strings.ToLower(getEnvOrDefault("IDENTITY_PROVIDER", IdentityProviderFirebase)),
		FirebaseAPIKey:    getEnvOrDefault("FIREBASE_API_KEY", ""),
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),
		IDTokenTTL:        getDurationEnv("ID_TOKEN_TTL", 60, time.Minute),
		RefreshTokenTTL:   getDurationEnv("REFRESH_TOKEN_TTL", 30, 24*time.Hour),

		GoogleClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnvOrDefault("GOOGLE_REDIRECT_URL", ""),

		SessionCookieMaxAge:  getDurationEnv("SESSION_COOKIE_MAX_AGE", 5, 24*time.Hour),
		TokenRefreshInterval: getDurationEnv("TOKEN_REFRESH_INTERVAL", 50, time.Minute),
		SessionIdleTTL:       getDurationEnv("SESSION_IDLE_TTL", 24, time.Hour),
		VerifiedTokenCache:   getIntEnv("VERIFIED_TOKEN_CACHE", 10000),
	}
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func (c Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}

	switch c.IdentityProvider {
	case IdentityProviderFirebase:
		if c.FirebaseAPIKey == "" {
			errs = append(errs, errors.New("FIREBASE_API_KEY is required for the firebase identity provider"))
		}
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firebase identity provider"))
		}
	case IdentityProviderLocal:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required for the local identity provider"))
		}
	default:
		errs = append(errs, errors.New("IDENTITY_PROVIDER must be firebase or local"))
	}

	return errors.Join(errs...)
}
