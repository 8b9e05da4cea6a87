package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Redis    RedisConfig
	Alerts   AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectRetries    int
	ConnectRetryDelay time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds session, remember-me and lockout policy.
type AuthConfig struct {
	SessionSecret     string
	SessionTTL        time.Duration
	RememberDays      int
	RememberSliding   bool
	MaxFailedAttempts int
	BlockTTL          time.Duration // 0 keeps a device blocked until an administrator clears it
	MaxTrustedDevices int
	LoginPath         string
	CleanupSchedule   string
	FailureDelayMin   time.Duration
	FailureDelayMax   time.Duration
	AdminUsername     string
	AdminPassword     string
}

// RememberTTL is the lifetime of a remember-me token.
func (c *AuthConfig) RememberTTL() time.Duration {
	return time.Duration(c.RememberDays) * 24 * time.Hour
}

type SecurityConfig struct {
	RateLimitMaxAttempts  int
	RateLimitWindow       time.Duration
	AuthRequestsPerMinute int
	TrustForwardedHeaders bool
	TrustedProxies        []*net.IPNet
	CSRFKey               string
	SecureCookies         bool
	CookieDomain          string
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AlertConfig enables security alert emails when To is set.
type AlertConfig struct {
	To        string
	From      string
	AWSRegion string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	proxies, err := parseCIDRs(getEnv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "rollcall"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectRetries:    getEnvAsInt("DB_CONNECT_RETRIES", 5),
			ConnectRetryDelay: getEnvAsDuration("DB_CONNECT_RETRY_DELAY", 2*time.Second),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			SessionSecret:     sessionSecret,
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			RememberDays:      getEnvAsInt("REMEMBER_DAYS", 30),
			RememberSliding:   getEnvAsBool("REMEMBER_SLIDING", false),
			MaxFailedAttempts: getEnvAsInt("MAX_FAILED_ATTEMPTS", 3),
			BlockTTL:          getEnvAsDuration("BLOCK_TTL", 0),
			MaxTrustedDevices: getEnvAsInt("MAX_TRUSTED_DEVICES", 3),
			LoginPath:         getEnv("LOGIN_PATH", "/login"),
			CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "@every 1h"),
			FailureDelayMin:   getEnvAsDuration("LOGIN_FAILURE_DELAY_MIN", 200*time.Millisecond),
			FailureDelayMax:   getEnvAsDuration("LOGIN_FAILURE_DELAY_MAX", 500*time.Millisecond),
			AdminUsername:     getEnv("ADMIN_USERNAME", ""),
			AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		},
		Security: SecurityConfig{
			RateLimitMaxAttempts:  getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			RateLimitWindow:       getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			AuthRequestsPerMinute: getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 30),
			TrustForwardedHeaders: getEnvAsBool("TRUST_FORWARDED_HEADERS", true),
			TrustedProxies:        proxies,
			CSRFKey:               getEnv("CSRF_KEY", ""),
			SecureCookies:         env == "production" || getEnvAsBool("SECURE_COOKIES", false),
			CookieDomain:          getEnv("COOKIE_DOMAIN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Alerts: AlertConfig{
			To:        getEnv("ALERT_EMAIL_TO", ""),
			From:      getEnv("ALERT_EMAIL_FROM", ""),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validatePolicy(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validatePolicy() error {
	if c.Auth.MaxFailedAttempts < 1 {
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if c.Auth.MaxTrustedDevices < 1 {
		return fmt.Errorf("MAX_TRUSTED_DEVICES must be at least 1")
	}
	if c.Auth.RememberDays < 1 {
		return fmt.Errorf("REMEMBER_DAYS must be at least 1")
	}
	if c.Security.RateLimitMaxAttempts < 1 || c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Security.CSRFKey != "" && len(c.Security.CSRFKey) != 32 {
		return fmt.Errorf("CSRF_KEY must be exactly 32 bytes (got %d)", len(c.Security.CSRFKey))
	}
	if c.Alerts.To != "" && c.Alerts.From == "" {
		return fmt.Errorf("ALERT_EMAIL_FROM is required when ALERT_EMAIL_TO is set")
	}
	return nil
}

// validateSessionSecret enforces minimum strength for the session signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL renders the connection string in the postgres:// form expected by lib/pq.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// parseCIDRs accepts a comma separated list of CIDRs or bare IPs.
func parseCIDRs(list string) ([]*net.IPNet, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var nets []*net.IPNet
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			if ip := net.ParseIP(raw); ip != nil && ip.To4() != nil {
				raw += "/32"
			} else {
				raw += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
