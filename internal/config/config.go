package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity provider constants
const (
	ProviderGitHub = "github"
	ProviderMock   = "mock"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Cache type constants, shared by the token and metrics caches
const (
	CacheTypeMemory     = "memory"
	CacheTypeRedis      = "redis"
	CacheTypeRedisAside = "redis-aside"
)

// Supported key pair and hash identifiers. Kept here so Validate does not
// depend on the crypto packages.
var (
	supportedKeyPairTypes  = []string{"Ed25519", "ECDSA-P256"}
	supportedHashAlgorithm = []string{"blake3", "sha256"}
)

// developmentKeyPassword is only accepted outside production.
const developmentKeyPassword = "development-key-password-change-me"

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Session settings (binds /login to /callback in the same browser)
	SessionSecret string
	SessionMaxAge int // seconds

	// Key material
	KeyPassword         string // Encrypts every app private key at rest
	KeyPairType         string // Key pair type for new apps
	KeyScryptWorkFactor int    // log2 scrypt cost for private key encryption
	HashAlgorithm       string // Digest for stored refresh token fingerprints

	// Token lifetimes
	RefreshTokenExpiration time.Duration // default: 26 weeks
	AccessTokenExpiration  time.Duration // default: 8h

	// Login handshake
	StaleLoginExpiry     time.Duration // Pending requests older than this are stale
	LoginRecordRetention time.Duration // Requests older than this are deleted
	LoginSweepInterval   time.Duration // How often the sweep runs

	// Identity provider
	AuthProvider    string        // "github" or "mock"
	ProviderTimeout time.Duration // Timeout for outbound provider calls

	// GitHub OAuth
	GitHubClientID      string
	GitHubClientSecret  string
	GitHubScopes        []string
	GitHubOrganizations []string // Organizations mirrored into grants and groups
	GitHubAPIURL        string
	GitHubMaxRetries    int

	// Mock provider fixture
	MockUserName string
	MockFullName string
	MockEmail    string
	MockGrants   string // space separated

	// Administration
	AdminUsers          []string // Usernames granted "admin" on login
	ManagementAppDomain string   // Domain of the server's own app (default: BaseURL)

	// Decoded access token cache
	TokenCacheType string        // "memory", "redis", or "redis-aside"
	TokenCacheTTL  time.Duration // Upper bound on how long a decoded token is trusted
	TokenCacheSize int           // Max entries of the memory cache

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	EnableRateLimit          bool
	RateLimitStore           string
	RateLimitCleanupInterval time.Duration
	LoginRateLimit           int // requests per minute
	CodeRateLimit            int
	ExchangeRateLimit        int

	// Prometheus metrics
	MetricsEnabled             bool
	MetricsToken               string
	MetricsGaugeUpdateEnabled  bool
	MetricsGaugeUpdateInterval time.Duration
	MetricsCacheType           string

	// Audit logging
	EnableAuditLogging bool
	AuditLogRetention  time.Duration
	AuditLogBufferSize int

	// Shutdown
	ServerShutdownTimeout time.Duration
	AuditShutdownTimeout  time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Determine database driver and DSN
	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "soauth.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	isProduction := getEnv("ENVIRONMENT", "development") == "production"
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	keyPassword := getEnv("KEY_PASSWORD", "")
	if keyPassword == "" && !isProduction {
		keyPassword = developmentKeyPassword
	}

	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8080"),
		BaseURL:        baseURL,
		IsProduction:   isProduction,
		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 1800),

		KeyPassword:         keyPassword,
		KeyPairType:         getEnv("KEY_PAIR_TYPE", "Ed25519"),
		KeyScryptWorkFactor: getEnvInt("KEY_SCRYPT_WORK_FACTOR", 15),
		HashAlgorithm:       getEnv("HASH_ALGORITHM", "blake3"),

		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 26*7*24*time.Hour),
		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", 8*time.Hour),

		StaleLoginExpiry:     getEnvDuration("STALE_LOGIN_EXPIRY", 30*time.Minute),
		LoginRecordRetention: getEnvDuration("LOGIN_RECORD_RETENTION", 14*24*time.Hour),
		LoginSweepInterval:   getEnvDuration("LOGIN_SWEEP_INTERVAL", 5*time.Minute),

		AuthProvider:    getEnv("AUTH_PROVIDER", ProviderGitHub),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		GitHubClientID:      getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:  getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubScopes:        getEnvSlice("GITHUB_SCOPES", []string{"read:user", "user:email"}),
		GitHubOrganizations: getEnvSlice("GITHUB_ORGANIZATIONS", nil),
		GitHubAPIURL:        getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubMaxRetries:    getEnvInt("GITHUB_MAX_RETRIES", 3),

		MockUserName: getEnv("MOCK_USER_NAME", "admin"),
		MockFullName: getEnv("MOCK_FULL_NAME", "Admin User"),
		MockEmail:    getEnv("MOCK_EMAIL", "admin@localhost"),
		MockGrants:   getEnv("MOCK_GRANTS", "admin"),

		AdminUsers:          getEnvSlice("ADMIN_USERS", nil),
		ManagementAppDomain: getEnv("MANAGEMENT_APP_DOMAIN", baseURL),

		TokenCacheType: getEnv("TOKEN_CACHE_TYPE", CacheTypeMemory),
		TokenCacheTTL:  getEnvDuration("TOKEN_CACHE_TTL", 10*time.Minute),
		TokenCacheSize: getEnvInt("TOKEN_CACHE_SIZE", 256),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EnableRateLimit:          getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		LoginRateLimit:           getEnvInt("LOGIN_RATE_LIMIT", 30),
		CodeRateLimit:            getEnvInt("CODE_RATE_LIMIT", 30),
		ExchangeRateLimit:        getEnvInt("EXCHANGE_RATE_LIMIT", 60),

		MetricsEnabled:             getEnvBool("METRICS_ENABLED", false),
		MetricsToken:               getEnv("METRICS_TOKEN", ""),
		MetricsGaugeUpdateEnabled:  getEnvBool("METRICS_GAUGE_UPDATE_ENABLED", true),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", 5*time.Minute),
		MetricsCacheType:           getEnv("METRICS_CACHE_TYPE", CacheTypeMemory),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),

		ServerShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		AuditShutdownTimeout:  getEnvDuration("AUDIT_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate checks configuration values for invalid combinations
func (c *Config) Validate() error {
	if c.KeyPassword == "" {
		return errors.New("KEY_PASSWORD is required")
	}
	if c.IsProduction && c.KeyPassword == developmentKeyPassword {
		return errors.New("KEY_PASSWORD must be set explicitly in production")
	}

	if !contains(supportedKeyPairTypes, c.KeyPairType) {
		return fmt.Errorf(
			"invalid KEY_PAIR_TYPE value: %q (must be one of: %s)",
			c.KeyPairType, strings.Join(supportedKeyPairTypes, ", "),
		)
	}
	if !contains(supportedHashAlgorithm, c.HashAlgorithm) {
		return fmt.Errorf(
			"invalid HASH_ALGORITHM value: %q (must be one of: %s)",
			c.HashAlgorithm, strings.Join(supportedHashAlgorithm, ", "),
		)
	}

	switch c.AuthProvider {
	case ProviderGitHub:
		if c.GitHubClientID == "" || c.GitHubClientSecret == "" {
			return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required when AUTH_PROVIDER=github")
		}
	case ProviderMock:
		if c.IsProduction {
			return errors.New("AUTH_PROVIDER=mock is not allowed in production")
		}
	default:
		return fmt.Errorf(
			"invalid AUTH_PROVIDER value: %q (must be %q or %q)",
			c.AuthProvider, ProviderGitHub, ProviderMock,
		)
	}

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore, RateLimitStoreMemory, RateLimitStoreRedis,
		)
	}

	for name, value := range map[string]string{
		"TOKEN_CACHE_TYPE":   c.TokenCacheType,
		"METRICS_CACHE_TYPE": c.MetricsCacheType,
	} {
		switch value {
		case CacheTypeMemory, CacheTypeRedis, CacheTypeRedisAside:
		default:
			return fmt.Errorf(
				"invalid %s value: %q (must be %q, %q, or %q)",
				name, value, CacheTypeMemory, CacheTypeRedis, CacheTypeRedisAside,
			)
		}
	}

	if c.StaleLoginExpiry <= 0 || c.LoginRecordRetention <= 0 {
		return errors.New("STALE_LOGIN_EXPIRY and LOGIN_RECORD_RETENTION must be positive")
	}
	if c.LoginRecordRetention < c.StaleLoginExpiry {
		return fmt.Errorf(
			"LOGIN_RECORD_RETENTION (%s) must not be shorter than STALE_LOGIN_EXPIRY (%s)",
			c.LoginRecordRetention, c.StaleLoginExpiry,
		)
	}
	if c.AccessTokenExpiration <= 0 || c.RefreshTokenExpiration <= 0 {
		return errors.New("token expirations must be positive")
	}
	if c.TokenCacheTTL < 0 {
		return errors.New("TOKEN_CACHE_TTL must not be negative")
	}

	return nil
}

// IsAdminUser reports whether username is listed in ADMIN_USERS
func (c *Config) IsAdminUser(username string) bool {
	for _, admin := range c.AdminUsers {
		if strings.EqualFold(admin, username) {
			return true
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Split by comma and trim spaces
		parts := []string{}
		for _, part := range splitAndTrim(value, ",") {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
