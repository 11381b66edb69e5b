package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
		Migrate  bool
	}

	// JWT configuration for the admin API
	JWT struct {
		Secret string
		Expiry time.Duration
		Issuer string
	}

	// Security configuration
	Security struct {
		IPRateLimit    float64
		IPRateBurst    int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Upstream model services
	Services struct {
		OllamaBaseURL     string
		GenerationModel   string
		EmbeddingModel    string
		GenerationTimeout time.Duration
		EmbeddingTimeout  time.Duration
		BreakerThreshold  int
		BreakerCooldown   time.Duration
	}

	// Retrieval settings
	Retrieval struct {
		TopK          int
		HistoryLimit  int
		Timeout       time.Duration
		VectorBackend string
		ChunkSize     int
		EmbedWorkers  int
	}

	// Per-credential rate limiting
	RateLimit struct {
		Backend string
		Window  time.Duration
		IdleTTL time.Duration
	}

	// Redis connection
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Cache settings
	Cache struct {
		Enabled bool
		TTL     time.Duration
		MaxSize int
	}

	// Admin credentials
	Admin struct {
		Username     string
		PasswordHash string
	}

	// gRPC health server
	GRPC struct {
		Enabled bool
		Port    string
	}

	// Observability
	Observability struct {
		ServiceName   string
		EnableTracing bool
	}

	// Vault secret source
	Vault struct {
		Enabled bool
		Addr    string
		Token   string
		Mount   string
		Path    string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 150*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	// Database config
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "acm_chatbot")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.Migrate = getEnvBool("DB_AUTO_MIGRATE", true)

	// JWT config
	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 12*time.Hour)
	cfg.JWT.Issuer = getEnvString("JWT_ISSUER", "acm-chatbot")

	// Security config
	cfg.Security.IPRateLimit = getEnvFloat("IP_RATE_LIMIT", 20)
	cfg.Security.IPRateBurst = getEnvInt("IP_RATE_BURST", 40)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20)

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Upstream services
	cfg.Services.OllamaBaseURL = strings.TrimRight(getEnvString("OLLAMA_BASE_URL", "http://localhost:11434"), "/")
	cfg.Services.GenerationModel = getEnvString("OLLAMA_MODEL", "llama3.2:3b")
	cfg.Services.EmbeddingModel = getEnvString("EMBEDDING_MODEL", "nomic-embed-text")
	cfg.Services.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 120*time.Second)
	cfg.Services.EmbeddingTimeout = getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second)
	cfg.Services.BreakerThreshold = getEnvInt("BREAKER_THRESHOLD", 5)
	cfg.Services.BreakerCooldown = getEnvDuration("BREAKER_COOLDOWN", 30*time.Second)

	// Retrieval
	cfg.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", 8)
	cfg.Retrieval.HistoryLimit = getEnvInt("HISTORY_LIMIT", 5)
	cfg.Retrieval.Timeout = getEnvDuration("RETRIEVAL_TIMEOUT", 10*time.Second)
	cfg.Retrieval.VectorBackend = getEnvString("VECTOR_BACKEND", "pgvector")
	cfg.Retrieval.ChunkSize = getEnvInt("CHUNK_SIZE", 500)
	cfg.Retrieval.EmbedWorkers = getEnvInt("EMBED_WORKERS", 4)

	// Rate limiting
	cfg.RateLimit.Backend = getEnvString("RATE_LIMIT_BACKEND", "memory")
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	cfg.RateLimit.IdleTTL = getEnvDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute)

	// Redis
	cfg.Redis.Addr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// Cache settings
	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)

	// Admin
	cfg.Admin.Username = getEnvString("ADMIN_USERNAME", "admin")
	cfg.Admin.PasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")

	// gRPC
	cfg.GRPC.Enabled = getEnvBool("GRPC_ENABLED", false)
	cfg.GRPC.Port = getEnvString("GRPC_PORT", "9090")

	// Observability
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "acm-chatbot")
	cfg.Observability.EnableTracing = getEnvBool("ENABLE_TRACING", false)

	// Vault
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Addr = getEnvString("VAULT_ADDR", "http://localhost:8200")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.Path = getEnvString("VAULT_SECRET_PATH", "acm-chatbot")

	return cfg
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
