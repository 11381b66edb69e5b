package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"acm-chatbot/backend/internal/account"
	"acm-chatbot/backend/internal/chat"
	"acm-chatbot/backend/internal/generation"
	"acm-chatbot/backend/internal/identity"
	"acm-chatbot/backend/internal/knowledge"
	"acm-chatbot/backend/internal/ollama"
	"acm-chatbot/backend/internal/ratelimit"
	"acm-chatbot/backend/internal/retrieval"
	"acm-chatbot/backend/internal/session"
	"acm-chatbot/backend/internal/tenant"
	"acm-chatbot/backend/internal/usage"
	"acm-chatbot/backend/pkg/cache"
	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/health"
	"acm-chatbot/backend/pkg/jwt"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/observability"
	pkgredis "acm-chatbot/backend/pkg/redis"
	"acm-chatbot/backend/pkg/resilience"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Vector and limiter backends selectable through configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPgvector = "pgvector"
)

// VectorIndex serves both retrieval queries and knowledge ingestion.
type VectorIndex interface {
	retrieval.Index
	knowledge.VectorStore
}

// Container holds all the dependencies for the application
type Container struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Logger        *logger.Logger
	Observability *observability.Provider
	JWTService    *jwt.Service
	Health        *health.Checker

	Limiter    ratelimit.Limiter
	Identity   *identity.Store
	Sessions   *session.Store
	Directory  *tenant.Directory
	Accounts   *account.Service
	Vectors    VectorIndex
	Embedder   retrieval.Embedder
	Retriever  *retrieval.Retriever
	Generator  *generation.Client
	Accountant *usage.Accountant
	Ingester   *knowledge.Ingester
	Chat       *chat.Service

	closers []func() error
}

// Options carries optional collaborators. Zero values are built from config.
type Options struct {
	Redis         redis.UniversalClient
	Observability *observability.Provider
	HTTPClient    *http.Client
}

// New creates a new dependency injection container
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Container{Config: cfg, DB: db, Logger: log, Redis: opts.Redis}

	obs := opts.Observability
	if obs == nil {
		var err error
		obs, err = observability.Setup(observability.Config{ServiceName: cfg.Observability.ServiceName})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { return obs.Shutdown(context.Background()) })
	}
	c.Observability = obs

	jwtService, err := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	c.JWTService = jwtService

	if err := c.initLimiter(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initVectors(); err != nil {
		c.Close()
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport}
	}
	ollamaClient := ollama.NewClient(cfg.Services.OllamaBaseURL, httpClient)

	breaker := func(name string) *resilience.CircuitBreaker {
		bc := resilience.DefaultConfig(name)
		if cfg.Services.BreakerThreshold > 0 {
			bc.FailureThreshold = uint(cfg.Services.BreakerThreshold)
		}
		if cfg.Services.BreakerCooldown > 0 {
			bc.Cooldown = cfg.Services.BreakerCooldown
		}
		return resilience.NewCircuitBreaker(bc, log)
	}

	c.Embedder = retrieval.NewOllamaEmbedder(ollamaClient, cfg.Services.EmbeddingModel, cfg.Services.EmbeddingTimeout)
	c.Retriever = retrieval.NewRetriever(c.Embedder, c.Vectors, breaker("retrieval"), retrieval.Config{
		TopK:    cfg.Retrieval.TopK,
		Timeout: cfg.Retrieval.Timeout,
	}, log)
	c.Generator = generation.NewClient(ollamaClient, breaker("generation"), generation.Config{
		Model:   cfg.Services.GenerationModel,
		Timeout: cfg.Services.GenerationTimeout,
	}, log)

	c.Identity = identity.NewStore(db)
	c.Sessions = session.NewStore(db)

	var profiles *cache.Cache[*tenant.Profile]
	if cfg.Cache.Enabled {
		profiles = cache.New[*tenant.Profile](cache.Options{
			DefaultExpiration: cfg.Cache.TTL,
			CleanupInterval:   cfg.Cache.TTL,
			MaxItems:          cfg.Cache.MaxSize,
		})
		c.closers = append(c.closers, func() error { profiles.Close(); return nil })
	}
	c.Directory = tenant.NewDirectory(db, profiles, log)
	c.Accounts = account.NewService(db, c.Directory, jwtService, log)

	c.Accountant, err = usage.NewAccountant(db, c.Sessions, obs.Meter("usage"), log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create usage accountant: %w", err)
	}

	c.Ingester = knowledge.NewIngester(db, c.Embedder, c.Vectors, knowledge.Config{
		ChunkSize: cfg.Retrieval.ChunkSize,
		Workers:   cfg.Retrieval.EmbedWorkers,
	}, log)

	c.Chat, err = chat.NewService(chat.Dependencies{
		Identity:  c.Identity,
		Limiter:   c.Limiter,
		Sessions:  c.Sessions,
		Retriever: c.Retriever,
		Profiles:  c.Directory,
		Generator: c.Generator,
		Recorder:  c.Accountant,
	}, chat.Config{
		HistoryLimit: cfg.Retrieval.HistoryLimit,
		TopK:         cfg.Retrieval.TopK,
	},
		chat.WithMeter(obs.Meter("chat")),
		chat.WithTracer(obs.Tracer("chat")),
		chat.WithLogger(log),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create chat service: %w", err)
	}

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		return config.TestConnection(ctx, db)
	})
	if c.Redis != nil {
		c.Health.RegisterRedisCheck(c.Redis)
	}
	c.Health.RegisterAPICheck("ollama", ollamaClient.BaseURL()+"/api/tags", httpClient)

	return c, nil
}

func (c *Container) initLimiter() error {
	switch c.Config.RateLimit.Backend {
	case BackendRedis:
		if c.Redis == nil {
			c.Redis = pkgredis.NewClient(c.Config)
			client := c.Redis
			c.closers = append(c.closers, client.Close)
		}
		c.Limiter = ratelimit.NewRedisSlidingWindow(c.Redis, c.Config.RateLimit.Window)
	case BackendMemory, "":
		opts := ratelimit.DefaultOptions()
		if c.Config.RateLimit.Window > 0 {
			opts.Window = c.Config.RateLimit.Window
		}
		if c.Config.RateLimit.IdleTTL > 0 {
			opts.IdleTTL = c.Config.RateLimit.IdleTTL
		}
		limiter := ratelimit.NewSlidingWindow(opts, c.Logger)
		c.Limiter = limiter
		c.closers = append(c.closers, limiter.Close)
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.Config.RateLimit.Backend)
	}
	return nil
}

func (c *Container) initVectors() error {
	switch c.Config.Retrieval.VectorBackend {
	case BackendPgvector:
		idx := retrieval.NewPgvectorIndex(c.DB)
		if c.Config.Database.Migrate {
			if err := idx.Migrate(); err != nil {
				return err
			}
		}
		c.Vectors = idx
	case BackendMemory:
		c.Vectors = retrieval.NewMemoryIndex()
	default:
		return fmt.Errorf("unknown vector backend %q", c.Config.Retrieval.VectorBackend)
	}
	return nil
}

// Close releases background workers and connections owned by the container.
func (c *Container) Close() error {
	if c.Health != nil {
		c.Health.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
