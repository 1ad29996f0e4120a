// Package rag provides the bilingual RAG service server implementation.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/version"
	"github.com/spf13/afero"

	"github.com/kart-io/bhasha/internal/pkg/rag/evaluator"
	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/internal/rag/handler"
	"github.com/kart-io/bhasha/internal/rag/router"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/internal/rag/watcher"
	"github.com/kart-io/bhasha/pkg/component/db"
	"github.com/kart-io/bhasha/pkg/component/etcd"
	"github.com/kart-io/bhasha/pkg/component/mongodb"
	"github.com/kart-io/bhasha/pkg/component/redis"
	"github.com/kart-io/bhasha/pkg/component/storage"
	discovery "github.com/kart-io/bhasha/pkg/infra/discovery/etcd"
	"github.com/kart-io/bhasha/pkg/infra/middleware"
	"github.com/kart-io/bhasha/pkg/infra/pool"
	"github.com/kart-io/bhasha/pkg/infra/server"
	httpserver "github.com/kart-io/bhasha/pkg/infra/server/http"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
	"github.com/kart-io/bhasha/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/bhasha/pkg/llm/gemini"
	_ "github.com/kart-io/bhasha/pkg/llm/huggingface"
	_ "github.com/kart-io/bhasha/pkg/llm/ollama"
	_ "github.com/kart-io/bhasha/pkg/llm/openai"
	"github.com/kart-io/bhasha/pkg/llm/resilience"
	"github.com/kart-io/bhasha/pkg/objectstore"
	dbopts "github.com/kart-io/bhasha/pkg/options/db"
	etcdopts "github.com/kart-io/bhasha/pkg/options/etcd"
	jwtopts "github.com/kart-io/bhasha/pkg/options/jwt"
	llmopts "github.com/kart-io/bhasha/pkg/options/llm"
	logopts "github.com/kart-io/bhasha/pkg/options/logger"
	mongoopts "github.com/kart-io/bhasha/pkg/options/mongodb"
	objectstoreopts "github.com/kart-io/bhasha/pkg/options/objectstore"
	poolopts "github.com/kart-io/bhasha/pkg/options/pool"
	ragopts "github.com/kart-io/bhasha/pkg/options/rag"
	redisopts "github.com/kart-io/bhasha/pkg/options/redis"
	httpopts "github.com/kart-io/bhasha/pkg/options/server/http"
	tracingopts "github.com/kart-io/bhasha/pkg/options/tracing"
	"github.com/kart-io/bhasha/pkg/security/auth/jwt"
	"github.com/kart-io/bhasha/pkg/security/authz/casbin"
)

// Name is the name of the application.
const Name = "bhasha-rag"

// Component names registered with the storage manager.
const (
	componentDatabase = "database"
	componentRedis    = "redis"
	componentMongoDB  = "mongodb"
	componentEtcd     = "etcd"
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions           *httpopts.Options
	LogOptions            *logopts.Options
	DBOptions             *dbopts.Options
	RedisOptions          *redisopts.Options
	MongoDBOptions        *mongoopts.Options
	EtcdOptions           *etcdopts.Options
	JWTOptions            *jwtopts.Options
	ObjectStoreOptions    *objectstoreopts.Options
	EmbeddingOptions      *llmopts.ProviderOptions
	ChatOptions           *llmopts.ProviderOptions
	EmbeddingCacheOptions *llmopts.CacheOptions
	RAGOptions            *ragopts.Options
	TracingOptions        *tracingopts.Options
	PoolOptions           *poolopts.Options
}

// Server represents the RAG server.
type Server struct {
	manager    *server.Manager
	components *storage.Manager
	pools      *pool.Manager
	tracer     *tracing.Provider
}

// NewServer initializes and returns a new Server instance. Components
// created before a failure are closed before returning.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", version.Get().GitVersion)
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting RAG service...")

	s := &Server{manager: server.NewManager(cfg.HTTPOptions.ShutdownTimeout)}
	defer func() {
		if err != nil {
			s.shutdown()
		}
	}()

	// 2. 链路追踪
	if cfg.TracingOptions.ServiceVersion == "" {
		cfg.TracingOptions.ServiceVersion = version.Get().GitVersion
	}
	if s.tracer, err = tracing.NewProvider(cfg.TracingOptions); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// 3. 协程池
	if s.pools, err = pool.NewDefaultManager(cfg.PoolOptions.Configs()); err != nil {
		return nil, fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	background := s.pools.MustGet(pool.BackgroundPool)
	s.components = storage.NewManager(background)

	// 4. 关系数据库与 Store 层
	dbClient, err := db.NewWithContext(ctx, cfg.DBOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = s.components.Register(componentDatabase, dbClient); err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	factory := store.NewFactory(dbClient.DB())
	if err = factory.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Infow("Database initialized", "driver", dbClient.Name())

	// 5. 认证与授权
	enforcer, err := casbin.NewGormEnforcer(dbClient.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin: %w", err)
	}
	verifier, err := jwt.New(cfg.JWTOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jwt: %w", err)
	}
	if verifier.IsDisabled() {
		logger.Warnw("Authentication is disabled", "default_owner", verifier.DefaultOwner())
	}

	// 6. Redis（可选，用于向量缓存与共享限流）
	var redisClient *redis.Client
	if cfg.RedisOptions.Enabled {
		redisClient, err = redis.NewWithContext(ctx, cfg.RedisOptions)
		if err != nil {
			logger.Warnw("failed to connect to redis, cache and shared rate limit will be disabled", "error", err.Error())
			redisClient, err = nil, nil
		} else if err = s.components.Register(componentRedis, redisClient); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
	}

	// 7. 对象存储
	objects, err := s.newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 8. LLM 供应商
	chat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chat = resilience.WrapChat(chat, breakerOnly, nil)
	logger.Infow("Chat provider initialized", "provider", cfg.ChatOptions.Provider, "model", cfg.ChatOptions.Model)

	// 9. Biz 层
	ragOpts := cfg.RAGOptions
	chunker := biz.NewChunker(&biz.ChunkerConfig{
		ChunkSize:      ragOpts.Chunker.ChunkSize,
		ChunkOverlap:   ragOpts.Chunker.ChunkOverlap,
		MinChunkLength: ragOpts.Chunker.MinChunkLength,
	})
	embedder := biz.NewEmbedder(cfg.embeddingFactory(redisClient), s.pools.MustGet(pool.EmbeddingPool), &biz.EmbedderConfig{
		Dimension: ragOpts.Embedding.Dimension,
		BatchSize: ragOpts.Embedding.BatchSize,
	})
	retriever := biz.NewRetriever(factory.Chunks(), &biz.RetrieverConfig{
		TopK:           ragOpts.Retrieval.TopK,
		LanguageFilter: biz.LanguageFilter(ragOpts.Retrieval.LanguageFilter),
	})
	memory := biz.NewMemory(factory, &biz.MemoryConfig{
		ShortTermSize:  ragOpts.Memory.ShortTermSize,
		LongTermWindow: ragOpts.Memory.LongTermWindow,
		BlendLimit:     ragOpts.Memory.BlendLimit,
	})
	evaluation := biz.NewEvaluationService(factory, evaluator.New(embedder), background)
	orchestrator := biz.NewOrchestrator(embedder, retriever, memory, chat, evaluation, s.pools.MustGet(pool.GenerationPool),
		&biz.OrchestratorConfig{
			TopK:               ragOpts.Retrieval.TopK,
			RelevanceThreshold: ragOpts.Retrieval.RelevanceThreshold,
			GenerationTimeout:  ragOpts.Generation.Timeout,
			EvaluateAnswers:    ragOpts.Generation.EvaluateAnswers,
			RAGPrompt:          ragOpts.Generation.RAGPrompt,
			FallbackPrompt:     ragOpts.Generation.FallbackPrompt,
		})
	docs := biz.NewDocumentService(factory, objects, afero.NewOsFs(), chunker, embedder, &biz.IngestionConfig{
		MaxFileSize:        ragOpts.Ingestion.MaxFileSize,
		MaxBatchFiles:      ragOpts.Ingestion.MaxBatchFiles,
		KnowledgeBasePath:  ragOpts.Ingestion.KnowledgeBasePath,
		KnowledgeBaseTitle: ragOpts.Ingestion.KnowledgeBaseTitle,
		SystemOwner:        ragOpts.Ingestion.SystemOwner,
	})
	logger.Info("Biz layer initialized")

	// 10. HTTP 服务与路由
	httpSrv := httpserver.NewServer(cfg.HTTPOptions)
	handlers := &router.Handlers{
		Document: handler.NewDocumentHandler(docs, ragOpts.Ingestion.MaxFileSize, ragOpts.Ingestion.MaxBatchFiles),
		RAG:      handler.NewRAGHandler(orchestrator, memory, evaluation),
		Chat:     handler.NewChatHandler(orchestrator, memory, docs, ragOpts.Ingestion.MaxFileSize),
		System: handler.NewSystemHandler(docs, s.components, embedder, chat, objects, handler.SystemInfo{
			EmbeddingModel: cfg.EmbeddingOptions.Model,
			ChunkSize:      ragOpts.Chunker.ChunkSize,
			ChunkOverlap:   ragOpts.Chunker.ChunkOverlap,
			TopK:           ragOpts.Retrieval.TopK,
		}),
		File: handler.NewFileHandler(objects, ragOpts.Ingestion.SystemOwner),
	}
	router.Register(httpSrv.Engine(), cfg.routerConfig(verifier, enforcer, redisClient), handlers)
	s.manager.AddServer(httpSrv)

	// 11. 后台任务
	if ragOpts.Ingestion.AutoInitialize {
		s.manager.AddServer(autoInitializeHook(docs, background))
	}
	if ragOpts.Watcher.Enabled {
		w := watcher.New(&watcher.Config{
			Enabled:  true,
			Dir:      ragOpts.Watcher.Dir,
			Debounce: ragOpts.Watcher.Debounce,
		}, docs)
		s.manager.AddServer(&server.Hook{
			HookName: "watcher",
			OnStart:  w.Start,
			OnStop: func(context.Context) error {
				w.Stop()
				return nil
			},
		})
	}

	// 12. 服务注册，放在 HTTP 服务之后启动
	if cfg.EtcdOptions.Enabled {
		if err = s.registerService(ctx, cfg.EtcdOptions); err != nil {
			return nil, err
		}
	}

	logger.Infow("RAG service is ready", "addr", cfg.HTTPOptions.Addr)
	return s, nil
}

// Run starts every component and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.shutdown()
	return s.manager.Run(ctx)
}

func (s *Server) shutdown() {
	if s.components != nil {
		if err := s.components.CloseAll(); err != nil {
			logger.Warnw("failed to close components", "error", err.Error())
		}
	}
	if s.pools != nil {
		if err := s.pools.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warnw("worker pools did not drain", "error", err.Error())
		}
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			logger.Warnw("failed to shutdown tracer", "error", err.Error())
		}
	}
}

func (s *Server) newObjectStore(ctx context.Context, cfg *Config) (objectstore.Store, error) {
	if cfg.ObjectStoreOptions.Backend != objectstoreopts.BackendGridFS {
		return objectstore.New(cfg.ObjectStoreOptions, nil)
	}

	mongoClient, err := mongodb.NewWithContext(ctx, cfg.MongoDBOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongodb: %w", err)
	}
	if err := s.components.Register(componentMongoDB, mongoClient); err != nil {
		_ = mongoClient.Close()
		return nil, err
	}
	objects, err := objectstore.New(cfg.ObjectStoreOptions, mongoClient.Database())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	return objects, nil
}

func (s *Server) registerService(ctx context.Context, opts *etcdopts.Options) error {
	etcdClient, err := etcd.NewWithContext(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize etcd: %w", err)
	}
	if err := s.components.Register(componentEtcd, etcdClient); err != nil {
		_ = etcdClient.Close()
		return err
	}

	registrar := discovery.NewRegistrar(etcdClient.Client(), Name, opts.AdvertiseURL, opts.Rule, opts.LeaseTTL)
	s.manager.AddServer(&server.Hook{
		HookName: "registrar",
		OnStart:  registrar.Register,
		OnStop: func(context.Context) error {
			registrar.Close()
			return nil
		},
	})
	return nil
}

// breakerOnly 供应商的 HTTP 客户端已按 max-retries 重试，这里只加熔断。
var breakerOnly = &resilience.RetryConfig{MaxAttempts: 1}

// embeddingFactory 延迟创建向量化供应商，Redis 可用时包一层缓存。
func (cfg *Config) embeddingFactory(redisClient *redis.Client) biz.EmbedderFactory {
	return func() (llm.EmbeddingProvider, error) {
		provider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
		if err != nil {
			return nil, err
		}
		provider = resilience.WrapEmbedding(provider, breakerOnly, nil)
		if redisClient == nil || !cfg.EmbeddingCacheOptions.Enabled {
			return provider, nil
		}
		return llm.NewCachedEmbeddingProvider(provider, redisClient.Client(), &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       cfg.EmbeddingCacheOptions.TTL,
			KeyPrefix: cfg.EmbeddingCacheOptions.KeyPrefix,
			Namespace: fmt.Sprintf("%s:%s:%d", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model, cfg.RAGOptions.Embedding.Dimension),
		}), nil
	}
}

func (cfg *Config) routerConfig(verifier *jwt.JWT, enforcer middleware.Enforcer, redisClient *redis.Client) *router.Config {
	limit := cfg.RAGOptions.RateLimit
	rateLimit := middleware.RateLimitConfig{Limit: limit.Limit, Window: limit.Window}
	if limit.UseRedis && redisClient != nil {
		rateLimit.Limiter = middleware.NewRedisRateLimiter(redisClient.Client(), limit.Limit, limit.Window)
	}

	cors := middleware.DefaultCORSConfig
	cors.AllowOrigins = cfg.HTTPOptions.CORSAllowOrigins
	cors.AllowCredentials = cfg.HTTPOptions.CORSAllowCredentials

	return &router.Config{
		Auth: middleware.AuthConfig{
			Verifier:     verifier,
			Disabled:     verifier.IsDisabled(),
			DefaultOwner: verifier.DefaultOwner(),
			DefaultRoles: []string{casbin.RoleAdmin},
		},
		Enforcer:           enforcer,
		RateLimit:          rateLimit,
		CORS:               cors,
		RequestTimeout:     cfg.HTTPOptions.RequestTimeout,
		HideVersionDetails: cfg.HTTPOptions.HideVersionDetails,
		EnableSwagger:      cfg.HTTPOptions.EnableSwagger,
	}
}

// autoInitializeHook 启动后在后台导入内置知识库，失败只记录日志。
func autoInitializeHook(docs *biz.DocumentService, background *pool.Pool) server.Runnable {
	var cancel context.CancelFunc
	return &server.Hook{
		HookName: "knowledge-base",
		OnStart: func(ctx context.Context) error {
			ctx, cancel = context.WithCancel(context.WithoutCancel(ctx))
			return pool.Go(background, "initialize-knowledge-base", func() error {
				result, err := docs.InitializeKnowledgeBase(ctx)
				if err != nil {
					return err
				}
				logger.Infow("Knowledge base initialized", "status", result.Status, "chunks", result.ChunkCount)
				return nil
			})
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	}
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Database: %s\n", cfg.DBOptions.Driver)
	fmt.Printf("  Object storage: %s\n", cfg.ObjectStoreOptions.Backend)
}
