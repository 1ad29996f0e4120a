// Package router provides RAG service routing.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	ragdocs "github.com/kart-io/bhasha/api/swagger/rag"
	"github.com/kart-io/bhasha/internal/rag/handler"
	"github.com/kart-io/bhasha/pkg/infra/middleware"
	"github.com/kart-io/bhasha/pkg/utils/validator"
)

// Handlers groups the handlers mounted under /v1.
type Handlers struct {
	Document *handler.DocumentHandler
	RAG      *handler.RAGHandler
	Chat     *handler.ChatHandler
	System   *handler.SystemHandler
	File     *handler.FileHandler
}

// Config configures the middleware chain.
type Config struct {
	// Auth authenticates every /v1 route.
	Auth middleware.AuthConfig
	// Enforcer guards administrative routes. Nil leaves them open to any
	// authenticated caller.
	Enforcer middleware.Enforcer
	// RateLimit applies to the chat and ask routes.
	RateLimit middleware.RateLimitConfig
	// CORS is skipped when AllowOrigins is empty.
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	// HideVersionDetails strips build details from /version.
	HideVersionDetails bool
	// EnableSwagger serves the API document under /swagger.
	EnableSwagger bool
}

// PublicPaths are served without authentication.
var PublicPaths = []string{
	"/v1/system/health",
	"/v1/system/status",
}

// Register registers the RAG service routes and middleware on engine.
func Register(engine *gin.Engine, cfg *Config, h *Handlers) {
	validator.Install()

	logger.Info("Registering RAG routes...")

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logger(),
	)
	if len(cfg.CORS.AllowOrigins) > 0 {
		engine.Use(middleware.CORSWithConfig(cfg.CORS))
	}
	if cfg.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	engine.GET("/healthz", handler.Healthz)
	engine.GET("/metrics", handler.Metrics)
	engine.GET("/version", middleware.Version(cfg.HideVersionDetails))
	if cfg.EnableSwagger {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.InstanceName(ragdocs.SwaggerInforag.InstanceName())))
	}

	auth := cfg.Auth
	auth.SkipPaths = append(append([]string{}, auth.SkipPaths...), PublicPaths...)

	admin := func(c *gin.Context) { c.Next() }
	if cfg.Enforcer != nil {
		admin = middleware.Authorize(cfg.Enforcer)
	}
	limited := middleware.RateLimitWithConfig(cfg.RateLimit)

	v1 := engine.Group("/v1", middleware.Auth(auth))
	{
		documents := v1.Group("/documents")
		{
			documents.POST("/upload", h.Document.Upload)
			documents.POST("/batch-upload", h.Document.BatchUpload)
			documents.GET("", h.Document.List)
			documents.GET("/stats/overview", h.Document.Stats)
			documents.POST("/initialize-kb", admin, h.Document.InitializeKB)
			documents.GET("/:id", h.Document.Get)
			documents.DELETE("/:id", h.Document.Delete)
		}

		rag := v1.Group("/rag")
		{
			rag.POST("/ask", limited, h.RAG.Ask)
			rag.POST("/feedback", h.RAG.Feedback)
			rag.GET("/evaluation/stats", admin, h.RAG.EvaluationStats)
		}

		chat := v1.Group("/chat", limited)
		{
			chat.POST("/message", h.Chat.SendMessage)
			chat.GET("", h.Chat.List)
			chat.GET("/:id/messages", h.Chat.Messages)
			chat.DELETE("/:id", h.Chat.Delete)
		}

		system := v1.Group("/system")
		{
			system.POST("/initialize", admin, h.System.Initialize)
			system.GET("/status", h.System.Status)
			system.GET("/health", h.System.Health)
			system.DELETE("/knowledge-base", admin, h.System.DeleteKnowledgeBase)
		}

		v1.GET("/files/*path", h.File.Serve)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "route not found"})
	})

	logger.Info("HTTP routes registered")
}
