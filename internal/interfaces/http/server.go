package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application/queue"
	"github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/http/handlers"
)

// Server is the engine's HTTP surface: OpenAI-compatible chat completions,
// model listing, health/info, queue depth, and cancellation.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config is the subset of config.GatewayConfig the server needs, kept
// decoupled from the config package so this layer stays easy to test.
type Config struct {
	Host string
	Port int
	Mode string // debug | release
	APIKeys []string
}

func NewServer(
	cfg Config,
	q *queue.Queue,
	registry *queue.Registry,
	models handlers.ModelLister,
	health handlers.HealthReporter,
	mode *queue.ModeHolder,
	infoFn func() map[string]interface{},
	logger *zap.Logger,
) *Server {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	router.Use(apiKeyAuth(NewKeySet(cfg.APIKeys)))

	oaiHandler := handlers.NewOpenAIHandler(q, registry, models, health, mode, infoFn, logger)
	setupRoutes(router, oaiHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, h *handlers.OpenAIHandler) {
	router.GET("/health", h.Health)
	router.GET("/api/info", h.Info)

	v1 := router.Group("/v1")
	{
		v1.POST("/chat/completions", h.ChatCompletions)
		v1.GET("/models", h.ListModels)
		v1.GET("/queue", h.QueueStatus)
		v1.POST("/cancel/:req_id", h.Cancel)
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
