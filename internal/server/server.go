package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brownie44l1/sheharfix-ml/internal/config"
	"github.com/Brownie44l1/sheharfix-ml/internal/handlers"
)

type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

func New(cfg config.ServerConfig, h *handlers.Handler, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:           cfg.Addr(),
			Handler:        NewRouter(cfg, h, gatherer, log),
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		log: log,
	}
}

// NewRouter wires middleware, the classifier routes and /metrics.
func NewRouter(cfg config.ServerConfig, h *handlers.Handler, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.Use(
		RequestID(),
		AccessLog(log),
		gin.CustomRecovery(func(c *gin.Context, err any) {
			log.Error("http_panic_recovered",
				zap.Any("error", err),
				zap.String("request_id", c.GetString("request_id")))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}),
		CORS(cfg.AllowedOrigins),
	)

	h.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) Run() error {
	s.log.Info("Server is running", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
