package server

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/onepurp/Mutarjim-Pro/internal/engine"
)

// Server is the thin HTTP/WebSocket surface over the engine. It consumes
// only the engine's public operations and subscription contract.
type Server struct {
	engine *engine.Engine
	logger *logrus.Logger
	router *gin.Engine
	wsHub  *Hub
}

func New(eng *engine.Engine, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	wsHub := NewHub(logger)
	go wsHub.Run()
	wsHub.Bridge(eng.Hub())

	s := &Server{
		engine: eng,
		logger: logger,
		wsHub:  wsHub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(s.loggingMiddleware())
	s.router.Use(gin.Recovery())

	api := s.router.Group("/api")
	api.POST("/import", s.handleImport)
	api.POST("/start", s.handleStart)
	api.POST("/pause", s.handlePause)
	api.POST("/resume", s.handleResume)
	api.POST("/retry-skipped", s.handleRetrySkipped)
	api.POST("/project", s.handleUpdateProject)
	api.GET("/project", s.handleProject)
	api.GET("/stats", s.handleStats)
	api.GET("/segments", s.handleSegments)
	api.GET("/logs", s.handleLogs)
	api.GET("/export", s.handleExport)
	api.GET("/backup", s.handleBackup)
	api.POST("/restore", s.handleRestore)

	s.router.GET("/ws", s.HandleWebSocket)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":            "ok",
			"engine_state":      s.engine.State(),
			"websocket_clients": s.wsHub.ClientCount(),
		})
	})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.WithFields(logrus.Fields{
			"status":  param.StatusCode,
			"method":  param.Method,
			"path":    param.Path,
			"latency": param.Latency,
		}).Info("HTTP Request")
		return ""
	})
}
