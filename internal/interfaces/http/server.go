package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatmirror/gateway/internal/domain/service"
	"github.com/chatmirror/gateway/internal/infrastructure/monitoring"
	"github.com/chatmirror/gateway/internal/interfaces/http/handlers"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host         string
	Port         int
	Mode         string // local, production
	AllowOrigins []string
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, sessions *service.SessionManager, query *service.QueryService, monitor *monitoring.Monitor, logger *zap.Logger) *Server {
	// 设置Gin模式
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	router.Use(corsMiddleware(cfg.AllowOrigins))

	// 初始化处理器
	sessionHandler := handlers.NewSessionHandler(sessions, logger)
	mirrorHandler := handlers.NewMirrorHandler(query, logger)
	tagHandler := handlers.NewTagHandler(query, logger)

	// 注册路由
	setupRoutes(router, sessionHandler, mirrorHandler, tagHandler, monitor)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, sessionHandler *handlers.SessionHandler, mirrorHandler *handlers.MirrorHandler, tagHandler *handlers.TagHandler, monitor *monitoring.Monitor) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
			"stats":  monitor.GetStats(),
		})
	})

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))

	// API版本1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", sessionHandler.ListStatus)
		v1.GET("/status/:slot", sessionHandler.Status)
		v1.GET("/slots/:slot/pairing", sessionHandler.Pairing)
		v1.POST("/slots/:slot/reset", sessionHandler.Reset)

		v1.GET("/inbox", mirrorHandler.Inbox)
		v1.GET("/history", mirrorHandler.History)
		v1.GET("/range", mirrorHandler.Range)
		v1.GET("/stats", mirrorHandler.Stats)

		v1.POST("/tags", tagHandler.AddTag)
		v1.GET("/tags", tagHandler.ListTags)
	}
}

// corsMiddleware 仪表盘跨域配置
func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	corsCfg := cors.DefaultConfig()
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	return cors.New(corsCfg)
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
