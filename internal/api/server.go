// Package api exposes the HTTP surface of the review service: task
// submission, status/results polling, listing, deletion, and aggregate
// stats. Handlers translate between the JSON wire format and the
// application services; they hold no business logic of their own.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

// Server wires the application services into a gin router.
type Server struct {
	dispatcher *appReview.Dispatcher
	status     *appReview.StatusService
	logger     *logger.Logger
	engine     *gin.Engine
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	serviceName string,
	dispatcher *appReview.Dispatcher,
	status *appReview.StatusService,
	log *logger.Logger,
) *Server {
	s := &Server{
		dispatcher: dispatcher,
		status:     status,
		logger:     log,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware())

	engine.GET("/", s.handleHealth)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/status/:task_id", s.handleStatus)
		v1.GET("/results/:task_id", s.handleResults)
		v1.GET("/tasks", s.handleListTasks)
		v1.DELETE("/tasks/:task_id", s.handleDeleteTask)
		v1.GET("/stats", s.handleStats)
	}

	s.engine = engine
	return s
}

// Handler returns the root http.Handler for use with an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// requestLogger emits one structured log line per request after the handler
// chain finishes.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// corsMiddleware allows browser clients from any origin. The service carries
// no authentication, so a permissive policy exposes nothing extra.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
