// Package transport is the REST adapter over an Engine: it maps the verb
// and path table from spec §6 onto the corresponding Engine call and
// serializes the result envelope directly, the way zmux-server's gin
// handlers wrap its services (internal/http/handlers/channels/*.go in the
// retrieval pack's edirooss-zmux-server).
package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kinfkong/liekodb"
)

// Server wraps an *liekodb.Engine behind a gin.Engine implementing the
// REST table in spec §6. Authentication, pooling, and retries are
// deliberately absent here: spec §6 assigns them to "the adapter", and
// this adapter is intentionally the thin, uncustomized reference one.
type Server struct {
	engine *liekodb.Engine
	router *gin.Engine
	logger *zap.Logger
}

// NewServer builds a Server around engine. logger may be nil, in which
// case request logging is skipped.
func NewServer(engine *liekodb.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), zapRequestLogger(logger))

	s := &Server{engine: engine, router: router, logger: logger}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler for use with an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func zapRequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("liekodb: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) routes() {
	g := s.router.Group("/collections/:collection")
	g.GET("", s.handleFind)
	g.GET("/count", s.handleCount)
	g.GET("/paginate", s.handlePaginate)
	g.GET("/:id", s.handleFindByID)
	g.POST("", s.handleInsert)
	g.POST("/indexes", s.handleCreateIndex)
	g.PATCH("", s.handleUpdate)
	g.PATCH("/:id", s.handleUpdateByID)
	g.DELETE("", s.handleDelete)
	g.DELETE("/:id", s.handleDeleteByID)
	g.DELETE("/drop", s.handleDrop)
}

// statusFor maps an envelope error code onto the matching HTTP status;
// the body always carries the full Result regardless of status (spec §6,
// "the envelope is the stable shape a transport adapter serializes").
func statusFor(r liekodb.Result) int {
	if r.Success {
		return http.StatusOK
	}
	if r.Error == nil {
		return http.StatusInternalServerError
	}
	return int(r.Error.Code)
}

func (s *Server) respond(c *gin.Context, r liekodb.Result) {
	c.JSON(statusFor(r), r)
}
